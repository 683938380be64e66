package app

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Pulse/internal/core"
)

// encode marshals a push frame. Failures are logged and the frame is
// dropped, a malformed push must never take the pipeline down.
func encode(v any) (core.Frame, bool) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Str("module", "app").Err(err).Msg("encode frame")
		return nil, false
	}
	return data, true
}
