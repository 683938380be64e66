package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Pulse/internal/core"
	"github.com/dkeye/Pulse/internal/domain"
	"github.com/dkeye/Pulse/internal/protocol"
)

func (ctl *Controller) handleCallJoin(ctx context.Context, id core.ConnID, c *wsConn, data []byte) {
	var p struct {
		Type   string `json:"type"`
		RoomID string `json:"callRoomId"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("bad call join payload")
		ctl.sendError(c, "call:join", fmt.Errorf("%w: bad payload", domain.ErrValidation))
		return
	}
	roomID, err := domain.ParseRoomID(p.RoomID)
	if err != nil {
		ctl.sendError(c, "call:join", fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return
	}

	log.Info().Str("module", "ws").Str("conn", string(id)).Str("room", string(roomID)).Msg("call join")
	roster, err := ctl.GW.Calls.Join(ctx, id, roomID)
	if err != nil {
		ctl.sendError(c, "call:join", err)
		return
	}
	user, ok := ctl.GW.Registry.User(id)
	if !ok {
		return
	}
	ctl.sendJSON(c, protocol.NewCallJoined(roomID, user.ID, roster))
}

// handleCallSignal validates the payload shape against the session
// description or candidate it claims to be, then relays it opaque.
func (ctl *Controller) handleCallSignal(ctx context.Context, id core.ConnID, c *wsConn, frameType string, data []byte) {
	kind := strings.TrimPrefix(frameType, "call:")
	var p struct {
		Type    string          `json:"type"`
		RoomID  string          `json:"callRoomId"`
		To      string          `json:"toUserId"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("bad signal payload")
		ctl.sendError(c, frameType, fmt.Errorf("%w: bad payload", domain.ErrValidation))
		return
	}
	roomID, err := domain.ParseRoomID(p.RoomID)
	if err != nil {
		ctl.sendError(c, frameType, fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return
	}
	if p.To == "" {
		ctl.sendError(c, frameType, fmt.Errorf("%w: missing toUserId", domain.ErrValidation))
		return
	}

	switch kind {
	case "offer", "answer":
		var sdp webrtc.SessionDescription
		if err := json.Unmarshal(p.Payload, &sdp); err != nil || sdp.SDP == "" {
			ctl.sendError(c, frameType, fmt.Errorf("%w: bad session description", domain.ErrValidation))
			return
		}
	case "ice":
		var cand webrtc.ICECandidateInit
		if err := json.Unmarshal(p.Payload, &cand); err != nil || cand.Candidate == "" {
			ctl.sendError(c, frameType, fmt.Errorf("%w: bad ice candidate", domain.ErrValidation))
			return
		}
	}

	if err := ctl.GW.Calls.Relay(ctx, id, roomID, domain.UserID(p.To), kind, p.Payload); err != nil {
		ctl.sendError(c, frameType, err)
	}
}

func (ctl *Controller) handleCallLeave(ctx context.Context, id core.ConnID, c *wsConn, data []byte) {
	var p struct {
		Type   string `json:"type"`
		RoomID string `json:"callRoomId"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("bad call leave payload")
		ctl.sendError(c, "call:leave", fmt.Errorf("%w: bad payload", domain.ErrValidation))
		return
	}
	roomID, err := domain.ParseRoomID(p.RoomID)
	if err != nil {
		ctl.sendError(c, "call:leave", fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return
	}

	log.Info().Str("module", "ws").Str("conn", string(id)).Str("room", string(roomID)).Msg("call leave")
	user, ok := ctl.GW.Registry.User(id)
	if !ok {
		return
	}
	if err := ctl.GW.Calls.Leave(ctx, id, roomID); err != nil {
		ctl.sendError(c, "call:leave", err)
		return
	}
	ctl.sendJSON(c, protocol.NewCallPeerLeft(roomID, user.ID))
}
