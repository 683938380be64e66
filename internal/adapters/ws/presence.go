package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Pulse/internal/core"
	"github.com/dkeye/Pulse/internal/domain"
)

func (ctl *Controller) handleHeartbeat(ctx context.Context, id core.ConnID, c *wsConn, data []byte) {
	var p struct {
		Type     string `json:"type"`
		Status   string `json:"status"`
		RoomHint string `json:"roomHint"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("bad heartbeat payload")
		ctl.sendError(c, "presence:heartbeat", fmt.Errorf("%w: bad payload", domain.ErrValidation))
		return
	}
	user, ok := ctl.GW.Registry.User(id)
	if !ok {
		return
	}

	status := domain.Status(p.Status)
	if p.Status == "" {
		status = domain.StatusOnline
	}
	var hint domain.RoomID
	if p.RoomHint != "" {
		parsed, err := domain.ParseRoomID(p.RoomHint)
		if err != nil {
			ctl.sendError(c, "presence:heartbeat", fmt.Errorf("%w: %v", domain.ErrValidation, err))
			return
		}
		hint = parsed
	}
	if err := ctl.GW.Presence.Heartbeat(ctx, user.ID, status, hint); err != nil {
		ctl.sendError(c, "presence:heartbeat", err)
	}
}

func (ctl *Controller) handleTypingStart(ctx context.Context, id core.ConnID, c *wsConn, data []byte) {
	roomID, ok := ctl.typingRoom(c, "typing:start", data)
	if !ok {
		return
	}
	if err := ctl.GW.Typing.Start(ctx, id, roomID); err != nil {
		ctl.sendError(c, "typing:start", err)
	}
}

func (ctl *Controller) handleTypingStop(ctx context.Context, id core.ConnID, c *wsConn, data []byte) {
	roomID, ok := ctl.typingRoom(c, "typing:stop", data)
	if !ok {
		return
	}
	ctl.GW.Typing.Stop(ctx, id, roomID)
}

func (ctl *Controller) typingRoom(c *wsConn, op string, data []byte) (domain.RoomID, bool) {
	var p struct {
		Type   string `json:"type"`
		RoomID string `json:"roomId"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("bad typing payload")
		ctl.sendError(c, op, fmt.Errorf("%w: bad payload", domain.ErrValidation))
		return "", false
	}
	roomID, err := domain.ParseRoomID(p.RoomID)
	if err != nil {
		ctl.sendError(c, op, fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return "", false
	}
	return roomID, true
}
