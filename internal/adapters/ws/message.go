package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Pulse/internal/core"
	"github.com/dkeye/Pulse/internal/domain"
	"github.com/dkeye/Pulse/internal/protocol"
)

func (ctl *Controller) handleSend(ctx context.Context, id core.ConnID, c *wsConn, data []byte) {
	var p struct {
		Type    string `json:"type"`
		RoomID  string `json:"roomId"`
		Content string `json:"content"`
		Key     string `json:"idempotencyKey"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("bad send payload")
		ctl.sendError(c, "message:send", fmt.Errorf("%w: bad payload", domain.ErrValidation))
		return
	}
	roomID, err := domain.ParseRoomID(p.RoomID)
	if err != nil {
		ctl.sendError(c, "message:send", fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return
	}

	msg, dup, err := ctl.GW.Fanout.Send(ctx, id, roomID, p.Key, p.Content)
	if err != nil {
		ctl.sendError(c, "message:send", err)
		return
	}
	ctl.sendJSON(c, protocol.NewMessageAck(msg, dup))
}

func (ctl *Controller) handleEdit(ctx context.Context, id core.ConnID, c *wsConn, data []byte) {
	var p struct {
		Type      string `json:"type"`
		MessageID string `json:"messageId"`
		Content   string `json:"content"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("bad edit payload")
		ctl.sendError(c, "message:edit", fmt.Errorf("%w: bad payload", domain.ErrValidation))
		return
	}
	if p.MessageID == "" {
		ctl.sendError(c, "message:edit", fmt.Errorf("%w: missing messageId", domain.ErrValidation))
		return
	}

	msg, err := ctl.GW.Fanout.Edit(ctx, id, p.MessageID, p.Content)
	if err != nil {
		ctl.sendError(c, "message:edit", err)
		return
	}
	ctl.sendJSON(c, protocol.NewMessageAck(msg, false))
}

func (ctl *Controller) handleDelete(ctx context.Context, id core.ConnID, c *wsConn, data []byte) {
	var p struct {
		Type      string `json:"type"`
		MessageID string `json:"messageId"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("bad delete payload")
		ctl.sendError(c, "message:delete", fmt.Errorf("%w: bad payload", domain.ErrValidation))
		return
	}
	if p.MessageID == "" {
		ctl.sendError(c, "message:delete", fmt.Errorf("%w: missing messageId", domain.ErrValidation))
		return
	}

	msg, err := ctl.GW.Fanout.Delete(ctx, id, p.MessageID)
	if err != nil {
		ctl.sendError(c, "message:delete", err)
		return
	}
	ctl.sendJSON(c, protocol.NewMessageAck(msg, false))
}
