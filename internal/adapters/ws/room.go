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

func (ctl *Controller) handleJoin(ctx context.Context, id core.ConnID, c *wsConn, data []byte) {
	var p struct {
		Type   string `json:"type"`
		RoomID string `json:"roomId"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("bad join payload")
		ctl.sendError(c, "channel:join", fmt.Errorf("%w: bad payload", domain.ErrValidation))
		return
	}
	roomID, err := domain.ParseRoomID(p.RoomID)
	if err != nil {
		ctl.sendError(c, "channel:join", fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return
	}

	log.Info().Str("module", "ws").Str("conn", string(id)).Str("room", string(roomID)).Msg("join")
	members, err := ctl.GW.JoinRoom(ctx, id, roomID)
	if err != nil {
		ctl.sendError(c, "channel:join", err)
		return
	}
	seq, err := ctl.GW.Fanout.StreamPosition(ctx, roomID)
	if err != nil {
		log.Warn().Str("module", "ws").Str("room", string(roomID)).Err(err).Msg("stream position")
	}
	ctl.sendJSON(c, protocol.NewJoinAck(roomID, members, seq))
}

func (ctl *Controller) handleLeave(ctx context.Context, id core.ConnID, c *wsConn, data []byte) {
	var p struct {
		Type   string `json:"type"`
		RoomID string `json:"roomId"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("bad leave payload")
		ctl.sendError(c, "channel:leave", fmt.Errorf("%w: bad payload", domain.ErrValidation))
		return
	}
	roomID, err := domain.ParseRoomID(p.RoomID)
	if err != nil {
		ctl.sendError(c, "channel:leave", fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return
	}

	log.Info().Str("module", "ws").Str("conn", string(id)).Str("room", string(roomID)).Msg("leave")
	if err := ctl.GW.LeaveRoom(ctx, id, roomID); err != nil {
		ctl.sendError(c, "channel:leave", err)
		return
	}
	ctl.sendJSON(c, protocol.NewLeaveAck(roomID))
}
