package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Pulse/internal/core"
	"github.com/dkeye/Pulse/internal/domain"
	"github.com/dkeye/Pulse/internal/protocol"
)

func (ctl *Controller) writePump(ctx context.Context, id core.ConnID, c *wsConn) {
	ping := time.NewTicker(ctl.opts.PingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "ws").Str("conn", string(id)).Msg("writePump ctx done")
			return
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Str("module", "ws").Str("conn", string(id)).Err(err).Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Error().Str("module", "ws").Str("conn", string(id)).Err(err).Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Str("module", "ws").Str("conn", string(id)).Err(err).Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, id core.ConnID, c *wsConn) {
	defer func() {
		// the cascade must outlive the connection context it cancels
		ctl.GW.Disconnect(context.WithoutCancel(ctx), id)
		ctl.limiter.Forget(id)
		c.Close()
		log.Info().Str("module", "ws").Str("conn", string(id)).Msg("readPump closing")
	}()

	c.conn.SetReadLimit(ctl.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "ws").Str("conn", string(id)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Warn().Str("module", "ws").Str("conn", string(id)).Err(err).Msg("readPump unexpected close")
				}
				return
			}
			ctl.GW.Registry.Touch(id)
			ctl.dispatch(ctx, id, c, data)
		}
	}
}

func (ctl *Controller) dispatch(ctx context.Context, id core.ConnID, c *wsConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("bad json")
		ctl.sendError(c, "", fmt.Errorf("%w: malformed frame", domain.ErrValidation))
		return
	}

	// keepalives stay outside the rate window
	if env.Type == "ping" {
		ctl.handlePing(c)
		return
	}
	if !ctl.limiter.Allow(id) {
		ctl.sendError(c, env.Type, fmt.Errorf("%w: rate limited", domain.ErrValidation))
		return
	}

	switch env.Type {
	case "channel:join":
		ctl.handleJoin(ctx, id, c, data)
	case "channel:leave":
		ctl.handleLeave(ctx, id, c, data)
	case "message:send":
		ctl.handleSend(ctx, id, c, data)
	case "message:edit":
		ctl.handleEdit(ctx, id, c, data)
	case "message:delete":
		ctl.handleDelete(ctx, id, c, data)
	case "presence:heartbeat":
		ctl.handleHeartbeat(ctx, id, c, data)
	case "typing:start":
		ctl.handleTypingStart(ctx, id, c, data)
	case "typing:stop":
		ctl.handleTypingStop(ctx, id, c, data)
	case "call:join":
		ctl.handleCallJoin(ctx, id, c, data)
	case "call:offer", "call:answer", "call:ice":
		ctl.handleCallSignal(ctx, id, c, env.Type, data)
	case "call:leave":
		ctl.handleCallLeave(ctx, id, c, data)
	default:
		log.Warn().Str("module", "ws").Str("type", env.Type).Msg("unknown frame")
		ctl.sendError(c, env.Type, fmt.Errorf("%w: unknown type %q", domain.ErrValidation, env.Type))
	}
}

func (ctl *Controller) sendJSON(c *wsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *Controller) sendError(c *wsConn, op string, err error) {
	ctl.sendJSON(c, protocol.NewError(op, err))
}
