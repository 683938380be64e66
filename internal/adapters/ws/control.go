package ws

import "github.com/dkeye/Pulse/internal/protocol"

func (ctl *Controller) handlePing(c *wsConn) {
	ctl.sendJSON(c, protocol.NewPong())
}
