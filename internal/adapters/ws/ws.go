// Package ws is the client-facing transport: one websocket per
// connection, JSON frames both ways, a read pump that dispatches into
// the gateway and a write pump that drains the send buffer.
package ws

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Pulse/internal/app"
	"github.com/dkeye/Pulse/internal/core"
	"github.com/dkeye/Pulse/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

type Options struct {
	SendBuffer   int
	ReadLimit    int64
	WriteWait    time.Duration
	PongWait     time.Duration
	PingPeriod   time.Duration
	RateLimit    int
	RateInterval time.Duration
}

func (o *Options) withDefaults() {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 64 << 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 5 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = o.PongWait * 9 / 10
	}
}

type Controller struct {
	GW       *app.Gateway
	Verifier core.IdentityVerifier

	opts    Options
	limiter *FrameRateLimiter
}

func NewController(gw *app.Gateway, verifier core.IdentityVerifier, opts Options) *Controller {
	opts.withDefaults()
	return &Controller{
		GW:       gw,
		Verifier: verifier,
		opts:     opts,
		limiter:  NewFrameRateLimiter(opts.RateLimit, opts.RateInterval),
	}
}

type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return c.Query("token")
}

// Handle authenticates the handshake, upgrades it and starts the pumps.
// The credential is checked before the upgrade, a rejected client gets
// a plain 401 instead of a websocket close dance.
func (ctl *Controller) Handle(ctx context.Context, c *gin.Context) {
	user, err := ctl.Verifier.Verify(c.Request.Context(), bearerToken(c))
	if err != nil {
		log.Warn().Str("module", "ws").Err(err).Msg("handshake rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"error": domain.CodeOf(err)})
		return
	}

	socket, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Str("module", "ws").Err(err).Msg("upgrade")
		return
	}

	conn := &wsConn{
		conn: socket,
		send: make(chan core.Frame, ctl.opts.SendBuffer),
	}
	ctx, cancel := context.WithCancel(ctx)
	id := ctl.GW.Connect(ctx, user, conn, cancel)
	log.Info().Str("module", "ws").Str("conn", string(id)).Str("user", string(user.ID)).Msg("new WS connection")

	go ctl.writePump(ctx, id, conn)
	go ctl.readPump(ctx, id, conn)
}
