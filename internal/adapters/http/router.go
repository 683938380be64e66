package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Pulse/internal/adapters/ws"
	"github.com/dkeye/Pulse/internal/app"
	"github.com/dkeye/Pulse/internal/config"
	"github.com/dkeye/Pulse/internal/domain"
)

// SetupRouter wires the HTTP surface: a small read-only REST API for
// operators and the websocket endpoint everything else flows through.
func SetupRouter(ctx context.Context, cfg *config.Config, gw *app.Gateway, ctrl *ws.Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	log.Info().Str("module", "adapters.http").Str("instance", cfg.Instance).Msg("router setup")

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"instance":    cfg.Instance,
			"connections": gw.Registry.Count(),
		})
	})

	api := r.Group("/api")

	// GET /api/rooms lists rooms with members on this instance
	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": gw.Rooms.List()})
	})

	// GET /api/rooms/:id/members is the live member list for one room
	api.GET("/rooms/:id/members", func(c *gin.Context) {
		id, err := domain.ParseRoomID(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		room, ok := gw.Rooms.Peek(id)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown room"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"roomId":  id,
			"members": room.Users(),
			"count":   room.MemberCount(),
		})
	})

	// GET /api/presence/:user synthesizes offline when no live entry exists
	api.GET("/presence/:user", func(c *gin.Context) {
		c.JSON(http.StatusOK, gw.Presence.Status(domain.UserID(c.Param("user"))))
	})

	r.GET("/ws", func(c *gin.Context) {
		ctrl.Handle(ctx, c)
	})

	return r
}
