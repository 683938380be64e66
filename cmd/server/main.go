package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Pulse/internal/adapters/auth"
	"github.com/dkeye/Pulse/internal/adapters/cluster"
	router "github.com/dkeye/Pulse/internal/adapters/http"
	"github.com/dkeye/Pulse/internal/adapters/store"
	"github.com/dkeye/Pulse/internal/adapters/ws"
	"github.com/dkeye/Pulse/internal/app"
	"github.com/dkeye/Pulse/internal/config"
	"github.com/dkeye/Pulse/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so the wiring below can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if cfg.Instance == "" {
		cfg.Instance = defaultInstance()
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open message store")
	}
	defer st.Close()

	var bus core.Bus
	if cfg.Cluster.NatsURL != "" {
		nc, err := cluster.Connect(cfg.Cluster.NatsURL, cfg.Instance)
		if err != nil {
			log.Fatal().Err(err).Str("url", cfg.Cluster.NatsURL).Msg("failed to connect cluster bus")
		}
		defer nc.Close()
		bus = nc
		if cfg.Store.Driver != "postgres" {
			log.Warn().Str("module", "main").Str("driver", cfg.Store.Driver).Msg("clustered instances need a shared store, per-node stores diverge")
		}
	}

	peers := cfg.Cluster.Peers
	if len(peers) == 0 {
		peers = []string{cfg.Instance}
	}

	clu := app.NewCluster(bus, cfg.Instance, cfg.Fanout.Retries, cfg.Fanout.Backoff)
	shard := app.NewShard(cfg.Instance, peers)
	reg := app.NewRegistry()
	rooms := app.NewRooms(cfg.Fanout.Window)
	presence := app.NewPresence(reg, clu, cfg.Presence.TTL, cfg.Presence.Sweep)
	fanout := app.NewFanout(reg, rooms, st, clu, shard, cfg.Fanout.MaxPayload)
	perm := app.OpenPolicy{}
	calls := app.NewCalls(reg, rooms, clu, perm, cfg.Calls.Capacity, cfg.Calls.Idle)
	typing := app.NewTyping(reg, rooms, clu, cfg.Typing.Clear)

	gw := &app.Gateway{
		Registry: reg,
		Rooms:    rooms,
		Presence: presence,
		Fanout:   fanout,
		Calls:    calls,
		Typing:   typing,
		Perm:     perm,
		Cluster:  clu,
	}
	if err := gw.BindCluster(); err != nil {
		log.Fatal().Err(err).Msg("failed to bind cluster subscriptions")
	}

	go presence.RunSweeper(ctx)
	go rooms.RunJanitor(ctx, cfg.Fanout.Window)
	go calls.RunReaper(ctx, cfg.Calls.Idle/2)

	ctrl := ws.NewController(gw, newVerifier(cfg), ws.Options{
		SendBuffer:   cfg.Socket.SendBuffer,
		ReadLimit:    cfg.Socket.ReadLimit,
		WriteWait:    cfg.Socket.WriteWait,
		PongWait:     cfg.Socket.PongWait,
		RateLimit:    cfg.Socket.RateLimit,
		RateInterval: cfg.Socket.RateInterval,
	})

	r := router.SetupRouter(ctx, cfg, gw, ctrl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("instance", cfg.Instance).Msg("Pulse server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	reg.CloseAll()
	log.Info().Msg("Server exited gracefully")
}

func openStore(ctx context.Context, cfg *config.Config) (core.MessageStore, error) {
	switch cfg.Store.Driver {
	case "badger":
		return store.OpenBadger(cfg.Store.BadgerDir)
	case "postgres":
		return store.OpenPostgres(ctx, cfg.Store.PostgresDSN)
	default:
		return store.NewMemory(), nil
	}
}

func newVerifier(cfg *config.Config) core.IdentityVerifier {
	if cfg.Auth.Mode == "jwt" {
		return auth.NewJWT(cfg.Auth.Secret, cfg.Auth.Issuer)
	}
	log.Warn().Str("module", "main").Msg("insecure auth mode enabled, credentials are not verified")
	return auth.Insecure{}
}

func defaultInstance() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "pulse-" + uuid.NewString()[:8]
	}
	return host
}
