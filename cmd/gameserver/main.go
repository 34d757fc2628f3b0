// Package main provides the game server binary: the WebSocket backend for
// rooms, chat, and real-time game sessions.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/ludoteca/ludoteca/internal/auth"
	"github.com/ludoteca/ludoteca/internal/config"
	"github.com/ludoteca/ludoteca/internal/dispatch"
	"github.com/ludoteca/ludoteca/internal/game/catalog"
	"github.com/ludoteca/ludoteca/internal/game/room"
	"github.com/ludoteca/ludoteca/internal/game/session"
	"github.com/ludoteca/ludoteca/internal/game/wordsearch"
	"github.com/ludoteca/ludoteca/internal/observability"
	"github.com/ludoteca/ludoteca/internal/server"
	"github.com/ludoteca/ludoteca/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	gamesDir := flag.String("games", "content/games", "path to game metadata YAML directory")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting game server",
		zap.String("ws_addr", cfg.Server.Addr()),
	)

	// Register game adapters and load the lobby catalog. Every cataloged
	// game must resolve to an adapter before we serve anything.
	registry := session.NewRegistry()
	if err := registry.Register(wordsearch.Slug, func() session.Adapter { return wordsearch.New() }); err != nil {
		logger.Fatal("registering adapter", zap.Error(err))
	}

	catStart := time.Now()
	games, err := catalog.LoadFromDir(*gamesDir)
	if err != nil {
		logger.Fatal("loading game catalog", zap.Error(err))
	}
	if err := games.CheckRunnable(registry); err != nil {
		logger.Fatal("validating game catalog", zap.Error(err))
	}
	logger.Info("game catalog loaded",
		zap.Int("games", len(games.Games())),
		zap.Duration("elapsed", time.Since(catStart)),
	)

	// Connect to PostgreSQL for room hydration and result persistence.
	dbStart := time.Now()
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("connecting to database", zap.Error(err))
	}
	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.Duration("elapsed", time.Since(dbStart)),
	)
	repo := postgres.NewRoomRepository(pool.DB())

	// Sync the catalog into the games table so session rows can reference it.
	for _, g := range games.Games() {
		if err := repo.UpsertGame(ctx, g); err != nil {
			logger.Fatal("syncing game catalog", zap.String("slug", g.Slug), zap.Error(err))
		}
	}

	roomMgr := room.NewManager(repo, cfg.Rooms, logger)
	sessionMgr := session.NewManager(registry, repo, cfg.Rooms.TickPeriod, logger)
	tokens := auth.NewTokenService(cfg.Auth)
	dispatcher := dispatch.New(cfg.Server, cfg.Rooms, tokens, roomMgr, sessionMgr, logger)

	// Wire lifecycle. The dispatcher is added last so it stops first,
	// draining connections before the managers go away.
	lifecycle := server.NewLifecycle(logger)

	pgQuit := make(chan struct{})
	lifecycle.Add("postgres", &server.FuncService{
		StartFn: func() error {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := pool.Health(ctx, 5*time.Second); err != nil {
						logger.Warn("database health check failed", zap.Error(err))
					}
				case <-pgQuit:
					return nil
				}
			}
		},
		StopFn: func() {
			close(pgQuit)
			pool.Close()
		},
	})

	lifecycle.Add("rooms", roomMgr)

	sessQuit := make(chan struct{})
	lifecycle.Add("sessions", &server.FuncService{
		StartFn: func() error {
			interval := cfg.Rooms.SweepInterval
			if interval <= 0 {
				interval = 5 * time.Minute
			}
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					sessionMgr.Reap()
				case <-sessQuit:
					return nil
				}
			}
		},
		StopFn: func() {
			sessionMgr.Destroy()
			close(sessQuit)
		},
	})

	lifecycle.Add("dispatch", dispatcher)

	logger.Info("game server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("ws_addr", cfg.Server.Addr()),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
