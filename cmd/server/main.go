// PJSK card server: HTTP API, live WebSocket feed and optional Discord bot
// on top of one shared render-state engine.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ashureev/pjsk-cards/internal/adjust"
	"github.com/ashureev/pjsk-cards/internal/api"
	"github.com/ashureev/pjsk-cards/internal/card"
	"github.com/ashureev/pjsk-cards/internal/character"
	"github.com/ashureev/pjsk-cards/internal/chat/discord"
	"github.com/ashureev/pjsk-cards/internal/command"
	"github.com/ashureev/pjsk-cards/internal/config"
	"github.com/ashureev/pjsk-cards/internal/domain"
	"github.com/ashureev/pjsk-cards/internal/push"
	"github.com/ashureev/pjsk-cards/internal/render"
	"github.com/ashureev/pjsk-cards/internal/session"
	"github.com/ashureev/pjsk-cards/internal/state"
	"github.com/ashureev/pjsk-cards/internal/store"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "backend", cfg.SnapshotBackend)

	repo, err := openRepository(cfg)
	if err != nil {
		slog.Error("Failed to initialize snapshot store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Snapshot store health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Snapshot store connected")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	persister := state.NewPersister(repo, cfg.PersistWorkers, logger)
	persistCtx, stopPersist := context.WithCancel(context.Background())
	persistDone := make(chan struct{})
	go func() {
		defer close(persistDone)
		persister.Run(persistCtx)
	}()

	catalog := character.Default()
	states := state.New(cfg.Limits, cfg.StateTTL,
		state.WithPersister(persister),
		state.WithResolver(catalog),
		state.WithLogger(logger))
	if cfg.RestoreOnStart {
		n, err := states.Restore(ctx, repo)
		if err != nil {
			slog.Warn("Failed to restore saved states, starting empty", "error", err)
		} else {
			slog.Info("Restored saved states", "count", n)
		}
	}

	renderer, readiness := openRenderer(cfg, logger)
	if closer, ok := renderer.(interface{ Close() }); ok {
		defer closer.Close()
	}

	hub := push.NewHub()
	dispatchers := card.MultiDispatcher{hub}

	var bot *discord.Bot
	if cfg.DiscordToken != "" {
		bot, err = discord.New(cfg.DiscordToken, logger)
		if err != nil {
			slog.Error("Failed to initialize Discord bot", "error", err)
			os.Exit(1)
		}
		dispatchers = append(dispatchers, bot)
	} else {
		slog.Info("Discord bot disabled (DISCORD_TOKEN not set)")
	}

	publisher := card.NewPublisher(renderer, dispatchers, cfg.RenderTimeout, logger)
	engine := adjust.New(states, catalog, publisher, nil)
	sessions := session.New(states, catalog, publisher, session.WithLogger(logger))
	commands := command.NewHandler(strings.TrimPrefix(cfg.DiscordPrefix, "/"), engine, sessions, catalog, logger)

	if bot != nil {
		bot.SetCommander(commands)
		if err := bot.Open(); err != nil {
			slog.Error("Failed to connect Discord bot", "error", err)
			os.Exit(1)
		}
		defer func() {
			if closeErr := bot.Close(); closeErr != nil {
				slog.Warn("Failed to close Discord bot", "error", closeErr)
			}
		}()
	}

	limiter := api.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	defer limiter.Close()

	origins := []string{"*"}
	if cfg.FrontendURL != "" {
		origins = []string{cfg.FrontendURL}
	}

	base := api.NewHandler(states, engine, sessions, commands, catalog, repo)
	r := api.NewRouter(base, api.RouterOptions{
		AllowedOrigins: origins,
		Limiter:        limiter,
		Live:           push.NewWebSocketHandler(hub, commands, cfg.FrontendURL, cfg.IsDevelopment()),
		Renderer:       readiness,
		Persister:      persister,
		RequestLogging: true,
		OnCardDeleted:  hub.Close,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket connections stay open
		IdleTimeout:  120 * time.Second,
	}

	state.StartSweeper(ctx, states, repo, cfg.StateSweepInterval)
	session.StartSweeper(ctx, sessions, cfg.SessionSweepInterval)

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	stopPersist()
	<-persistDone
	if err := persister.Flush(shutdownCtx); err != nil {
		slog.Error("Failed to flush pending snapshots", "error", err, "pending", persister.Pending())
	}

	slog.Info("Server stopped successfully")
}

func openRepository(cfg *config.Config) (store.Repository, error) {
	switch cfg.SnapshotBackend {
	case config.BackendJSON:
		return store.NewJSONFile(cfg.SnapshotPath)
	case config.BackendNone:
		return store.Nop{}, nil
	default:
		return store.NewSQLite(cfg.DBPath)
	}
}

// openRenderer dials the remote renderer when configured. The placeholder
// renderer is used when no address is set or the dial fails; readiness is
// nil in that case so /health reports "placeholder".
func openRenderer(cfg *config.Config, logger *slog.Logger) (domain.Renderer, api.ReadyChecker) {
	if cfg.RendererAddr == "" {
		slog.Info("Renderer service not configured, using placeholder renderer")
		return render.NewPlaceholder(), nil
	}

	slog.Info("Connecting to renderer service via gRPC", "address", cfg.RendererAddr)
	g, err := render.NewGrpcRenderer(render.DefaultGrpcConfig(cfg.RendererAddr), logger)
	if err != nil {
		slog.Warn("Failed to connect to renderer service, using placeholder renderer", "error", err)
		return render.NewPlaceholder(), nil
	}
	return g, g
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
