package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrSnakeDoc/dispatchprobe/internal/config"
	"github.com/MrSnakeDoc/dispatchprobe/internal/httpserver"
	"github.com/MrSnakeDoc/dispatchprobe/internal/httpserver/deps"
	"github.com/MrSnakeDoc/dispatchprobe/internal/httpserver/mw"
	"github.com/MrSnakeDoc/dispatchprobe/internal/logger"
	"github.com/MrSnakeDoc/dispatchprobe/internal/scheduler"
	"github.com/MrSnakeDoc/dispatchprobe/internal/version"
)

type App struct {
	cfg    *config.Config
	logger logger.Logger
	server *httpserver.Server
	stack  *Stack
	gc     *scheduler.GarbageCollector
}

func New() *App {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	// Collaborators fail fast: a misconfigured store must not serve traffic.
	stack, err := Build(context.Background(), cfg, loggerClient)
	if err != nil {
		loggerClient.Errorf("Failed to initialize dispatch stack: %v", err)
		os.Exit(1)
	}

	// Create manual prune trigger channel
	pruneTrigger := make(chan struct{}, 1)

	gc := scheduler.NewGarbageCollector(
		stack.Store,
		loggerClient,
		cfg.GCInterval,
		cfg.GCThreshold,
		pruneTrigger,
	)

	// Dependencies passed to routes (extend as needed).
	d := deps.Deps{
		Logger:       loggerClient,
		StartTime:    time.Now(),
		Version:      version.Version,
		Commit:       version.Commit,
		BuildDate:    version.BuildDate,
		GoVersion:    version.GoVersion,
		TimeNow:      time.Now,
		AllowedHosts: cfg.AllowedHosts,
		AllowedCIDRS: cfg.AllowedCIDRS,
		TrustProxy:   cfg.TrustProxy,
		Dispatcher:   stack.Service,
		MaxBodyBytes: 1 << 20,
		RateLimit: mw.RateLimitConfig{
			Burst:             cfg.RateLimitBurst,
			RefillPerIPPerMin: cfg.RateLimitPerMinute,
		},
		Components:   stack.Components,
		PruneTrigger: pruneTrigger,
	}

	server := httpserver.New(cfg, loggerClient, d)

	return &App{
		cfg:    cfg,
		logger: loggerClient,
		server: server,
		stack:  stack,
		gc:     gc,
	}
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting dispatchprobe %s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Infof("dispatchprobe %s", version.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start garbage collector
	if err := a.gc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start garbage collector: %w", err)
	}
	a.logger.Info("garbage collector started",
		logger.Duration("interval", a.cfg.GCInterval),
		logger.Duration("threshold", a.cfg.GCThreshold))

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case err := <-errCh:
		a.gc.Stop()
		a.stack.Close(a.logger)
		return err
	}

	// Stop garbage collector
	a.gc.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	a.stack.Close(a.logger)

	a.logger.Info("✅ dispatchprobe stopped cleanly")
	return nil
}
