package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	httpAdapter "github.com/lorrc/liveops/internal/adapters/primary/http"
	mw "github.com/lorrc/liveops/internal/adapters/primary/http/middleware"
	"github.com/lorrc/liveops/internal/adapters/primary/websocket"
	"github.com/lorrc/liveops/internal/adapters/secondary/memory"
	"github.com/lorrc/liveops/internal/adapters/secondary/metricsapi"
	"github.com/lorrc/liveops/internal/adapters/secondary/postgres"
	"github.com/lorrc/liveops/internal/adapters/secondary/realtime"
	"github.com/lorrc/liveops/internal/adapters/secondary/relay"
	"github.com/lorrc/liveops/internal/adapters/secondary/rtc"
	"github.com/lorrc/liveops/internal/adapters/secondary/sqlite"
	"github.com/lorrc/liveops/internal/auth"
	"github.com/lorrc/liveops/internal/config"
	"github.com/lorrc/liveops/internal/core/domain"
	"github.com/lorrc/liveops/internal/core/ports"
	"github.com/lorrc/liveops/internal/core/services"
	"github.com/lorrc/liveops/internal/infrastructure/logging"
)

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file to load before reading the environment")
	addr := pflag.String("addr", "", "listen address, overrides SERVER_PORT")
	loopback := pflag.Bool("loopback-ice", false, "include loopback ICE candidates (relay on the same host)")
	pflag.Parse()

	// 1. Load Configuration
	cfg, err := config.Load(*envFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Port = *addr
	}

	// 2. Initialize Structured Logger
	logger := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      os.Stdout,
		AddSource:   cfg.Logging.AddSource,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
	})

	logger.Info("starting service",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
		"storage_driver", cfg.Storage.Driver,
	)

	if err := run(cfg, *loopback, logger); err != nil {
		logger.Error("service stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server shutdown complete")
}

func run(cfg *config.Config, loopback bool, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Durable storage
	store, closeStore, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if cfg.Storage.SeedAuthToken != "" {
		if err := store.Set(ctx, ports.CredentialKey, cfg.Storage.SeedAuthToken); err != nil {
			return fmt.Errorf("seed credential: %w", err)
		}
	}
	creds := services.NewStoredCredential(store)

	// 4. Core services (Wiring the Hexagon)
	bus := services.NewDispatcher(logger)

	metricsClient := metricsapi.NewClient(cfg.Metrics.APIURL, cfg.Metrics.Timeout, creds, logger)
	cache := services.NewQueryCache(metricsClient, cfg.Metrics.CacheTTL, logger)
	invalidator := services.NewCacheInvalidator(bus, cache, logger)
	defer invalidator.Close()

	registry := services.NewLiveCallRegistry(bus, logger)
	defer registry.Close()
	selection := services.NewCallSelection(registry)
	defer selection.Close()

	peerOpts := []rtc.Option{rtc.WithGatherTimeout(cfg.Signaling.GatherTimeout)}
	if loopback {
		peerOpts = append(peerOpts, rtc.WithLoopbackCandidates())
	}
	signalingCfg := services.DefaultSignalingConfig()
	signalingCfg.ICEServers = cfg.Signaling.ICEServers
	signalingCfg.DataChannel = cfg.Signaling.DataChannel
	signalingCfg.DisconnectTimeout = cfg.Signaling.DisconnectTimeout
	signaling := services.NewSignalingClient(
		relay.NewClient(cfg.Signaling.RelayURL, cfg.Signaling.RequestTimeout, creds, logger),
		rtc.NewMediaDevices(cfg.Signaling.AudioSourcePath, logger),
		rtc.NewPeerFactory(cfg.Signaling.RecordingPath, logger, peerOpts...),
		domain.PermissionsFor,
		signalingCfg,
		logger,
	)

	fields := services.NewFieldService(store, logger)
	transport := realtime.NewTransport(cfg.Realtime, bus, creds, logger)

	// 5. Downstream hub
	hub := websocket.NewHub(logger)
	bridge := services.NewBridge(bus, hub, registry, cache, signaling, logger)
	defer bridge.Close()

	// 6. Rate limiters
	var generalLimiter, callLimiter *mw.RateLimiter
	if cfg.RateLimit.Enabled {
		general := mw.DefaultRateLimiterConfig()
		general.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		general.BurstSize = cfg.RateLimit.BurstSize
		generalLimiter = mw.NewRateLimiter(general)
		defer generalLimiter.Stop()

		call := mw.CallRateLimiterConfig()
		call.RequestsPerSecond = cfg.RateLimit.CallRPS
		call.BurstSize = cfg.RateLimit.CallBurst
		callLimiter = mw.NewRateLimiter(call)
		defer callLimiter.Stop()
	}

	// 7. Handlers (Primary Adapters)
	tokenManager := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)
	errorHandler := httpAdapter.NewErrorHandler(logger)
	router := httpAdapter.NewRouter(httpAdapter.RouterConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		TokenManager:   tokenManager,
		Logger:         logger,
		GeneralLimiter: generalLimiter,
		CallLimiter:    callLimiter,
		Health:         httpAdapter.NewHealthHandler(store, transport, cfg.App.Version),
		Me:             httpAdapter.NewMeHandler(logger),
		LiveCalls:      httpAdapter.NewLiveCallHandler(registry, selection, errorHandler, logger),
		Realtime:       httpAdapter.NewRealtimeHandler(transport, errorHandler, logger),
		Metrics:        httpAdapter.NewMetricsHandler(cache, errorHandler, logger),
		Call:           httpAdapter.NewCallHandler(signaling, errorHandler, logger),
		Fields:         httpAdapter.NewFieldHandler(fields, errorHandler, logger),
		WebSocket:      httpAdapter.NewWebSocketHandler(hub, cfg, logger),
	})

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// 8. Run until a signal arrives
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		connectRealtime(gctx, transport, cfg.Realtime.ReconnectDelay, logger)
		return nil
	})

	g.Go(func() error {
		logger.Info("server starting", "addr", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		transport.Disconnect()
		signaling.Close(shutdownCtx)

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// connectRealtime keeps trying the first connection until it succeeds or
// ctx ends. Later drops are handled by the transport's own reconnect.
func connectRealtime(ctx context.Context, transport *realtime.Transport, delay time.Duration, logger *slog.Logger) {
	for {
		err := transport.Connect(ctx)
		if err == nil {
			return
		}
		logger.Warn("realtime connect failed, retrying", "error", err, "delay", delay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// openStore selects the key/value backend named by the storage config.
func openStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (ports.KeyValueStore, func(), error) {
	switch cfg.Driver {
	case "postgres":
		if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
			return nil, nil, err
		}
		pool, err := postgres.NewPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("database connection established")
		return postgres.NewKeyValueStore(pool), pool.Close, nil

	case "memory":
		logger.Warn("using in-memory storage, fields and credentials will not survive a restart")
		return memory.NewKeyValueStore(), func() {}, nil

	default:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("sqlite storage opened", "path", cfg.SQLitePath)
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Warn("failed to close sqlite storage", "error", err)
			}
		}, nil
	}
}
