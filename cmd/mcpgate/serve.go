package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/alfredjeanlab/mcpgate/internal/auth"
	"github.com/alfredjeanlab/mcpgate/internal/bridge"
	"github.com/alfredjeanlab/mcpgate/internal/cache"
	"github.com/alfredjeanlab/mcpgate/internal/config"
	"github.com/alfredjeanlab/mcpgate/internal/events"
	"github.com/alfredjeanlab/mcpgate/internal/gateway"
	"github.com/alfredjeanlab/mcpgate/internal/metrics"
	"github.com/alfredjeanlab/mcpgate/internal/profile"
	"github.com/alfredjeanlab/mcpgate/internal/ratelimit"
	"github.com/alfredjeanlab/mcpgate/internal/redisutil"
	"github.com/alfredjeanlab/mcpgate/internal/resources"
	"github.com/alfredjeanlab/mcpgate/internal/server"
	"github.com/alfredjeanlab/mcpgate/internal/store/postgres"
	profilesync "github.com/alfredjeanlab/mcpgate/internal/sync"
	"github.com/alfredjeanlab/mcpgate/internal/upstream"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the gateway",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
		slog.SetDefault(logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// Connect to Redis and Postgres.
		rdb, err := redisutil.Dial(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()

		store, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer store.Close()

		// Create event publisher.
		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				return err
			}
			publisher = pub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("events disabled (MCPGATE_NATS_URL not set)")
		}
		defer publisher.Close()

		prom := metrics.NewProm("mcpgate")

		// One bridge per configured upstream.
		reg, err := upstream.Load(cfg)
		if err != nil {
			return err
		}
		var (
			upstreams []gateway.Upstream
			names     []string
		)
		for _, desc := range reg.Descriptors() {
			b := bridge.New(desc,
				bridge.WithLogger(logger.With("upstream", desc.Name)),
				bridge.WithMetrics(prom),
			)
			upstreams = append(upstreams, b)
			names = append(names, desc.Name)
		}
		health := server.NewHealthReporter(names)

		verifier := auth.NewVerifier(rdb, cfg.JWTSecret, cfg.JWTTTL, logger)
		for _, desc := range reg.Descriptors() {
			if !desc.DelegatedAuth || len(desc.TokenProviders) == 0 {
				continue
			}
			providers := make([]auth.Provider, len(desc.TokenProviders))
			for i, p := range desc.TokenProviders {
				providers[i] = auth.Provider(p)
			}
			if err := verifier.RouteUpstream(desc.Name, providers...); err != nil {
				return fmt.Errorf("upstream %s: %w", desc.Name, err)
			}
		}
		profiles := profile.NewService(store, cache.New(rdb, cache.DefaultTTL), publisher, prom, logger)

		var overlay fs.FS
		if cfg.ResourcesDir != "" {
			overlay = os.DirFS(cfg.ResourcesDir)
			logger.Info("resource overrides enabled", "dir", cfg.ResourcesDir)
		}

		g, err := gateway.New(gateway.Options{
			Upstreams:     upstreams,
			Limiter:       ratelimit.New(rdb, cfg.RateLimitWindow, cfg.RateLimitMax, logger),
			Tokens:        verifier,
			Profiles:      profiles,
			Resources:     resources.New(overlay, logger),
			Publisher:     publisher,
			Metrics:       prom,
			Logger:        logger,
			OnStateChange: health.Observe,
		})
		if err != nil {
			return err
		}

		// Listeners come up before the upstreams so health reports progress.
		srv := server.New(g, verifier, server.Info{Name: "mcpgate", Version: version}, logger)
		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           srv.NewHTTPHandler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", "err", err)
				stop()
			}
		}()

		var grpcServer *grpc.Server
		if cfg.GRPCAddr != "" {
			lis, err := net.Listen("tcp", cfg.GRPCAddr)
			if err != nil {
				_ = httpServer.Close()
				return err
			}
			grpcServer = server.NewGRPCServer(health)
			go func() {
				logger.Info("gRPC health service listening", "addr", cfg.GRPCAddr)
				if err := grpcServer.Serve(lis); err != nil {
					logger.Error("gRPC server error", "err", err)
				}
			}()
		}

		var initErr error
		if initErr = g.Initialize(ctx); initErr != nil {
			logger.Error("gateway initialization failed", "err", initErr)
		} else {
			logger.Info("gateway ready", "upstreams", len(upstreams), "http_addr", cfg.HTTPAddr)
		}

		// Start sync scheduler if configured.
		var scheduler *profilesync.Scheduler
		if initErr == nil && cfg.SyncInterval > 0 {
			dest, err := profilesync.NewS3Destination(ctx, cfg.SyncS3Bucket, cfg.SyncS3Key, cfg.SyncS3Region, cfg.SyncS3Endpoint)
			if err != nil {
				logger.Error("failed to create S3 sync destination", "err", err)
			} else {
				if cfg.SyncSnapshots {
					dest = dest.WithSnapshots()
				}
				scheduler = profilesync.NewScheduler(store, []profilesync.Destination{dest}, cfg.SyncInterval, logger)
				scheduler.Start()
				logger.Info("sync scheduler started", "interval", cfg.SyncInterval, "bucket", cfg.SyncS3Bucket, "key", cfg.SyncS3Key)
			}
		}

		if initErr == nil {
			<-ctx.Done()
			logger.Info("received signal, shutting down")
		}

		// Graceful shutdown.
		if scheduler != nil {
			scheduler.Stop()
			logger.Info("sync scheduler stopped")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		health.Shutdown()
		if grpcServer != nil {
			grpcServer.GracefulStop()
			logger.Info("gRPC server stopped")
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if err := g.Shutdown(shutdownCtx); err != nil {
			logger.Error("upstream shutdown error", "err", err)
		}

		logger.Info("shutdown complete")
		return initErr
	},
}
