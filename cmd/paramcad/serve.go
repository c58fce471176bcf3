package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/bitfantasy/paramcad/internal/cad/catalog"
	"github.com/bitfantasy/paramcad/internal/cad/handler"
	"github.com/bitfantasy/paramcad/internal/cad/service"
	"github.com/bitfantasy/paramcad/internal/cad/sse"
	"github.com/bitfantasy/paramcad/internal/config"
	"github.com/bitfantasy/paramcad/internal/database"
	"github.com/bitfantasy/paramcad/internal/middleware"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(*configPath)
		},
	}
}

func serve(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()
	cfg, logger := a.cfg, a.logger

	logger.Info("Starting paramcad service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("database", cfg.Database.Driver),
	)

	if n, err := database.SeedPieceTypes(ctx, a.db, a.catalog); err != nil {
		return fmt.Errorf("seed piece types: %w", err)
	} else if n > 0 {
		logger.Info("Seeded piece types", zap.Int("count", n))
	}

	// 初始化Redis（可选，用于跨进程设计锁）
	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb = initRedis(cfg.Redis)
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis unavailable, falling back to in-process locks", zap.Error(err))
			rdb.Close()
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	hub := sse.NewHub(logger)
	eng := a.engine()
	if !eng.Available() {
		logger.Warn("Generation engine not available", zap.String("bin", cfg.Engine.Bin))
	}
	services := service.NewServices(a.repos, a.catalog, eng, rdb, cfg, hub, service.NewMetrics(reg), logger)

	if cfg.Catalog.Watch {
		watcher, err := catalog.NewWatcher(a.catalog, cfg.Catalog.Debounce, logger)
		if err != nil {
			logger.Warn("Catalog watcher disabled", zap.Error(err))
		} else {
			watcher.OnReload(func(*catalog.Catalog) { services.Catalog.Reloaded(nil) })
			watcher.Start(ctx)
			defer watcher.Stop()
		}
	}

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS(cfg.Server.CORSOrigins...))
	router.Use(middleware.RequestID())
	router.Use(middleware.Metrics(middleware.NewHTTPMetrics(reg)))
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/api/v1/events"})))

	if cfg.JWT.Secret == "" {
		logger.Warn("jwt.secret not set, API authentication disabled")
	}
	handler.RegisterRoutes(router, handler.NewHandlers(services, hub), handler.RouteOptions{
		JWTSecret: cfg.JWT.Secret,
		Gatherer:  reg,
		Version:   Version,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: 0, // SSE 长连接
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := services.Dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Error("Pending generation jobs cancelled", zap.Error(err))
	}

	logger.Info("Server exited")
	return nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}
