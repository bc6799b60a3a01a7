// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yourusername/buy-and-sell/internal/auth"
	"github.com/yourusername/buy-and-sell/internal/config"
	"github.com/yourusername/buy-and-sell/internal/logging"
	"github.com/yourusername/buy-and-sell/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode())
	logger := logging.Setup("buy-and-sell-api", cfg.LogFormat(), os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if err := run(ctx, cfg, logger, connectBackends); err != nil {
		stop()
		logging.Error(logger, "api server exited with error", err)
		os.Exit(1)
	}
	stop()
}

// connector は外部サービスへの接続を確立します。
type connector func(ctx context.Context, cfg *config.Settings, logger *slog.Logger) (*backends, error)

// run はサーバーを起動し、ctx が終了するまで待機します。
// どの段階で失敗しても接続済みのクライアントは閉じられます。
func run(ctx context.Context, cfg *config.Settings, logger *slog.Logger, connect connector) error {
	deps, err := connect(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to connect backends: %w", err)
	}
	defer deps.Close(logger)

	router, err := setupRouter(cfg, deps, logger)
	if err != nil {
		return err
	}

	if deps.jobs != nil {
		deps.jobs.StartWorkers()
	}

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// サーバーの起動
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting API server", "addr", server.Addr, "mode", cfg.GinMode())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server stopped unexpectedly: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down API server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

// setupRouter はルーティングとミドルウェアを組み立てます。
func setupRouter(cfg *config.Settings, deps *backends, logger *slog.Logger) (*gin.Engine, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svc, err := setupAuth(cfg, deps)
	if err != nil {
		return nil, fmt.Errorf("failed to set up auth service: %w", err)
	}
	opts := auth.HandlerOptions{
		Logger:  logger,
		Timeout: cfg.AuthTimeout(),
		Metrics: auth.NewMetrics(registry),
	}
	if deps.jobs != nil {
		opts.Auditor = deps.jobs
	}
	authHandler := auth.NewHandler(svc, opts)

	avatars, err := storage.NewLocal(cfg.UploadDir())
	if err != nil {
		return nil, fmt.Errorf("failed to prepare upload dir: %w", err)
	}

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSAllowedOrigins()
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", handleHealth(deps))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	authHandler.Register(router)
	router.POST("/avatar", authHandler.RequireToken(), storage.AvatarHandler(avatars, deps.users, logger))
	return router, nil
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
// MongoDB と Redis に到達できない場合は 503 を返します。
func handleHealth(deps *backends) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		checks := gin.H{"mongo": "ok", "redis": "ok"}
		if err := deps.mongo.Ping(ctx, nil); err != nil {
			status = http.StatusServiceUnavailable
			checks["mongo"] = "unavailable"
		}
		if err := deps.redis.Ping(ctx).Err(); err != nil {
			status = http.StatusServiceUnavailable
			checks["redis"] = "unavailable"
		}

		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		c.JSON(status, gin.H{
			"status":  state,
			"service": "buy-and-sell-api",
			"version": "0.1.0",
			"checks":  checks,
		})
	}
}
