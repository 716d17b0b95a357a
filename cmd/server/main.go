package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoPolymarket/riskgate/internal/app"
	"github.com/GoPolymarket/riskgate/internal/config"
	cronrunner "github.com/GoPolymarket/riskgate/internal/cron"
	"github.com/GoPolymarket/riskgate/internal/handler"
	"github.com/GoPolymarket/riskgate/internal/middleware"
	"github.com/GoPolymarket/riskgate/internal/pkg/logger"
	"github.com/GoPolymarket/riskgate/internal/stream"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.Log.Level)
	lg := logger.Get()

	// 2. Stores, engine, sizing, audit
	rootCtx, stopRoot := context.WithCancel(context.Background())
	defer stopRoot()

	a, err := app.Build(rootCtx, cfg, lg)
	if err != nil {
		log.Fatalf("Failed to initialize risk engine: %v", err)
	}
	defer a.Close()

	// 3. Background adapters
	var fillStream *stream.FillStream
	if cfg.Stream.Enabled && cfg.Stream.URL != "" {
		fillStream = stream.NewFillStream(cfg.Stream.URL, a.Engine, stream.WithLogger(lg))
		fillStream.Start()
	}

	var runner *cronrunner.Runner
	if cfg.Rollover.Enabled {
		runner = cronrunner.New(lg, rootCtx)
		if _, err := cronrunner.NewRollover(a.Engine, lg).Register(runner, cfg.Rollover.Schedule); err != nil {
			log.Fatalf("Invalid rollover schedule %q: %v", cfg.Rollover.Schedule, err)
		}
		runner.Start()
	}

	// 4. Setup Router
	r := gin.New()
	r.Use(gin.Recovery())

	// Global Middleware
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.RequestLogMiddleware(lg))

	// Health Check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "riskgate", "backend": cfg.Store.Backend})
	})

	// Metrics Endpoint
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	// API V1 Routes
	v1 := r.Group("/v1")
	v1.Use(middleware.RateLimitMiddleware(middleware.NewLimiter(cfg.RateLimit.QPS, cfg.RateLimit.Burst)))
	handler.RegisterRoutes(v1, handler.Handlers{
		Risk:      handler.NewRiskHandler(a.Engine, a.Fills),
		Sizing:    handler.NewSizingHandler(a.Validator, a.Sizer),
		Decisions: handler.NewDecisionHandler(a.Audit),
	}, cfg.Auth.AdminKey, a.Idempotency)

	// 5. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		lg.Info("RiskGate started", "port", cfg.Server.Port, "backend", cfg.Store.Backend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	lg.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		lg.Error("Server forced to shutdown", "error", err)
	}
	if fillStream != nil {
		fillStream.Stop()
	}
	if runner != nil {
		runner.Stop()
	}
	stopRoot()

	lg.Info("Server exiting")
}
