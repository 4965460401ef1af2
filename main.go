package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/benforcapita/play-app-sub000/config"
	"github.com/benforcapita/play-app-sub000/handler"
	"github.com/benforcapita/play-app-sub000/middleware"
	"github.com/benforcapita/play-app-sub000/pkg/logger"
	"github.com/benforcapita/play-app-sub000/service"
)

func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	slog.Info("configuration loaded successfully")

	store, err := service.OpenStore(&cfg.Database)
	if err != nil {
		slog.Error("failed to open job store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	archiveSvc, err := service.NewArchiveService(&cfg.Archive)
	if err != nil {
		slog.Error("failed to initialize archive service", "error", err)
		os.Exit(1)
	}
	if err := archiveSvc.EnsureBucket(context.Background()); err != nil {
		slog.Error("failed to ensure archive bucket", "error", err)
		os.Exit(1)
	}

	llmClient := service.NewLLMClient(&cfg.LLM)
	monitor := service.NewRuntimeMonitor()
	exportSvc := service.NewExportService(store)

	// Start the extraction worker alongside the HTTP server.
	workerCtx, stopWorker := context.WithCancel(context.Background())
	worker := service.NewWorker(store, llmClient, monitor, &cfg.Worker)
	var workerDone sync.WaitGroup
	workerDone.Add(1)
	go func() {
		defer workerDone.Done()
		if err := worker.Run(workerCtx); err != nil {
			slog.Error("extraction worker exited", "error", err)
		}
	}()

	authHandler := handler.NewAuthHandler(cfg)
	extractHandler := handler.NewExtractHandler(store, monitor, archiveSvc, exportSvc)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.RateLimit(100, time.Minute))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	api := router.Group("/api")
	{
		api.POST("/auth/login", authHandler.Login)
	}

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(&cfg.Auth))
	{
		protected.GET("/auth/me", authHandler.GetCurrentUser)
		protected.POST("/extract/characters", extractHandler.Submit)
		protected.GET("/extract/jobs", extractHandler.List)
		protected.GET("/extract/jobs/export", extractHandler.ExportXLSX)
		protected.GET("/extract/jobs/:jobToken/status", extractHandler.Status)
		protected.GET("/extract/jobs/:jobToken/result", extractHandler.Result)
		protected.GET("/extract/runtime", extractHandler.Runtime)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server...")

	stopWorker()
	workerDone.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server exited gracefully")
}
