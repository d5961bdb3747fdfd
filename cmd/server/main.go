package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/Brownie44l1/beauty-api/internal/config"
	"github.com/Brownie44l1/beauty-api/internal/handlers"
	"github.com/Brownie44l1/beauty-api/internal/lgr"
	"github.com/Brownie44l1/beauty-api/internal/model"
	"github.com/Brownie44l1/beauty-api/internal/registry"
)

const shutdownTimeout = 10 * time.Second

func main() {
	config.LoadEnv()
	cfg := config.LoadService()

	closer, err := lgr.Setup(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("Failed to set up logging: %+v", err)
	}
	defer closer.Close()

	cache := model.NewCache(model.FileOpener(cfg.OnnxRuntimeLib))
	defer model.ShutdownRuntime()
	defer cache.Close()
	svc := model.NewService(cache, cfg.ModelPath, cfg.ModelsRoot)

	if lvl := log.GetLevel(); lvl < log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handlers.NewRouter(handlers.NewHandler(svc, registry.File(cfg.RegistryPath)), handlers.RouterOptions{
		CORSOrigins: cfg.CORSOrigins,
		Metrics:     true,
	})

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("Server starting on %s", srv.Addr)
		log.Infof("Default model: %s", cfg.ModelPath)
		log.Info("Endpoints:")
		log.Info("  GET  /              - Service info")
		log.Info("  GET  /health        - Health check")
		log.Info("  GET  /models        - Registered and loaded models")
		log.Info("  GET  /metrics       - Prometheus metrics")
		log.Info("  POST /predict       - Base64 image prediction")
		log.Info("  POST /predict/image - Predict from image upload")
		log.Infof("Upload test: curl -X POST -F \"image=@face.jpg\" http://localhost:%s/predict/image", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.WithField("signal", sig).Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
	}
}
