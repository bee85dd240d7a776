package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stocksim/internal/app"
	"stocksim/internal/config"
	"stocksim/internal/handlers"

	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		// logger is not configured yet
		app.NewLogger(config.Default()).Fatalf("load config: %v", err)
	}
	logger := app.NewLogger(cfg)
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("startup failed: %v", err)
	}
	defer a.Close()

	if cfg.AutoInitUser {
		if _, err := a.Repo.InitUser(ctx, cfg.UserID, cfg.Username, cfg.StartingBalanceDecimal()); err != nil {
			logger.Warnf("init user %d: %v", cfg.UserID, err)
		}
	}

	h := handlers.NewHandler(a.Repo, a.Engine, handlers.UserSettings{
		ID:              cfg.UserID,
		Username:        cfg.Username,
		StartingBalance: cfg.StartingBalanceDecimal(),
	}, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           handlers.NewRouter(h, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Infof("server starting on :%s", cfg.AppPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}
