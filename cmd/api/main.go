package main

import (
    "context"
    "errors"
    "log"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "go.uber.org/zap"

    "tripdispatch/internal/api"
    "tripdispatch/internal/buildinfo"
    "tripdispatch/internal/config"
    "tripdispatch/internal/logging"
)

func main() {
    cfg, err := config.Load()
    if err != nil {
        log.Fatalf("config: %v", err)
    }
    logger, err := logging.New(cfg.Log)
    if err != nil {
        log.Fatalf("logger: %v", err)
    }
    defer func() { _ = logger.Sync() }()

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    srvDeps, err := api.NewServer(ctx, cfg, logger)
    if err != nil {
        logger.Fatal("failed to init server", zap.Error(err))
    }
    defer srvDeps.Close()

    if worker := srvDeps.NewWebhookWorker(); worker != nil {
        worker.Start()
        defer close(worker.Stop)
    }

    srv := &http.Server{
        Addr:              ":" + cfg.Port,
        Handler:           srvDeps.Routes(),
        ReadHeaderTimeout: 5 * time.Second,
    }
    errc := make(chan error, 1)
    go func() {
        logger.Info("API listening", zap.String("addr", srv.Addr), zap.String("version", buildinfo.Version), zap.String("auth", cfg.Auth.Mode))
        errc <- srv.ListenAndServe()
    }()

    select {
    case err := <-errc:
        if err != nil && !errors.Is(err, http.ErrServerClosed) {
            logger.Fatal("server error", zap.Error(err))
        }
    case <-ctx.Done():
        logger.Info("shutting down")
        shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
        defer cancel()
        if err := srv.Shutdown(shutdownCtx); err != nil {
            logger.Warn("graceful shutdown failed", zap.Error(err))
        }
    }
}
