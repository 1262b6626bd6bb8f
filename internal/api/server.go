// Package api implements the HTTP surface of the dispatch service.
package api

import (
    "context"
    "fmt"

    "go.uber.org/zap"

    "tripdispatch/internal/auth"
    "tripdispatch/internal/config"
    "tripdispatch/internal/dispatch"
    "tripdispatch/internal/events"
    "tripdispatch/internal/store"
    "tripdispatch/internal/webhooks"
)

type Server struct {
    Svc    *dispatch.Service
    Store  store.Store
    Broker events.Broker
    Auth   *auth.Verifier
    Queue  webhooks.Queue
    Log    *zap.Logger
    Cfg    config.Config

    limiter *tenantLimiter
    closers []func() error
}

// NewServer wires the store, broker, notifier and service from cfg.
// Without DATABASE_URL the in-memory store is used; without REDIS_URL the
// in-process broker.
func NewServer(ctx context.Context, cfg config.Config, log *zap.Logger) (*Server, error) {
    if log == nil { log = zap.NewNop() }
    s := &Server{Cfg: cfg, Log: log, limiter: newTenantLimiter(cfg.RateRPS, cfg.RateBurst)}

    if cfg.DatabaseURL == "" {
        s.Store = store.NewMemory()
        log.Info("using in-memory store")
    } else {
        pg, err := store.NewPostgres(cfg.DatabaseURL)
        if err != nil { return nil, fmt.Errorf("postgres: %w", err) }
        s.closers = append(s.closers, pg.Close)
        if cfg.DBMigrate {
            if err := pg.Migrate(ctx); err != nil {
                _ = pg.Close()
                return nil, fmt.Errorf("migrate: %w", err)
            }
        }
        s.Store = pg
    }

    if cfg.RedisURL != "" {
        rb, err := events.NewRedisBroker(cfg.RedisURL, cfg.RedisPrefix, log)
        if err != nil {
            // Fall back to a single-instance stream.
            log.Warn("redis unavailable, using in-process broker", zap.Error(err))
            s.Broker = events.NewMemoryBroker()
        } else {
            s.Broker = rb
            s.closers = append(s.closers, rb.Close)
        }
    } else {
        s.Broker = events.NewMemoryBroker()
    }

    v, err := auth.NewVerifier(cfg.Auth)
    if err != nil {
        s.Close()
        return nil, err
    }
    s.Auth = v

    fan := &events.Fanout{Broker: s.Broker, Log: log}
    if len(cfg.Webhooks.Endpoints) > 0 {
        q := webhooks.NewMemoryQueue()
        s.Queue = q
        fan.Sinks = append(fan.Sinks, webhooks.NewPublisher(q, cfg.Webhooks.Endpoints))
    }
    s.Svc = dispatch.NewService(s.Store, fan, log.Named("dispatch"), dispatch.Options{
        AssignKeepsReplacedBusy: cfg.Dispatch.AssignKeepsReplacedBusy,
    })
    return s, nil
}

// NewWebhookWorker returns a delivery worker, or nil when no endpoint is configured.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
    if s.Queue == nil { return nil }
    return webhooks.NewWorker(s.Queue, s.Cfg.Webhooks.MaxAttempts, s.Log.Named("webhooks"))
}

func (s *Server) Close() {
    for i := len(s.closers) - 1; i >= 0; i-- {
        if err := s.closers[i](); err != nil {
            s.Log.Warn("close failed", zap.Error(err))
        }
    }
    s.closers = nil
}
