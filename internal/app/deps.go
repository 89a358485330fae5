package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couplemovie/backend/internal/archive"
	"github.com/couplemovie/backend/internal/auth"
	"github.com/couplemovie/backend/internal/catalog"
	"github.com/couplemovie/backend/internal/config"
	"github.com/couplemovie/backend/internal/couples"
	"github.com/couplemovie/backend/internal/db"
	"github.com/couplemovie/backend/internal/handlers"
	"github.com/couplemovie/backend/internal/middleware"
	"github.com/couplemovie/backend/internal/notify"
	"github.com/couplemovie/backend/internal/repositories"
)

const sessionSweepInterval = time.Hour

// components holds the wired handler dependencies plus everything that must
// be stopped when the process exits.
type components struct {
	deps    handlers.Dependencies
	hub     *notify.Hub
	closers []func(context.Context) error
}

// Close stops background work in reverse start order.
func (c *components) Close(ctx context.Context) error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *components) onClose(fn func(context.Context) error) {
	c.closers = append(c.closers, fn)
}

// buildDependencies wires together concrete implementations used by the HTTP handlers.
// Optional integrations (RabbitMQ, Redis, S3 archive, OMDb) are only dialled
// when configured.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config, logger *slog.Logger) (*components, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("jwt secret is required")
	}

	c := &components{}
	fail := func(err error) (*components, error) {
		_ = c.Close(context.Background())
		return nil, err
	}

	accounts := repositories.NewPostgresAccountRepository(pool)
	sessionStore := repositories.NewPostgresSessionStore(pool)
	sessions := auth.NewManager([]byte(cfg.JWTSecret), cfg.AccessTTL, cfg.RefreshTTL, sessionStore)

	hub := notify.NewHub()
	c.hub = hub
	c.onClose(func(context.Context) error {
		hub.Close()
		return nil
	})

	sinks := []notify.Sink{notify.LogSink{Logger: logger}, hub}
	if cfg.AMQPURL != "" {
		publisher, err := notify.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			return fail(fmt.Errorf("connect event broker: %w", err))
		}
		c.onClose(func(context.Context) error { return publisher.Close() })
		sinks = append(sinks, publisher)
	}

	dispatcher := notify.NewDispatcher(notify.DispatcherConfig{
		QueueSize: cfg.NotifyQueueSize,
		Workers:   cfg.NotifyWorkers,
	}, logger, sinks...)
	c.onClose(dispatcher.Shutdown)

	opts := []couples.Option{couples.WithNotifier(dispatcher)}
	if cfg.ArchiveBucket != "" {
		store, err := archive.NewS3Store(ctx, archive.S3Config{
			Bucket:   cfg.ArchiveBucket,
			Region:   cfg.ArchiveRegion,
			Endpoint: cfg.ArchiveEndpoint,
		})
		if err != nil {
			return fail(err)
		}
		opts = append(opts, couples.WithArchiver(archive.New(store, cfg.ArchivePrefix)))
	}

	service := couples.NewService(
		accounts,
		repositories.NewPostgresPairingRepository(pool),
		repositories.NewPostgresEntryRepository(pool),
		opts...,
	)

	var provider catalog.Provider
	if cfg.OMDbAPIKey != "" {
		var cache catalog.Cache
		if cfg.RedisAddr != "" {
			client, err := catalog.DialRedis(ctx, catalog.RedisOptions{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			})
			if err != nil {
				return fail(err)
			}
			c.onClose(func(context.Context) error { return client.Close() })
			cache = catalog.NewRedisCache(client)
		}
		omdb := catalog.NewOMDbProvider(cfg.OMDbBaseURL, cfg.OMDbAPIKey, cfg.CatalogTimeout)
		provider = catalog.NewCachingProvider(omdb, cache, cfg.CatalogCacheTTL)
	} else {
		logger.Warn("no OMDb api key configured, collection responses carry no metadata")
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	swept := make(chan struct{})
	go func() {
		defer close(swept)
		sweepSessions(sweepCtx, sessionStore, sessionSweepInterval, logger)
	}()
	c.onClose(func(context.Context) error {
		stopSweep()
		<-swept
		return nil
	})

	c.deps = handlers.Dependencies{
		Accounts:       accounts,
		Sessions:       sessions,
		Tokens:         sessions,
		Couples:        service,
		Catalog:        provider,
		Events:         hub,
		AuthLimiter:    middleware.NewKeyedLimiter(cfg.AuthRateLimit, cfg.AuthRateWindow, cfg.AuthRateLimit, 2*cfg.AuthRateWindow),
		InviteLimiter:  middleware.NewKeyedLimiter(cfg.InviteRateLimit, cfg.InviteRateWindow, cfg.InviteRateLimit, 2*cfg.InviteRateWindow),
		OriginPatterns: cfg.AllowedOrigins,
		Ping:           pinger(pool),
	}
	return c, nil
}

type expiredSessionStore interface {
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// sweepSessions drops expired refresh sessions until ctx ends.
func sweepSessions(ctx context.Context, store expiredSessionStore, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.DeleteExpired(ctx, time.Now().UTC())
			if err != nil {
				logger.Warn("sweep expired sessions", "error", err)
				continue
			}
			if removed > 0 {
				logger.Info("swept expired sessions", "removed", removed)
			}
		}
	}
}

// pinger checks database reachability for the health endpoint.
func pinger(pool db.Pool) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		conn, err := pool.Acquire(ctx)
		if err != nil {
			return fmt.Errorf("acquire connection: %w", err)
		}
		defer conn.Release()
		return conn.Ping(ctx)
	}
}
