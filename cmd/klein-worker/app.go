package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/arimarlgomes/KleinManager/config"
	"github.com/arimarlgomes/KleinManager/internal/broker/kafka"
	"github.com/arimarlgomes/KleinManager/internal/cache"
	"github.com/arimarlgomes/KleinManager/internal/cache/rediscache"
	"github.com/arimarlgomes/KleinManager/internal/integrations/carrier"
	"github.com/arimarlgomes/KleinManager/internal/integrations/carrier/dhlhttp"
	"github.com/arimarlgomes/KleinManager/internal/integrations/carrier/fake"
	"github.com/arimarlgomes/KleinManager/internal/integrations/carrier/hermeshttp"
	"github.com/arimarlgomes/KleinManager/internal/integrations/kleinanzeigen"
	"github.com/arimarlgomes/KleinManager/internal/jobs"
	"github.com/arimarlgomes/KleinManager/internal/services/orders"
	"github.com/arimarlgomes/KleinManager/internal/storage/pgorders"
	"github.com/arimarlgomes/KleinManager/internal/tracking"
)

type workerFactories struct {
	newStorage       func(cfg *config.Config) (repo orders.Repository, closeFn func(), err error)
	newProducer      func(cfg *config.Config) orders.Publisher
	newCache         func(cfg *config.Config) *rediscache.RedisCache
	newCarrierClient func(cfg *config.Config) carrier.Client
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (orders.Repository, func(), error) {
			st, err := pgorders.New(cfg.Database.ConnString())
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) orders.Publisher {
			return kafka.NewProducer(cfg.Kafka.Brokers())
		},
		newCache: func(cfg *config.Config) *rediscache.RedisCache {
			return rediscache.New(rediscache.Options{
				Addr:     cfg.Redis.Addr(),
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
		},
		newCarrierClient: func(cfg *config.Config) carrier.Client {
			if cfg.Klein.CarrierMode == "http" {
				return carrier.NewRegistry().
					Register(carrier.CodeDHL, dhlhttp.New(cfg.Klein.DHLBaseURL, cfg.Klein.DHLAPIKey)).
					Register(carrier.CodeHermes, hermeshttp.New(cfg.Klein.HermesBaseURL))
			}
			return fake.New()
		},
	}
}

func RunKleinWorker(ctx context.Context, cfg *config.Config, f workerFactories, onListen func(httpAddr string), swaggerPath string) error {
	schedule := cfg.Klein.WorkerRefreshSchedule
	if schedule == "" {
		schedule = "*/30 * * * *"
	}
	httpAddr := cfg.Klein.WorkerHTTPAddr
	if httpAddr == "" {
		httpAddr = ":8082"
	}
	throttle := time.Duration(cfg.Klein.WorkerThrottleMillis) * time.Millisecond
	if throttle <= 0 {
		throttle = time.Second
	}
	rlPerMin := int64(cfg.Klein.WorkerRateLimitPerMinute)
	if rlPerMin <= 0 {
		rlPerMin = 60
	}
	cacheTTL := time.Duration(cfg.Klein.OrderCacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}

	repo, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	rc := f.newCache(cfg)
	var bc cache.BytesCache
	if rc != nil {
		bc = rc
	}

	rec := tracking.NewReconciler(f.newCarrierClient(cfg)).
		WithThrottle(tracking.NewFixedDelay(throttle))
	if rc != nil {
		rec = rec.WithRateLimit(rc.Limiter(), rlPerMin)
	}

	svc := orders.New(repo, kleinanzeigen.New(), rec).
		WithPublisher(f.newProducer(cfg))
	if bc != nil {
		svc = svc.WithCache(bc, cacheTTL)
	}

	job := jobs.New(svc, schedule, slog.Default())
	if err := job.Start(); err != nil {
		return err
	}
	defer job.Stop()

	return runWorkerHTTPServer(ctx, workerHTTPOpts{
		httpAddr:    httpAddr,
		swaggerPath: swaggerPath,
		onListen:    onListen,
		job:         job,
		cfg:         cfg,
	})
}
