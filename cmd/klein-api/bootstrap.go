package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arimarlgomes/KleinManager/config"
	"github.com/arimarlgomes/KleinManager/internal/broker/kafka"
	"github.com/arimarlgomes/KleinManager/internal/cache/rediscache"
	"github.com/arimarlgomes/KleinManager/internal/integrations/carrier"
	"github.com/arimarlgomes/KleinManager/internal/integrations/carrier/dhlhttp"
	"github.com/arimarlgomes/KleinManager/internal/integrations/carrier/fake"
	"github.com/arimarlgomes/KleinManager/internal/integrations/carrier/hermeshttp"
	"github.com/arimarlgomes/KleinManager/internal/integrations/kleinanzeigen"
	"github.com/arimarlgomes/KleinManager/internal/services/orders"
	"github.com/arimarlgomes/KleinManager/internal/storage/pgorders"
	"github.com/arimarlgomes/KleinManager/internal/tracking"
	"github.com/spf13/pflag"
)

type kleinAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     kleinAPIOpts
	svc      *orders.Service
	consumer *kafka.Consumer
	closeDB  func()
}

func mustBootstrapKleinAPI() *kleinAPIApp {
	cfgPath := pflag.String("config", "", "path to the yaml config file (falls back to the configPath env var)")
	swPath := pflag.String("swagger", "", "path to swagger.json (falls back to the swaggerPath env var)")
	pflag.Parse()

	if *cfgPath == "" {
		*cfgPath = os.Getenv("configPath")
	}
	if *cfgPath == "" {
		panic("config path is required (--config or configPath env var)")
	}
	if *swPath == "" {
		*swPath = os.Getenv("swaggerPath")
	}
	if *swPath == "" {
		panic("swagger path is required (--swagger or swaggerPath env var)")
	}

	cfg, err := config.LoadConfig(*cfgPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	httpAddr := cfg.Klein.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.Klein.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "klein-api"
	}
	topic := cfg.Kafka.OrderTrackingUpdatedTopicName
	if topic == "" {
		topic = "order.tracking.updated"
	}

	cacheTTL := time.Duration(cfg.Klein.OrderCacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}

	st := mustOpenPostgresWithRetry(cfg.Database.ConnString(), 60*time.Second)

	rc := rediscache.New(rediscache.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	rec := tracking.NewReconciler(newCarrierClient(cfg))

	svc := orders.New(st, kleinanzeigen.New(), rec).
		WithCache(rc, cacheTTL).
		WithPublisher(kafka.NewProducer(cfg.Kafka.Brokers()))

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers(), topic, consumerGroup)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &kleinAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: kleinAPIOpts{
			httpAddr:      httpAddr,
			swaggerPath:   *swPath,
			topic:         topic,
			consumerGroup: consumerGroup,
		},
		svc:      svc,
		consumer: consumer,
		closeDB:  st.Close,
	}
}

func newCarrierClient(cfg *config.Config) carrier.Client {
	if cfg.Klein.CarrierMode == "http" {
		return carrier.NewRegistry().
			Register(carrier.CodeDHL, dhlhttp.New(cfg.Klein.DHLBaseURL, cfg.Klein.DHLAPIKey)).
			Register(carrier.CodeHermes, hermeshttp.New(cfg.Klein.HermesBaseURL))
	}
	return fake.New()
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgorders.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgorders.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *kleinAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *kleinAPIApp) Run() error {
	return runKleinAPI(a.ctx, a.opts, a.svc, a.consumer)
}
