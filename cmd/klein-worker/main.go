package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/arimarlgomes/KleinManager/config"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

func main() {
	_ = godotenv.Load()

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

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := RunKleinWorker(ctx, cfg, defaultWorkerFactories(), nil, *swPath); err != nil && err != context.Canceled {
		panic(err)
	}
}
