package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	app := mustBootstrapKleinAPI()
	defer app.Close()

	if err := app.Run(); err != nil && err != context.Canceled {
		slog.Error("klein-api exited", "error", err.Error())
		os.Exit(1)
	}
}
