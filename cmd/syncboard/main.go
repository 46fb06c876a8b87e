package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"syncboard/internal/app"
	"syncboard/internal/config"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	configPath := os.Getenv("SYNCBOARD_CONFIG_FILE")
	cfg := config.LoadConfigWithPrecedence(configPath)

	application, err := app.NewApplication(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		return err
	}

	log.Printf("Syncboard listening on %s", application.GetAddr())
	log.Printf("WebSocket endpoint: ws://%s/ws", application.GetAddr())
	log.Printf("Monitoring API: http://%s/api/rooms", application.GetAddr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Received signal %v, shutting down", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	return application.Stop(shutdownCtx)
}
