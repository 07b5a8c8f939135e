package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/victornm/equiz-client/internal/client"
	"github.com/victornm/equiz-client/internal/config"
)

func main() {
	c, err := loadConfig()
	if err != nil {
		log.Fatalf("Load config failed: %v", err)
	}

	cl, err := client.Init(c)
	if err != nil {
		log.Fatalf("Init client failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
	defer stop()

	if err := cl.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("Run client failed: %v", err)
	}

	cl.Shutdown()
}

func loadConfig() (client.Config, error) {
	var c client.Config

	p := os.Getenv("CONFIG_PATH")
	if p == "" {
		return c, fmt.Errorf("CONFIG_PATH not set")
	}

	if err := config.Load(p, &c); err != nil {
		return c, fmt.Errorf("load config: %w", err)
	}

	return c, nil
}
