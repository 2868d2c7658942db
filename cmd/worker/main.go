package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"docpack/internal/config"
	"docpack/internal/queue"
	"docpack/internal/storage"
	"docpack/internal/telemetry"
	"docpack/internal/worker"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	blob, err := storage.New(ctx, cfg)
	if err != nil {
		log.Fatalf("init storage: %v", err)
	}

	renderer, err := worker.NewExecRenderer(cfg.RunnerCommand)
	if err != nil {
		log.Fatalf("init renderer: %v", err)
	}

	q := queue.New(cfg)
	gw := worker.NewGatewayClient(cfg)
	orch := worker.NewOrchestrator(cfg, q, blob, gw, renderer)

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	log.Printf("worker started visibility=%s poll=%s", cfg.VisibilityTimeout, cfg.WorkerPollInterval)
	if err := orch.Run(ctx); err != nil {
		log.Printf("worker stopped: %v", err)
	}
}
