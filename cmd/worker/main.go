package main

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/postcard/backend/internal/application/dispatch"
	"github.com/postcard/backend/internal/bootstrap"
	"github.com/postcard/backend/internal/infrastructure/config"
	"github.com/postcard/backend/internal/infrastructure/taskqueue"
	"go.uber.org/zap"
)

// The worker runs campaign dispatches taken from the AMQP queue. The API
// server publishes to it when queue.enabled is set.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := bootstrap.NewLogger(cfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	if !cfg.Queue.Enabled {
		log.Error("queue.enabled is false; the API server runs dispatches in process")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	core, err := bootstrap.New(ctx, cfg, log)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := core.Close(closeCtx); err != nil {
			log.Error("Error releasing resources", zap.Error(err))
		}
	}()
	if err != nil {
		log.Error("Failed to initialize", zap.Error(err))
		return
	}
	log = core.Logger

	workers := cfg.Dispatch.Workers
	log.Info("Starting dispatch worker",
		zap.String("queue", cfg.Queue.QueueName),
		zap.Int("consumers", workers),
	)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		consumer, err := taskqueue.NewConsumer(cfg.Queue, core.Orchestrator,
			taskqueue.WithConsumerLogger(log.With(zap.Int("consumer", i))),
			taskqueue.WithConsumerRetryPolicy(dispatch.Retryable),
		)
		if err != nil {
			log.Error("Failed to connect consumer", zap.Int("consumer", i), zap.Error(err))
			stop()
			break
		}
		wg.Add(1)
		go func(id int, c *taskqueue.Consumer) {
			defer wg.Done()
			defer func() { _ = c.Close() }()
			if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Consumer stopped", zap.Int("consumer", id), zap.Error(err))
				// A lost broker connection stops the whole worker so the
				// supervisor can restart it
				stop()
			}
		}(i, consumer)
	}

	wg.Wait()
	log.Info("Worker exited")
}
