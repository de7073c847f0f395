package main

import (
	"context"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwebster45206/quest-engine/internal/config"
	"github.com/jwebster45206/quest-engine/internal/logger"
	"github.com/jwebster45206/quest-engine/internal/services"
	"github.com/jwebster45206/quest-engine/internal/services/events"
	"github.com/jwebster45206/quest-engine/internal/services/queue"
	"github.com/jwebster45206/quest-engine/internal/storage"
	"github.com/jwebster45206/quest-engine/internal/worker"
	"github.com/jwebster45206/quest-engine/pkg/textfilter"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Quest Engine Worker",
		"environment", cfg.Environment,
		"redis_url", cfg.RedisURL)

	// Initialize queue service
	queueClient, err := queue.NewClient(cfg.RedisURL, log)
	if err != nil {
		log.Error("Failed to create queue client", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			log.Error("Error closing queue client", "error", err)
		}
	}()

	interactionQueue := queue.NewInteractionQueue(queueClient)
	log.Info("Queue service initialized successfully")

	// Initialize storage service
	storageService, err := storage.NewRedisStorage(cfg.RedisURL, cfg.DataDir, log)
	if err != nil {
		log.Error("Failed to create storage", "error", err)
		os.Exit(1)
	}
	storageCtx, storageCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer storageCancel()

	if err := storageService.WaitForConnection(storageCtx); err != nil {
		log.Error("Failed to connect to storage", "error", err)
		os.Exit(1)
	}
	log.Info("Storage service initialized successfully")

	// Completion store: reads the completion facts the surrounding service
	// (and cmd/simulate) writes
	completions, err := storage.NewRedisCompletionStore(cfg.RedisURL, log)
	if err != nil {
		log.Error("Failed to create completion store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := completions.Close(); err != nil {
			log.Error("Error closing completion store", "error", err)
		}
	}()

	redisClient := queueClient.GetRedisClient()

	// Collaborators for the engines
	broadcaster := events.NewBroadcaster(redisClient, log)
	entityLedger := storage.NewEntityLedger(redisClient, log)
	filter := textfilter.ForRating(cfg.ContentRating)

	unlockEngine := services.NewUnlockEngine(
		storageService,
		completions,
		entityLedger,
		broadcaster,
		filter,
		cfg.UnlockSoftThreshold,
		log,
	)

	// Feedback generation is owned by the surrounding service; the engine
	// drops the signal when no generator is wired.
	progressEngine := services.NewProgressEngine(
		storageService,
		completions,
		broadcaster,
		nil,
		unlockEngine,
		log,
	)
	log.Info("Engines initialized successfully",
		"unlock_soft_threshold", cfg.UnlockSoftThreshold,
		"content_rating", cfg.ContentRating)

	processor := worker.NewInteractionProcessor(completions, progressEngine, log)

	// Create and start worker with processor
	w := worker.New(interactionQueue, processor, redisClient, log, os.Getenv("WORKER_ID"))

	// Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Start worker in goroutine
	go func() {
		if err := w.Start(); err != nil {
			log.Error("Worker error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("Worker started, waiting for interaction events...")

	// Wait for shutdown signal
	<-quit
	log.Info("Worker shutdown signal received")

	// Stop worker
	w.Stop()

	// Give worker time to finish the current event
	time.Sleep(2 * time.Second)

	log.Info("Worker exited")
}
