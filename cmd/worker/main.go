package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"classpass/internal/anchor"
	"classpass/internal/attendance"
	"classpass/internal/config"
	"classpass/internal/queue"
	"classpass/internal/store"
)

// Worker consumes accepted-record messages and anchors each record's digest
// through the anchoring service, then writes the receipt back.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required for the worker")
	}
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	// The memory queue lives inside the API process, which drains it
	// itself; a separate worker can only consume from redis.
	if cfg.QueueBackend == "memory" {
		log.Fatal("QUEUE_BACKEND=memory has no cross-process queue; the api anchors in-process, set QUEUE_BACKEND=redis to run the worker")
	}
	q := queue.NewRedisQueue(redisClient.Client, "classpass:anchoring")

	repo := attendance.NewRepository(db.Client)
	anchorer := anchor.New(cfg.AnchorURL, cfg.AnchorSkip)

	if !cfg.AnchorSkip {
		if err := anchorer.Health(ctx); err != nil {
			log.Printf("WARNING: anchoring service not available: %v", err)
			log.Println("worker will retry anchoring as records arrive")
		} else {
			log.Println("anchoring service connected")
		}
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != "record" {
			continue
		}

		id := string(msg.Body)
		log.Printf("anchoring record %s", id)

		rec, err := repo.RecordByID(ctx, id)
		if err != nil {
			log.Printf("fetch record %s failed: %v", id, err)
			continue
		}

		receipt, err := anchorer.Submit(ctx, *rec)
		if err != nil {
			log.Printf("anchor submit failed for %s: %v", id, err)
			_ = repo.SetAnchor(ctx, id, "failed", "")
			continue
		}

		_ = repo.SetAnchor(ctx, id, "anchored", receipt.TxID)
		log.Printf("record %s anchored as %s", id, receipt.TxID)

		time.Sleep(10 * time.Millisecond) // small gap between submissions
	}

	log.Println("worker stopped")
}
