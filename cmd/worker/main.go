package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/ignite/campaign-engine/internal/config"
	"github.com/ignite/campaign-engine/internal/events"
	"github.com/ignite/campaign-engine/internal/queue"
	"github.com/ignite/campaign-engine/internal/scheduler"
	"github.com/ignite/campaign-engine/internal/ses"
	"github.com/ignite/campaign-engine/internal/sparkpost"
	"github.com/ignite/campaign-engine/internal/suppression"
	"github.com/ignite/campaign-engine/internal/worker"
)

func main() {
	log.Println("Starting dispatch worker...")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.LoadFromEnv(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifeMins) * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("ping database: %v", err)
	}
	log.Println("Connected to database")

	provider, err := buildProvider(cfg)
	if err != nil {
		log.Fatalf("provider: %v", err)
	}
	log.Printf("Using provider: %s", cfg.Providers.Active)

	w := worker.New(
		queue.NewStore(db),
		suppression.NewLedger(db),
		provider,
		scheduler.NewRules(cfg.Scheduling),
		worker.Config{
			BatchSize:    cfg.Worker.BatchSize,
			PollInterval: cfg.Worker.PollInterval(),
			SendTimeout:  cfg.Worker.SendTimeout(),
		},
	)
	if err := w.Start(); err != nil {
		log.Fatalf("start worker: %v", err)
	}

	replyCtx, stopReplies := context.WithCancel(context.Background())
	if cfg.Replies.Enabled && cfg.Replies.Maildir != "" {
		detector := events.NewReplyDetector(events.NewMaildirSource(cfg.Replies.Maildir), queue.NewStore(db))
		go detector.Run(replyCtx, cfg.Replies.PollInterval())
		log.Printf("Reply detection polling %s", cfg.Replies.Maildir)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	stopReplies()
	w.Stop()

	sent, failed := w.Stats()
	log.Printf("Worker stopped (sent=%d failed=%d)", sent, failed)
}

func buildProvider(cfg *config.Config) (worker.Provider, error) {
	switch cfg.Providers.Active {
	case "ses":
		return ses.NewSender(context.Background(), cfg.SES)
	default:
		return sparkpost.NewClient(cfg.SparkPost), nil
	}
}
