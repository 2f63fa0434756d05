package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	_ "go.uber.org/automaxprocs"

	"github.com/cori/video-analysis-pipeline/internal/api"
	"github.com/cori/video-analysis-pipeline/internal/config"
	"github.com/cori/video-analysis-pipeline/internal/crawler"
	"github.com/cori/video-analysis-pipeline/internal/database"
	"github.com/cori/video-analysis-pipeline/internal/events"
	"github.com/cori/video-analysis-pipeline/internal/service"
	"github.com/cori/video-analysis-pipeline/internal/sidecar"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (default config/default.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := api.NewHub()

	orchestrator, ollama, err := service.BuildOrchestrator(cfg, hub)
	if err != nil {
		log.Fatal("Failed to initialize pipeline:", err)
	}

	db, err := database.NewDB(service.DatabaseConfig(cfg))
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer db.Close()

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.NATS.URL != "" {
		nc, err := events.Connect(cfg.NATS.URL)
		if err != nil {
			log.Printf("Warning: NATS unavailable, completion events disabled: %v", err)
		} else {
			defer nc.Close()
			publisher = events.NewNATSPublisher(nc, cfg.NATS.Subject, 3)
			log.Printf("Publishing completion events to %s (subject %s.*)", cfg.NATS.URL, cfg.NATS.Subject)
		}
	}

	svc := service.NewService(service.Dependencies{
		Runner:    orchestrator,
		History:   database.NewRunRepository(db),
		Publisher: publisher,
		Health:    ollama,
	}, service.Config{
		Model:         cfg.Ollama.Model,
		HealthTimeout: service.HealthTimeout(cfg),
	})

	var crawl *crawler.Crawler
	if cfg.Crawler.Enabled {
		queue, closeQueue, err := newQueue(ctx, cfg)
		if err != nil {
			log.Fatal("Failed to initialize crawl queue:", err)
		}
		defer closeQueue()

		crawl = crawler.New(crawler.Config{
			Root:            cfg.Crawler.Root,
			Interval:        cfg.Crawler.Interval(),
			Pause:           cfg.Crawler.Pause(),
			Watch:           cfg.Crawler.Watch,
			FailureCooldown: cfg.Crawler.FailureCooldown(),
		}, queue, svc, sidecar.NewFileRepository().Exists)
		svc.SetCrawler(crawl)
		crawl.Start(ctx)
	}

	app := &api.App{
		Service: svc,
		Hub:     hub,
		Name:    "fpv-video-analyzer",
		Version: cfg.AppVersion,
	}

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.NewRouter(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Server starting on %s", cfg.Addr())
		log.Printf("Ollama: %s (model %s)", cfg.Ollama.Host, cfg.Ollama.Model)
		log.Printf("Database type: %s", cfg.Database.Type)
		if cfg.Crawler.Enabled {
			log.Printf("Crawler: root=%s queue=%s", cfg.Crawler.Root, cfg.Crawler.Queue)
		} else {
			log.Printf("Crawler disabled")
		}
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if crawl != nil {
		crawl.Stop()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Graceful shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

func newQueue(ctx context.Context, cfg *config.Config) (crawler.Queue, func(), error) {
	if cfg.Crawler.Queue != "redis" {
		return crawler.NewMemoryQueue(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, err
	}
	log.Printf("Crawl queue in redis at %s", cfg.Redis.Addr)
	return crawler.NewRedisQueue(rdb, cfg.Redis.Prefix), func() { rdb.Close() }, nil
}
