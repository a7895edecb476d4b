package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/MirrorDNA-Reflection-Protocol/ActiveMirrorOS/internal/router"
	"github.com/MirrorDNA-Reflection-Protocol/ActiveMirrorOS/internal/router/backends"
	"github.com/MirrorDNA-Reflection-Protocol/ActiveMirrorOS/internal/router/cache"
	"github.com/MirrorDNA-Reflection-Protocol/ActiveMirrorOS/internal/router/handlers"
	"github.com/MirrorDNA-Reflection-Protocol/ActiveMirrorOS/internal/router/metrics"
	"github.com/MirrorDNA-Reflection-Protocol/ActiveMirrorOS/internal/router/ratelimit"
	"github.com/MirrorDNA-Reflection-Protocol/ActiveMirrorOS/internal/router/tiers"
	"github.com/MirrorDNA-Reflection-Protocol/ActiveMirrorOS/internal/shared/config"
	"github.com/MirrorDNA-Reflection-Protocol/ActiveMirrorOS/internal/shared/database"
	"github.com/MirrorDNA-Reflection-Protocol/ActiveMirrorOS/internal/shared/redis"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	log.Infof("Starting ActiveMirror inference router on port %s (default tier: %s)", cfg.Port, cfg.DefaultTier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cache database also backs the rate limiter, which needs SQLite
	// transactions even when the response cache itself lives in Redis.
	cacheDB, err := database.OpenSQLite(cfg.CacheDBPath)
	if err != nil {
		log.Fatalf("Failed to open cache database: %v", err)
	}
	defer cacheDB.Close()

	var store cache.Store
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = redis.New(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		store = cache.NewRedisStore(redisClient)
		log.Info("✓ Connected to Redis cache")
	} else {
		store, err = cache.NewSQLiteStore(cacheDB)
		if err != nil {
			log.Fatalf("Failed to initialize cache: %v", err)
		}
		log.Infof("✓ Initialized SQLite cache (%s)", cfg.CacheDBPath)
	}

	limiter, err := ratelimit.New(cacheDB)
	if err != nil {
		log.Fatalf("Failed to initialize rate limiter: %v", err)
	}
	log.Infof("✓ Initialized rate limiter (%d/hour, %d frontier/day)", cfg.CallsPerHourPerIP, cfg.FrontierPerDayPerIP)

	var recorder metrics.Recorder
	if cfg.MetricsDatabaseURL != "" {
		metricsDB, err := database.OpenPostgres(cfg.MetricsDatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to metrics database: %v", err)
		}
		recorder, err = metrics.NewPostgresRecorder(metricsDB)
		if err != nil {
			log.Fatalf("Failed to initialize metrics: %v", err)
		}
		log.Info("✓ Connected to PostgreSQL metrics")
	} else {
		metricsDB, err := database.OpenSQLite(cfg.MetricsDBPath)
		if err != nil {
			log.Fatalf("Failed to open metrics database: %v", err)
		}
		recorder, err = metrics.NewSQLiteRecorder(metricsDB)
		if err != nil {
			log.Fatalf("Failed to initialize metrics: %v", err)
		}
		log.Infof("✓ Initialized SQLite metrics (%s)", cfg.MetricsDBPath)
	}
	defer recorder.Close()

	registry := tiers.NewRegistry()
	if cfg.TiersConfigPath != "" {
		if err := registry.LoadOverrides(cfg.TiersConfigPath); err != nil {
			log.Fatalf("Failed to load tier overrides: %v", err)
		}
		log.Infof("✓ Loaded tier overrides from %s", cfg.TiersConfigPath)
	}

	manager := backends.NewManager(cfg)
	log.Infof("✓ Initialized backends (ollama: %s, groq: %t, openai: %t, deepseek: %t, mistral: %t)",
		cfg.OllamaURL,
		cfg.GroqAPIKey != "",
		cfg.OpenAIAPIKey != "",
		cfg.DeepSeekAPIKey != "",
		cfg.MistralAPIKey != "")

	rt := router.New(store, limiter, recorder, manager, registry, cfg)
	chatHandler := handlers.NewChatHandler(rt)
	statusHandler := handlers.NewStatusHandler(manager, recorder, registry, cfg)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(handlers.CORS)

	r.Post("/api/chat", chatHandler.HandleChat)
	r.Get("/api/status", statusHandler.HandleStatus)
	r.Get("/api/tiers", statusHandler.HandleTiers)
	r.Get("/api/transparency", statusHandler.HandleTransparency)
	r.Get("/health", statusHandler.HandleHealth)

	// A chat request can walk the whole fallback chain, each hop with
	// its own timeout, so the write timeout stays well above one hop.
	srv := &http.Server{
		Addr:         cfg.Host + ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 5 * cfg.RequestTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Infof("🚀 Router listening on http://%s:%s (daily frontier budget: $%.2f)", cfg.Host, cfg.Port, cfg.DailyFrontierBudgetUSD)
		log.Info("   POST /api/chat         - Route an inference request")
		log.Info("   GET  /api/status       - Runtime status and usage stats")
		log.Info("   GET  /api/tiers        - Tier catalog")
		log.Info("   GET  /api/transparency - Per-tier data flow disclosure")
		log.Info("   GET  /health           - Health check")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server shutdown error: %v", err)
	}

	log.Info("Router stopped")
}
