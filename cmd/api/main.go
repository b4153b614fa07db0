package main

import (
	"context"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/meerkat-ai/gateway/internal/billing"
	"github.com/meerkat-ai/gateway/internal/cache"
	"github.com/meerkat-ai/gateway/internal/checks"
	"github.com/meerkat-ai/gateway/internal/circuitbreaker"
	"github.com/meerkat-ai/gateway/internal/config"
	"github.com/meerkat-ai/gateway/internal/core"
	"github.com/meerkat-ai/gateway/internal/database"
	"github.com/meerkat-ai/gateway/internal/handlers"
	"github.com/meerkat-ai/gateway/internal/kb"
	"github.com/meerkat-ai/gateway/internal/metrics"
	"github.com/meerkat-ai/gateway/internal/middleware"
	"github.com/meerkat-ai/gateway/internal/policy"
	"github.com/meerkat-ai/gateway/internal/session"
	"github.com/meerkat-ai/gateway/internal/shield"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	var cfg *config.Config
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			log.Fatalf("Failed to load config %s: %v", path, err)
		}
		cfg = loaded
	} else {
		cfg = config.Load()
	}

	store := buildStore(cfg)
	readCache := buildCache(cfg)

	breakers := circuitbreaker.NewManager(nil)
	mets := metrics.New(prometheus.DefaultRegisterer)

	panel := checks.NewPanel(
		checks.NewClient(breakers),
		checks.ServiceURLs{
			NLI:        cfg.Services.NLI,
			Entropy:    cfg.Services.Entropy,
			Preference: cfg.Services.Preference,
			Claims:     cfg.Services.Claims,
			Numerical:  cfg.Services.Numerical,
		},
		rand.New(rand.NewSource(time.Now().UnixNano())),
	)
	panel.Observe = mets.RecordCheckDuration

	var retriever *kb.Retriever
	if cfg.Services.Embedder != "" {
		retriever = kb.NewRetriever(store, kb.NewHTTPEmbedder(cfg.Services.Embedder))
	} else {
		log.Printf("[BOOT] no embedder configured, knowledge-base mode disabled")
	}

	deps := handlers.Deps{
		Store:     store,
		Policies:  policy.NewService(store, readCache),
		Sessions:  session.NewManager(store),
		Panel:     panel,
		Retriever: retriever,
		Metrics:   mets,
		Breakers:  breakers,
		ShieldDefaults: shield.Options{
			AggregateLowSignals: cfg.Shield.AggregateLowSignals,
		},
	}

	limiter := middleware.NewRateLimiter()
	defer limiter.Stop()

	var billingHook *billing.Webhook
	if cfg.Billing.WebhookSecret != "" {
		billingHook = billing.NewWebhook(store, cfg.Billing.WebhookSecret)
	} else {
		log.Printf("[BOOT] no billing webhook secret configured, webhook disabled")
	}

	router := handlers.NewRouter(deps, limiter, billingHook)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Received shutdown signal, shutting down gracefully...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("[BOOT] Meerkat gateway starting on port %s", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed to start: %v", err)
	}
	log.Println("Server stopped")
}

// buildStore prefers Postgres; without DATABASE_URL the gateway runs on
// the in-memory store (local development only, nothing survives a
// restart).
func buildStore(cfg *config.Config) database.Store {
	if cfg.Database.URL == "" {
		log.Printf("[BOOT] DATABASE_URL not set, using in-memory store")
		store := database.NewMemoryStore()
		seedDevTenant(store)
		return store
	}
	store, err := database.NewPostgresStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	return store
}

func buildCache(cfg *config.Config) cache.Cache {
	if cfg.Cache.RedisAddr == "" {
		return cache.NewMemoryCache()
	}
	c, err := cache.NewRedisCache(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, 0)
	if err != nil {
		log.Printf("[BOOT] Redis unavailable (%v), falling back to in-memory cache", err)
		return cache.NewMemoryCache()
	}
	return c
}

// seedDevTenant provisions a known tenant and key so local runs work
// out of the box. The key is mk_dev_local.
func seedDevTenant(store *database.MemoryStore) {
	ctx := context.Background()
	tenant := &core.Tenant{
		ID:        "ten_dev",
		Name:      "Local Development",
		Plan:      core.PlanEnterprise,
		Domain:    core.DomainGeneral,
		CreatedAt: time.Now().UTC(),
	}
	if err := store.CreateTenant(ctx, tenant); err != nil {
		log.Printf("[BOOT] dev tenant seed failed: %v", err)
		return
	}
	cred := &core.Credential{
		ID:        core.NewCredentialID(),
		TenantID:  tenant.ID,
		Prefix:    "mk_dev",
		KeyHash:   middleware.HashKey("mk_dev_local"),
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := store.CreateCredential(ctx, cred); err != nil {
		log.Printf("[BOOT] dev credential seed failed: %v", err)
	}
}
