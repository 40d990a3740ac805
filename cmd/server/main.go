package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"depotpos/backend/internal/catalog"
	catmemory "depotpos/backend/internal/catalog/memory"
	catpostgres "depotpos/backend/internal/catalog/postgres"
	"depotpos/backend/internal/config"
	"depotpos/backend/internal/draft"
	"depotpos/backend/internal/httpapi"
	"depotpos/backend/internal/service"
	"depotpos/backend/internal/session"
)

func main() {
	if err := godotenv.Load(); err == nil {
		log.Println("loaded .env")
	}
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 2)

	var cat catalog.Client
	switch {
	case cfg.CatalogBaseURL != "":
		cat = catalog.NewHTTPClient(cfg.CatalogBaseURL, 10*time.Second)
		log.Println("catalog: distributor API")
	case cfg.DatabaseURL != "":
		pg, err := catpostgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			log.Fatalf("migrating catalog mirror: %v", err)
		}
		cat = pg
		closers = append(closers, pg.Close)
		log.Println("catalog: postgres mirror")
	default:
		cat = catmemory.NewSeeded()
		log.Println("catalog: in-memory (seeded)")
	}

	sessionTTL := time.Duration(cfg.SessionTTLMinutes) * time.Minute

	var drafts draft.Store = draft.NewMemoryStore()
	if cfg.RedisAddr != "" {
		redisStore := draft.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, sessionTTL)
		if err := redisStore.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using in-memory draft store", err)
		} else {
			drafts = redisStore
			closers = append(closers, redisStore.Close)
			log.Println("drafts: redis")
		}
	} else {
		log.Println("drafts: in-memory")
	}

	opts := session.Options{
		AutosaveDelay:  time.Duration(cfg.AutosaveDebounceMS) * time.Millisecond,
		SettleDelay:    time.Duration(cfg.StockSettleDelayMS) * time.Millisecond,
		TaxRatePercent: cfg.TaxRatePercent,
	}
	svc := service.New(cat, drafts, opts, cfg.SessionSecret, sessionTTL)
	api := httpapi.New(svc, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("POS session backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}
