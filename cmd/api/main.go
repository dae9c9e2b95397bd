package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"civicledger.org/internal/civic"
	"civicledger.org/internal/classify"
	"civicledger.org/internal/config"
	"civicledger.org/internal/geo"
	"civicledger.org/internal/httpapi"
	"civicledger.org/internal/obs"
	"civicledger.org/internal/store/pg"
	"civicledger.org/internal/store/sqlite"
	"civicledger.org/internal/stream"
)

var (
	version = "0.6.2"
	commit  = "dev"
)

// defaultTiers mirrors ops/migrations/seeds for the sqlite and in-memory
// stores, which have no seed step.
var defaultTiers = []civic.RewardTier{
	{ID: "tier-starter", Name: "Civic Starter", MinCredits: 0, Description: "Joined the programme"},
	{ID: "tier-helper", Name: "Neighbourhood Helper", MinCredits: 25, Description: "First resolved reports in your area"},
	{ID: "tier-champion", Name: "Ward Champion", MinCredits: 100, Description: "Sustained reporting across a ward"},
	{ID: "tier-guardian", Name: "City Guardian", MinCredits: 250, Description: "Top contributor city-wide"},
}

func main() {
	configPath := flag.String("config", os.Getenv("CIVIC_CONFIG"), "Path to TOML config (optional)")
	flag.Parse()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	store, db, err := openStore(ctx, cfg)
	cancel()
	if err != nil {
		log.Fatalf("open store: %v", err)
	}

	geocoder := geo.NewNominatim(cfg.Geocode.BaseURL, cfg.GeocodeTimeout())
	svc := civic.NewService(store, classify.New(), geo.NewResolver(geocoder), nil, nil, cfg.Civic.OfficerDomain)

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, svc, stream.New())
	api.SetRateLimit(cfg.Security.RateLimitBurst, cfg.Security.RateLimitRPS)

	srv := &http.Server{
		Addr:              cfg.Listen.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting civicledger-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}

// openStore picks the backing store: Postgres when a DSN is configured,
// sqlite when a path is, in-memory otherwise. The returned *sql.DB (nil for
// in-memory) feeds the readiness probe and is closed on shutdown.
func openStore(ctx context.Context, cfg config.Config) (civic.Store, *sql.DB, error) {
	switch {
	case cfg.Store.PostgresDSN != "":
		st, err := pg.Open(cfg.Store.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := st.DB().PingContext(ctx); err != nil {
			log.Printf("postgres not reachable yet: %v", err)
		}
		return st, st.DB(), nil
	case cfg.Store.SQLitePath != "":
		st, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := st.SeedTiers(ctx, defaultTiers); err != nil {
			return nil, nil, err
		}
		return st, st.DB(), nil
	default:
		mem := civic.NewInMemory()
		mem.SeedTiers(defaultTiers)
		log.Println("no store configured, using in-memory state")
		return mem, nil, nil
	}
}
