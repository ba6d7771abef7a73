package main

import (
	"LendView/internal/archive"
	"LendView/internal/assets"
	"LendView/internal/chain"
	"LendView/internal/guard"
	"LendView/internal/history"
	"LendView/internal/observability"
	"LendView/internal/publish"
	"LendView/internal/server"
	"LendView/internal/session"
	"context"
	"database/sql"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Config holds all application configuration, loaded from environment
// variables.
type Config struct {
	// Chain
	RPCEndpoint string
	PoolAddr    string
	OracleAddr  string

	// Sessions
	RefreshInterval time.Duration
	HistoryCapacity int

	// Borrow guard, a 1e18-scaled decimal like "1.1"
	MinBorrowHealthFactor string

	// Asset registry TOML. Empty selects the built-in table.
	AssetsFile string

	// HTTP/Metrics
	HTTPAddr    string
	MetricsAddr string

	// Optional downstream sinks. Empty disables the corresponding sink.
	PostgresURL string
	NATSURL     string

	// Archive batching
	ArchiveBatchSize    int
	ArchiveFlushTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		RPCEndpoint:           envOrDefault("LENDVIEW_RPC_URL", "ws://localhost:8546"),
		PoolAddr:              envOrDefault("LENDVIEW_POOL_ADDR", ""),
		OracleAddr:            envOrDefault("LENDVIEW_ORACLE_ADDR", ""),
		RefreshInterval:       time.Duration(envIntOrDefault("LENDVIEW_REFRESH_INTERVAL_SECONDS", 15)) * time.Second,
		HistoryCapacity:       envIntOrDefault("LENDVIEW_HISTORY_CAPACITY", history.DefaultCapacity),
		MinBorrowHealthFactor: envOrDefault("LENDVIEW_MIN_BORROW_HEALTH_FACTOR", "1.1"),
		AssetsFile:            envOrDefault("LENDVIEW_ASSETS_FILE", ""),
		HTTPAddr:              envOrDefault("LENDVIEW_HTTP_ADDR", ":8080"),
		MetricsAddr:           envOrDefault("LENDVIEW_METRICS_ADDR", ":9091"),
		PostgresURL:           envOrDefault("LENDVIEW_POSTGRES_DSN", ""),
		NATSURL:               envOrDefault("LENDVIEW_NATS_URL", ""),
		ArchiveBatchSize:      envIntOrDefault("LENDVIEW_ARCHIVE_BATCH_SIZE", 50),
		ArchiveFlushTimeout:   500 * time.Millisecond,
	}
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("INFO: LendView starting...")

	cfg := DefaultConfig()

	if !common.IsHexAddress(cfg.PoolAddr) {
		log.Fatalf("FATAL: LENDVIEW_POOL_ADDR missing or invalid: %q", cfg.PoolAddr)
	}
	if !common.IsHexAddress(cfg.OracleAddr) {
		log.Fatalf("FATAL: LENDVIEW_ORACLE_ADDR missing or invalid: %q", cfg.OracleAddr)
	}
	pool := common.HexToAddress(cfg.PoolAddr)
	oracle := common.HexToAddress(cfg.OracleAddr)

	minHF, err := parseHealthFactor(cfg.MinBorrowHealthFactor)
	if err != nil {
		log.Fatalf("FATAL: LENDVIEW_MIN_BORROW_HEALTH_FACTOR: %v", err)
	}

	// --- Context with graceful shutdown ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Observability ---
	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker()
	zlog := observability.NewLogger("lendview")

	// --- Chain connection ---
	client, err := chain.Dial(cfg.RPCEndpoint)
	if err != nil {
		log.Fatalf("FATAL: rpc dial: %v", err)
	}
	defer client.Close()
	log.Printf("INFO: RPC connected (%s)", cfg.RPCEndpoint)

	reader, err := chain.NewEthReader(client, pool, oracle, metrics)
	if err != nil {
		log.Fatalf("FATAL: build reader: %v", err)
	}

	watcher, err := chain.NewWatcher(client, pool, metrics)
	if err != nil {
		log.Fatalf("FATAL: build watcher: %v", err)
	}

	// --- Asset registry ---
	var registry *assets.Registry
	if cfg.AssetsFile != "" {
		registry, err = assets.LoadRegistry(cfg.AssetsFile)
		if err != nil {
			log.Fatalf("FATAL: load asset registry: %v", err)
		}
		log.Printf("INFO: asset registry loaded from %s (%d assets)", cfg.AssetsFile, registry.Len())
	} else {
		registry = assets.DefaultRegistry()
		log.Printf("INFO: built-in asset registry (%d assets)", registry.Len())
	}

	// Cross-check the static registry against the pool's reserve list so a
	// stale config surfaces at startup instead of as missing UI entries.
	reconcileCtx, reconcileCancel := context.WithTimeout(ctx, 10*time.Second)
	onchain, err := reader.SupportedAssets(reconcileCtx)
	reconcileCancel()
	if err != nil {
		log.Printf("WARN: could not read pool reserve list: %v", err)
	} else {
		unlisted, stale := registry.Reconcile(onchain)
		for _, addr := range unlisted {
			log.Printf("WARN: pool reserve %s is not in the asset registry", addr.Hex())
		}
		for _, addr := range stale {
			log.Printf("WARN: registry asset %s (%s) is not supported by the pool", registry.Symbol(addr), addr.Hex())
		}
	}

	// --- Borrow guard ---
	g := guard.NewGuard(zlog, minHF)

	errChan := make(chan error, 10)

	// --- Optional history sinks ---
	var sinks []history.RecordSink

	if cfg.PostgresURL != "" {
		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			log.Fatalf("FATAL: postgres open: %v", err)
		}
		defer db.Close()

		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			log.Fatalf("FATAL: postgres ping: %v", err)
		}
		if _, err := db.ExecContext(ctx, archive.Schema); err != nil {
			log.Fatalf("FATAL: apply archive schema: %v", err)
		}
		log.Println("INFO: Postgres connected, archive enabled")

		writer := archive.NewWriter(db, cfg.ArchiveBatchSize, cfg.ArchiveFlushTimeout, metrics, zlog)
		go func() {
			errChan <- writer.Run(ctx)
		}()
		sinks = append(sinks, writer)
	} else {
		log.Println("INFO: LENDVIEW_POSTGRES_DSN not set, archive disabled")
	}

	if cfg.NATSURL != "" {
		nc, js, err := publish.Connect(cfg.NATSURL, zlog)
		if err != nil {
			log.Fatalf("FATAL: nats connect: %v", err)
		}
		defer nc.Close()

		if err := publish.EnsureHistoryStream(ctx, js); err != nil {
			log.Fatalf("FATAL: ensure history stream: %v", err)
		}
		log.Println("INFO: NATS connected, history publishing enabled")

		publisher := publish.NewPublisher(js, metrics, zlog)
		go func() {
			errChan <- publisher.Run(ctx)
		}()
		sinks = append(sinks, publisher)
	} else {
		log.Println("INFO: LENDVIEW_NATS_URL not set, history publishing disabled")
	}

	// --- Session manager ---
	sessions := session.NewManager(reader, watcher, registry, g, metrics, zlog, session.Options{
		RefreshInterval: cfg.RefreshInterval,
		HistoryCapacity: cfg.HistoryCapacity,
		Sinks:           sinks,
	})
	defer sessions.CloseAll()

	// --- HTTP API ---
	srv := server.New(sessions, reader, registry, healthChecker, metrics, zlog)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: srv.Router(),
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server: %w", err)
		}
	}()

	// --- Prometheus metrics server ---
	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: metricsMux,
		}
		go func() {
			<-ctx.Done()
			shutCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
			defer c()
			metricsServer.Shutdown(shutCtx)
		}()
		log.Printf("INFO: Metrics server listening on %s/metrics", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	healthChecker.SetReady(true)

	log.Printf("INFO: LendView ready (http=%s, metrics=%s, refresh=%s)",
		cfg.HTTPAddr, cfg.MetricsAddr, cfg.RefreshInterval)

	// --- Wait for shutdown signal ---
	select {
	case sig := <-sigChan:
		log.Printf("INFO: received signal %s, shutting down...", sig)
	case err := <-errChan:
		log.Printf("ERROR: goroutine failed: %v, shutting down...", err)
	}

	// --- Graceful shutdown ---
	healthChecker.SetReady(false)
	sessions.CloseAll()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("ERROR: http shutdown: %v", err)
	}

	log.Println("INFO: LendView shutdown complete")
}

// parseHealthFactor converts a decimal string like "1.1" to the 1e18-scaled
// form the guard expects.
func parseHealthFactor(raw string) (*big.Int, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", raw, err)
	}
	if d.Sign() <= 0 {
		return nil, fmt.Errorf("must be positive, got %q", raw)
	}
	return d.Shift(18).Truncate(0).BigInt(), nil
}

// --- Helpers ---

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var i int
	if _, err := fmt.Sscanf(v, "%d", &i); err != nil {
		return defaultVal
	}
	return i
}
