package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"solana-burn-engine/internal/allocation"
	"solana-burn-engine/internal/attribution"
	"solana-burn-engine/internal/config"
	"solana-burn-engine/internal/dlq"
	"solana-burn-engine/internal/domain"
	"solana-burn-engine/internal/history"
	"solana-burn-engine/internal/observability"
	"solana-burn-engine/internal/orchestrator"
	"solana-burn-engine/internal/solana"
	"solana-burn-engine/internal/storage"
	chstore "solana-burn-engine/internal/storage/clickhouse"
	"solana-burn-engine/internal/storage/file"
	"solana-burn-engine/internal/storage/memory"
	"solana-burn-engine/internal/storage/migrations"
	pgstore "solana-burn-engine/internal/storage/postgres"
	"solana-burn-engine/internal/validator"
	"solana-burn-engine/internal/watcher"
)

func main() {
	configPath := flag.String("config", "engine.toml", "Path to TOML config file")
	rpcEndpoint := flag.String("rpc-endpoint", "", "Solana RPC HTTP endpoint (overrides config)")
	wsEndpoint := flag.String("ws-endpoint", "", "Solana WebSocket endpoint (overrides config)")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string for DLQ and history")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string for fee analytics")
	dataDir := flag.String("data-dir", "data", "Directory for file-backed DLQ and history stores")
	cycleInterval := flag.Duration("cycle-interval", 0, "Cycle pass interval (overrides config)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory stores instead of files or PostgreSQL")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")

	flag.Parse()

	logger := log.New(os.Stdout, "[engine] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Load config: %v", err)
	}
	if *rpcEndpoint != "" {
		cfg.RPC.HTTPEndpoint = *rpcEndpoint
	}
	if *wsEndpoint != "" {
		cfg.RPC.WSEndpoint = *wsEndpoint
	}

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, logger, cfg, *postgresDSN, *clickhouseDSN, *dataDir, *cycleInterval, *useMemory)

	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Error: %v", err)
	}
	logger.Println("Shutdown complete")
}

func run(ctx context.Context, logger *log.Logger, cfg *config.Config, postgresDSN, clickhouseDSN, dataDir string, cycleInterval time.Duration, useMemory bool) error {
	rpc := solana.NewHTTPClient(cfg.RPC.HTTPEndpoint, solana.WithMaxRetries(cfg.RPC.MaxRetries))

	ws, err := solana.NewWSClient(ctx, cfg.RPC.WSEndpoint, nil)
	if err != nil {
		return fmt.Errorf("create websocket client: %w", err)
	}
	defer ws.Close()

	// Store selection: memory for tests and dry runs, files by default,
	// postgres when a DSN is given.
	var dlqStore storage.DeadLetterStore = memory.NewDeadLetterStore()
	var historyStore storage.HistoryStore = memory.NewHistoryStore()
	var feeStore storage.FeeEventStore

	switch {
	case useMemory:
		logger.Println("Using in-memory stores")
	case postgresDSN != "":
		pool, err := pgstore.NewPool(ctx, postgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("run postgres migrations: %w", err)
		}
		dlqStore = pgstore.NewDeadLetterStore(pool)
		historyStore = pgstore.NewHistoryStore(pool)
		logger.Println("Using postgres stores")
	default:
		dlqStore = file.NewDeadLetterStore(filepath.Join(dataDir, "dead_letters.jsonl"))
		fileHistory := file.NewHistoryStore(filepath.Join(dataDir, "history.jsonl"))
		defer fileHistory.Close()
		historyStore = fileHistory
		logger.Printf("Using file stores under %s", dataDir)
	}

	if clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			return fmt.Errorf("run clickhouse migrations: %w", err)
		}
		defer conn.Close()
		feeStore = chstore.NewFeeEventStore(conn)
		logger.Println("Fee analytics store enabled")
	}

	ledger, err := history.NewLedger(ctx, historyStore)
	if err != nil {
		return fmt.Errorf("open history ledger: %w", err)
	}
	att := ledger.Attestation()
	logger.Printf("History chain at sequence %d (%s)", att.Sequence, shortHash(att.LatestHash))

	registry := attribution.NewRegistry(0)
	sources := make([]allocation.AssetFeeSource, 0, len(cfg.Assets))
	for _, a := range cfg.Assets {
		registry.Register(domain.AssetRecord{
			AssetID:        a.AssetID,
			DisplayName:    a.DisplayName,
			CausingAccount: a.FeeAccount,
		})
		sources = append(sources, allocation.AssetFeeSource{
			AssetID:    a.AssetID,
			FeeAccount: a.FeeAccount,
			IsPrimary:  a.IsPrimary,
		})
	}

	resolver := attribution.NewResolver(attribution.Options{
		RPC:      rpc,
		Registry: registry,
		Ledger:   ledger,
		Events:   feeStore,
	})

	vaults := []watcher.VaultConfig{
		{AccountID: cfg.Vaults.Primary, Kind: domain.VaultPrimary},
	}
	if cfg.Vaults.Secondary != "" {
		vaults = append(vaults, watcher.VaultConfig{
			AccountID: cfg.Vaults.Secondary, Kind: domain.VaultSecondary,
		})
	}

	w := watcher.New(watcher.Options{
		RPC:      rpc,
		WS:       ws,
		Resolver: resolver,
		Ledger:   ledger,
		Vaults:   vaults,
	})

	allocator := allocation.NewAllocator(rpc, sources)

	vaultAccounts := make([]string, 0, len(vaults))
	for _, v := range vaults {
		vaultAccounts = append(vaultAccounts, v.AccountID)
	}
	primaryMint := ""
	if primary := cfg.PrimaryAsset(); primary != nil {
		primaryMint = primary.AssetID
	}
	val := validator.New(validator.Options{
		RPC:                rpc,
		Allocator:          allocator,
		OperatorKey:        cfg.Vaults.OperatorKey,
		VaultAccounts:      vaultAccounts,
		PrimaryMint:        primaryMint,
		MinOperatorBalance: cfg.Cycle.MinOperatorBalance,
		MinFeeThreshold:    cfg.Cycle.MinFeeThreshold,
	})

	queue := dlq.New(dlq.Options{
		Store:       dlqStore,
		MaxEntries:  cfg.DLQ.MaxEntries,
		MaxRetries:  cfg.DLQ.MaxRetries,
		MaxAge:      cfg.DLQ.MaxAge.Duration(),
		BackoffBase: cfg.DLQ.BackoffBase.Duration(),
		MaxBackoff:  cfg.DLQ.MaxBackoff.Duration(),
	})

	interval := cfg.Cycle.Interval.Duration()
	if cycleInterval != 0 {
		interval = cycleInterval
	}

	orch := orchestrator.New(orchestrator.Options{
		RPC:             rpc,
		Allocator:       allocator,
		Validator:       val,
		Queue:           queue,
		Executor:        &dryRunExecutor{logger: logger},
		Ledger:          ledger,
		VaultAccount:    cfg.Vaults.Primary,
		MinFeeThreshold: cfg.Cycle.MinFeeThreshold,
		KeepBps:         cfg.Cycle.KeepBps,
		Interval:        interval,
	})

	watcherErr := make(chan error, 1)
	go func() {
		watcherErr <- w.Run(ctx)
	}()

	orchErr := make(chan error, 1)
	go func() {
		orchErr <- orch.Run(ctx)
	}()

	// Front-load the first pass once enough assets have pending fees instead
	// of idling until the first tick.
	if timeout := cfg.Cycle.SyncWaitTimeout.Duration(); timeout > 0 {
		pollInterval := cfg.Cycle.SyncWaitInterval.Duration()
		if pollInterval <= 0 {
			pollInterval = 30 * time.Second
		}
		go func() {
			sync, err := val.WaitForFees(ctx, pollInterval, timeout)
			if err != nil {
				logger.Printf("fee sync wait: %v", err)
				return
			}
			if sync.TimedOut {
				logger.Printf("fee sync wait timed out, %d ready, %d below threshold",
					len(sync.Ready), len(sync.NotReady))
			} else {
				logger.Printf("fee sync complete, %d assets ready", len(sync.Ready))
			}
			orch.Trigger()
		}()
	}

	select {
	case <-ctx.Done():
		<-watcherErr
		<-orchErr
		return ctx.Err()
	case err := <-watcherErr:
		return fmt.Errorf("watcher stopped: %w", err)
	case err := <-orchErr:
		return fmt.Errorf("orchestrator stopped: %w", err)
	}
}

// dryRunExecutor stands in for the external buyback executor. Transaction
// construction and signing live outside this binary; the dry run only logs
// what would have been executed.
type dryRunExecutor struct {
	logger *log.Logger
}

func (e *dryRunExecutor) Execute(_ context.Context, assetID string) ([]string, error) {
	e.logger.Printf("dry run: would execute buyback for %s", assetID)
	return nil, nil
}

func shortHash(s string) string {
	if len(s) <= 12 {
		return s
	}
	return s[:12]
}
