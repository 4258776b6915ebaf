package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strategy-desk/internal/catalog"
	"strategy-desk/internal/config"
	"strategy-desk/internal/exchange"
	"strategy-desk/internal/filter"
	"strategy-desk/internal/forms"
	"strategy-desk/internal/logger"
	"strategy-desk/internal/metrics"
	"strategy-desk/internal/models"
	"strategy-desk/internal/notify"
	"strategy-desk/internal/persistence"
	"strategy-desk/internal/plans"
	"strategy-desk/internal/reporter"
	"strategy-desk/internal/server"
	"strategy-desk/internal/statemanager"
	"strategy-desk/internal/storage"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const notificationHistory = 100

func main() {
	configPath := flag.String("config", "", "path to the JSON config file; defaults are used when empty")
	mode := flag.String("mode", "serve", "running mode: serve or list")
	search := flag.String("search", "", "list mode: search term over name, owner and trading pair")
	exchangeFilter := flag.String("exchange", "", "list mode: exact exchange display name, e.g. Binance")
	flag.Parse()

	// Log with defaults until the config is read.
	logger.InitLogger(models.LogConfig{Level: "info", Output: "console"})

	if err := godotenv.Load(); err != nil {
		logger.S().Info("No .env file found, reading settings from the environment.")
	} else {
		logger.S().Info("Loaded settings from .env file.")
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			logger.S().Fatalf("Failed to load config: %v", err)
		}
	}

	logger.InitLogger(cfg.LogConfig)
	defer logger.S().Sync()

	repo, err := openRepository(cfg.Store)
	if err != nil {
		logger.S().Fatalf("Failed to open state repository: %v", err)
	}
	defer repo.Close()

	initial, err := loadInitialState(repo, cfg.SeedPath)
	if err != nil {
		logger.S().Fatalf("Failed to load desk state: %v", err)
	}

	switch *mode {
	case "serve":
		runServeMode(cfg, repo, initial)
	case "list":
		runListMode(initial, *search, *exchangeFilter)
	default:
		logger.S().Fatalf("Unknown mode %q, use 'serve' or 'list'.", *mode)
	}
}

func openRepository(cfg models.StoreConfig) (persistence.StateRepository, error) {
	if cfg.SnapshotPath == "" {
		logger.S().Info("No snapshot path configured, desk state is kept in memory only.")
		return persistence.NewMemoryRepository(), nil
	}
	return persistence.NewBadgerRepository(cfg.SnapshotPath)
}

// loadInitialState prefers a persisted snapshot, then the seed file, then the sample catalog.
func loadInitialState(repo persistence.StateRepository, seedPath string) (*models.DeskState, error) {
	state, err := repo.LoadState()
	if err != nil {
		return nil, err
	}
	if state != nil {
		logger.S().Infof("Restored desk state from snapshot (%d strategies).", len(state.Strategies))
		return state, nil
	}
	if seedPath != "" {
		logger.S().Infof("Seeding desk state from %s.", seedPath)
		return catalog.LoadSeed(seedPath)
	}
	return catalog.InitialState(), nil
}

// runListMode prints the filtered strategies and exits.
func runListMode(state *models.DeskState, search, exchangeName string) {
	rows := filter.Strategies(state.Strategies, search, filter.Exchange(exchangeName))
	reporter.StrategyTable(os.Stdout, rows, state.Active)
	reporter.ConnectionTable(os.Stdout, state.Connections)
	reporter.PlanTable(os.Stdout, catalog.Plans(), state.CurrentPlanID, state.BillingCycle)
}

// runServeMode runs the HTTP API until SIGINT or SIGTERM.
func runServeMode(cfg *models.Config, repo persistence.StateRepository, initial *models.DeskState) {
	logger.S().Info("--- Starting strategy desk ---")
	log := logger.L()

	if cfg.Store.URL != "" {
		log.Info("Backing store configured",
			zap.String("url", cfg.Store.URL),
			zap.Bool("anon_key_set", cfg.Store.AnonKey != ""))
	}

	recorder := notify.NewRecorder(notificationHistory)
	notifier := notify.Multi{recorder, notify.NewLogNotifier(log)}

	stats := metrics.New(cfg.Metrics, log)
	defer stats.Close()

	sm := statemanager.NewStateManager(initial, repo, notifier, log)
	sm.Start()
	defer sm.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if dsn := storage.DataSource(cfg.Store); dsn != "" {
		db, err := storage.InitDB(dsn)
		if err != nil {
			logger.S().Fatalf("Failed to open schema database: %v", err)
		}
		defer db.Close()
		go runMirror(ctx, db, sm, stats)
	}

	sim := cfg.Simulation
	deps := server.Deps{
		Store: sm,
		Strategies: forms.NewStrategyForm(sm, forms.StoreHandlers(sm),
			models.Duration(sim.StrategySubmitMs), notifier, log),
		Connections: forms.NewConnectionForm(sm, forms.StoreConnectionHandlers(sm),
			exchange.NewSimulatedTester(models.Duration(sim.ConnectionTestMs)),
			models.Duration(sim.ConnectionSubmitMs), notifier, log),
		Support:       forms.NewSupportForm(forms.LogTicket(log), models.Duration(sim.SupportSubmitMs), notifier, log),
		Plans:         plans.NewService(sm, models.Duration(sim.PlanChangeMs), notifier, log),
		Notifications: recorder,
		Metrics:       stats,
		Logger:        log,
	}
	srv := server.New(cfg.Server, deps)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		if err != nil {
			logger.S().Errorf("HTTP server stopped: %v", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.S().Errorf("HTTP server shutdown failed: %v", err)
	}

	cancel()
	sm.Stop()

	// Save the final state directly, the persistence loop is stopped.
	if err := repo.SaveState(sm.Snapshot()); err != nil {
		logger.S().Errorf("Failed to save desk state: %v", err)
	}
	logger.S().Info("Strategy desk stopped, state saved.")
}

// runMirror keeps the schema tables in step with the store and reports the running count.
func runMirror(ctx context.Context, db *sql.DB, sm *statemanager.StateManager, stats *metrics.Client) {
	changes, unsubscribe := sm.Subscribe()
	defer unsubscribe()

	mirror := func(reason string) {
		state := sm.Snapshot()
		if err := storage.SyncState(db, state, catalog.CurrentUserID, time.Now().UTC()); err != nil {
			logger.S().Errorf("Failed to mirror desk state (%s): %v", reason, err)
			return
		}
		stats.Gauge("strategies.active", int64(countActive(state)))
	}
	mirror("startup")

	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			mirror(fmt.Sprintf("%s %s", c.Type, c.ID))
		}
	}
}

func countActive(state *models.DeskState) int {
	n := 0
	for _, r := range state.Strategies {
		if state.Active[r.ID] {
			n++
		}
	}
	return n
}
