// Command server runs the PesaGuru portfolio optimization engine.
//
// Startup sequence:
//  1. Load configuration from environment (.env supported)
//  2. Initialize structured logging
//  3. Open history.db and cache.db and ensure schemas
//  4. Wire the pipeline: providers -> estimation -> optimization -> advisor
//  5. Refresh the market outlook snapshot
//  6. Register scheduled jobs (outlook refresh, cache sweep, history retention)
//  7. Start the HTTP server and wait for SIGINT/SIGTERM
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pesaguru/engine/internal/config"
	"github.com/pesaguru/engine/internal/database"
	"github.com/pesaguru/engine/internal/marketdata"
	"github.com/pesaguru/engine/internal/modules/advisor"
	"github.com/pesaguru/engine/internal/modules/estimation"
	"github.com/pesaguru/engine/internal/modules/optimization"
	"github.com/pesaguru/engine/internal/modules/preferences"
	"github.com/pesaguru/engine/internal/modules/rebalancing"
	"github.com/pesaguru/engine/internal/modules/reporting"
	"github.com/pesaguru/engine/internal/modules/scenarios"
	"github.com/pesaguru/engine/internal/server"
	"github.com/pesaguru/engine/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting PesaGuru engine")

	// Databases: history.db holds price series and reference data, cache.db
	// holds ephemeral computed results.
	historyDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "history.db"),
		Profile: database.ProfileStandard,
		Name:    "history",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open history database")
	}
	defer historyDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	historyStore := marketdata.NewHistoryStore(historyDB, log)
	if err := historyStore.InitSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize history schema")
	}

	referenceStore := marketdata.NewReferenceStore(historyDB, log)
	if err := referenceStore.InitSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize reference schema")
	}

	calcCache := marketdata.NewCalcCache(cacheDB, log)
	if err := calcCache.InitSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize cache schema")
	}

	// Pipeline wiring. All collaborators are constructor-injected.
	prefsAdapter := preferences.NewAdapter(referenceStore, log)

	riskModel := estimation.NewRiskModelBuilder(log)
	riskModel.SetCache(calcCache)

	estimator := estimation.NewReturnsEstimator(referenceStore, referenceStore, riskModel, cfg.TBillTenorDays, log)
	optimizer := optimization.NewMVOptimizer(log)

	classifier := scenarios.NewPrefixClassifier(scenarios.DefaultPrefixRules())
	stressEngine := scenarios.NewEngine(classifier, 0, log)
	rebalancer := rebalancing.NewService(log)

	outlook := reporting.NewOutlookService(historyStore, referenceStore, referenceStore, cfg.MarketIndex, log)
	reporter := reporting.NewReporter(outlook, classifier, log)

	advisorService := advisor.New(
		cfg,
		historyStore,
		historyStore,
		prefsAdapter,
		riskModel,
		estimator,
		optimizer,
		stressEngine,
		rebalancer,
		reporter,
		log,
	)

	// Initial outlook snapshot. A failure here is not fatal: the snapshot
	// stays neutral until the scheduled refresh succeeds.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := outlook.Refresh(startupCtx); err != nil {
		log.Warn().Err(err).Msg("Initial market outlook refresh failed")
	}
	startupCancel()

	// Scheduled jobs.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.OutlookRefreshSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := outlook.Refresh(ctx); err != nil {
			log.Error().Err(err).Msg("Scheduled market outlook refresh failed")
		}
	}); err != nil {
		log.Fatal().Err(err).Str("spec", cfg.OutlookRefreshSpec).Msg("Invalid outlook refresh schedule")
	}
	if _, err := scheduler.AddFunc("@hourly", func() {
		removed, err := calcCache.Sweep()
		if err != nil {
			log.Error().Err(err).Msg("Cache sweep failed")
			return
		}
		if removed > 0 {
			log.Debug().Int64("removed", removed).Msg("Swept expired cache entries")
		}
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to register cache sweep job")
	}
	retention := marketdata.NewRetentionJob(historyStore, 0, log)
	if _, err := scheduler.AddJob("@daily", retention); err != nil {
		log.Fatal().Err(err).Msg("Failed to register history retention job")
	}
	scheduler.Start()

	srv := server.New(server.Config{
		Log:       log,
		Config:    cfg,
		Advisor:   advisorService,
		Outlook:   outlook,
		HistoryDB: historyDB,
		CacheDB:   cacheDB,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	cronCtx := scheduler.Stop()
	<-cronCtx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
