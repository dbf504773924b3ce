package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"grail-oracle/browser"
	"grail-oracle/config"
	"grail-oracle/scheduler"
	"grail-oracle/scraper"
	"grail-oracle/scraper/ebay"
	"grail-oracle/scraper/grailed"
	"grail-oracle/scraper/mercari"
	"grail-oracle/scraper/yahooauctions"
	"grail-oracle/server"
	"grail-oracle/services"
	"grail-oracle/storage"
	"grail-oracle/utils"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		os.Stderr.WriteString("config load failed: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level)

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}

	logger.Info("=== Grail Oracle starting ===")
	logger.Infof("nodes: %d | batch: %d | concurrency: %d | cycle: %s",
		len(cfg.Nodes), cfg.Scheduler.BatchSize, cfg.Scheduler.Concurrency, cfg.Scheduler.CycleInterval)

	store, err := storage.NewPostgres(cfg.Postgres.DSN())
	if err != nil {
		logger.WithError(err).Fatal("postgres connection failed")
	}
	defer store.Close()

	var offerLog scheduler.OfferSink
	if cfg.Server.OfferLogEnabled {
		csvLog, err := storage.NewOfferLog(cfg.Server.OfferLogPath)
		if err != nil {
			logger.WithError(err).Warn("offer audit log disabled")
		} else {
			defer csvLog.Close()
			offerLog = csvLog
		}
	}

	session, err := browser.NewSession(cfg.Browser, logger)
	if err != nil {
		logger.WithError(err).Fatal("browser session setup failed")
	}
	defer session.Close()

	executor := browser.NewExecutor(session, cfg.Browser, logger)

	fx := services.NewFXClient(cfg.FX, logger)
	normalizer := services.NewNormalizer(fx, cfg.LandedCost)
	grader := services.NewGrader(cfg.Classifier, logger)
	seeds := services.NewSeedGenerator(cfg.Seeds)
	catalog := services.NewCatalogManager(store, seeds, grader, logger)

	adapters := map[string]scraper.Adapter{
		"ebay":          ebay.New(cfg.Browser.SelectorWait),
		"mercari":       mercari.New(cfg.Browser.SelectorWait),
		"yahooauctions": yahooauctions.New(cfg.Browser.SelectorWait),
		"grailed":       grailed.New(cfg.Browser.SelectorWait),
	}

	sched := scheduler.New(cfg.Scheduler, store, catalog, executor, normalizer,
		grader, adapters, cfg.Nodes, offerLog, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sched.Run(ctx)

	api := server.New(store, catalog, sched, cfg.Server.FreshnessWindow, logger)
	httpSrv := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: api.Router(),
	}

	go func() {
		logger.WithField("addr", cfg.Server.ListenAddr).Info("http: listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("http: server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http: shutdown incomplete")
	}
}
