// Package main wires and runs the options candidate-generation agent: an
// HTTP API backed by the IPS filter cascade, scorer, and run controller,
// plus an optional cron-driven batch scheduler.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/optionagent/agent/internal/candidates"
	"github.com/optionagent/agent/internal/cascade"
	"github.com/optionagent/agent/internal/config"
	"github.com/optionagent/agent/internal/domain"
	"github.com/optionagent/agent/internal/gateway"
	"github.com/optionagent/agent/internal/ips"
	"github.com/optionagent/agent/internal/run"
	"github.com/optionagent/agent/internal/scheduler"
	"github.com/optionagent/agent/internal/scorer"
	"github.com/optionagent/agent/internal/storage"
	"github.com/optionagent/agent/internal/storage/archive"
	"github.com/optionagent/agent/internal/transport"
	"github.com/optionagent/agent/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Config{Level: "info", Pretty: true}).Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.Pretty})
	logger.SetGlobalLogger(log)
	log.Info().Msg("starting options agent")

	db, err := storage.Open(cfg.DataDir + "/agent.db")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	repo := storage.New(db)

	gw := gateway.NewHTTPGateway(gateway.HTTPConfig{
		QuotesBaseURL:    cfg.QuotesBaseURL,
		OptionsBaseURL:   cfg.OptionsBaseURL,
		NewsBaseURL:      cfg.NewsBaseURL,
		MacroBaseURL:     cfg.MacroBaseURL,
		VectorBaseURL:    cfg.VectorBaseURL,
		ReasoningURL:     cfg.ReasoningURL,
		APIKey:           cfg.ReasoningAPIKey,
		Timeout:          cfg.ProviderTimeout,
		ReasoningTimeout: cfg.ReasoningTimeout,
	}, repo, log)

	archiver, err := archive.New(context.Background(), cfg.S3ArchiveBucket, cfg.S3ArchiveRegion, log)
	if err != nil {
		log.Warn().Err(err).Msg("s3 archival disabled")
	}

	registry := ips.NewRegistry(cfg.HighWeightThreshold, log)
	loader := ips.NewLoader(repo, registry)
	generator := candidates.New(log)
	scorerCfg := scorer.Config{
		VectorStoreK:         cfg.VectorStoreK,
		EliteMin:             cfg.TierEliteMin,
		QualityMin:           cfg.TierQualityMin,
		SpeculativeMin:       cfg.TierSpeculativeMin,
		EliteSelectCap:       cfg.EliteSelectCap,
		QualitySelectCap:     cfg.QualitySelectCap,
		SpeculativeSelectCap: cfg.SpeculativeSelectCap,
		CapPerSector:         cfg.CapPerSector,
		CapPerSymbol:         cfg.CapPerSymbol,
		CapPerStrategy:       cfg.CapPerStrategy,
	}
	sc := scorer.New(gw, scorerCfg, log)
	cascadeRunner := cascade.New(gw, registry, generator, chainPersister{repo: repo, archiver: archiver}, sc, log)

	hub := transport.NewHub()
	controller := run.New(repo, loader, cascadeRunner, sc, gw, hub, log)

	srv := transport.New(transport.Config{
		Log:        log,
		Port:       cfg.Port,
		DevMode:    cfg.LogLevel == "debug",
		Controller: controller,
		Store:      repoRunStore{repo},
		Hub:        hub,
	})

	go func() {
		if err := srv.Start(); err != nil && err.Error() != "http: Server closed" {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("http server started")

	sched := scheduler.New(controller, log)
	if cfg.CronSchedule != "" {
		if err := sched.AddJob(scheduler.BatchJob{
			Name:      "watchlist-refresh",
			Schedule:  cfg.CronSchedule,
			IPSID:     os.Getenv("BATCH_IPS_ID"),
			UserID:    os.Getenv("BATCH_USER_ID"),
			Watchlist: cfg.BatchWatchlist,
		}); err != nil {
			log.Error().Err(err).Msg("failed to register scheduled batch job")
		} else {
			sched.Start()
			defer sched.Stop()
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
}

// chainPersister fans a raw chain snapshot out to both the local sqlite
// database and, if configured, S3 archival. The archiver is best-effort
// and nil-safe, so a missing S3 bucket just disables the second leg.
type chainPersister struct {
	repo     *storage.Repository
	archiver *archive.Archiver
}

func (p chainPersister) PersistRawOptions(ctx context.Context, snapshot domain.RawOptionSnapshot) error {
	if err := p.repo.PersistRawOptions(ctx, snapshot); err != nil {
		return err
	}
	return p.archiver.PersistRawOptions(ctx, snapshot)
}

// repoRunStore adapts storage.Repository's RunSummary type to the one
// transport.RunStore expects, so transport doesn't need to import storage.
type repoRunStore struct {
	repo *storage.Repository
}

func (s repoRunStore) ListRuns(ctx context.Context, userID string, limit int) ([]transport.RunSummary, error) {
	rows, err := s.repo.ListRuns(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]transport.RunSummary, len(rows))
	for i, r := range rows {
		out[i] = transport.RunSummary{ID: r.ID, Status: string(r.Status), Mode: string(r.Mode), StartedAt: r.StartedAt}
	}
	return out, nil
}
