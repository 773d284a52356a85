// Package app wires the configuration, storage, adapters and services
// into a runnable application.
package app

import (
	"fmt"
	"os"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/aestimo/internal/adapters/edgar"
	"github.com/ternarybob/aestimo/internal/adapters/fmp"
	"github.com/ternarybob/aestimo/internal/adapters/transcripts"
	"github.com/ternarybob/aestimo/internal/alerts"
	"github.com/ternarybob/aestimo/internal/charts"
	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/evidence"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/pipeline"
	"github.com/ternarybob/aestimo/internal/publish"
	"github.com/ternarybob/aestimo/internal/qa"
	"github.com/ternarybob/aestimo/internal/render"
	"github.com/ternarybob/aestimo/internal/render/providers"
	"github.com/ternarybob/aestimo/internal/scheduler"
	"github.com/ternarybob/aestimo/internal/services/pdfgen"
	"github.com/ternarybob/aestimo/internal/storage/badger"
	"github.com/ternarybob/aestimo/internal/valuation"
)

// defaultDisclaimer stands in when the configured disclaimer file is
// unreadable. The QA gate holds every draft to this exact text.
const defaultDisclaimer = "This content is for informational purposes only and is not investment advice."

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// External boundaries
	Market      *fmp.Adapter
	Filings     *edgar.Adapter
	Transcripts *transcripts.Adapter
	TextModel   interfaces.TextModel
	Fallback    interfaces.TextModel
	Target      interfaces.PublishTarget

	// Core services
	Builder     *evidence.Builder
	Engine      *valuation.Engine
	Renderer    interfaces.ArticleRenderer
	Gate        *qa.Gate
	Charts      interfaces.ChartService
	PDF         interfaces.PDFService
	Coordinator *publish.Coordinator
	Alerts      interfaces.AlertService

	Pipeline  interfaces.PipelineService
	Scheduler interfaces.SchedulerService
}

// New builds the full dependency graph from configuration. A missing
// publish target is tolerated so simulate runs work without Ghost
// credentials; commit runs fail at publish time instead.
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		Config: config,
		Logger: logger,
	}

	storageManager, err := badger.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.StorageManager = storageManager

	a.Market = fmp.NewAdapter(&config.Providers.FMP, logger)
	a.Filings = edgar.NewAdapter(&config.Providers.Edgar, logger)
	a.Transcripts = transcripts.NewAdapter(&config.Providers.Transcripts, logger)

	a.Builder = evidence.NewBuilder(
		&config.Fetch,
		a.Market,
		a.Filings,
		a.Transcripts,
		storageManager.FactCache(),
		storageManager.Artifacts(),
		logger,
	)
	a.Engine = valuation.New(config.Valuation)

	model, err := providers.NewTextModel(&config.Renderer, logger)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to initialize text model: %w", err)
	}
	a.TextModel = model

	fallback, err := providers.NewFallbackModel(&config.Renderer, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("Fallback model unavailable")
	}
	a.Fallback = fallback

	disclaimer := loadDisclaimer(config.QA.DisclaimerFile, logger)
	a.Renderer = render.NewService(model, fallback, disclaimer, logger)
	a.Gate = qa.NewGate(config.QA, disclaimer, logger)

	a.Charts = charts.NewService(config.Charts, logger)
	a.PDF = pdfgen.NewService(logger)
	a.Alerts = alerts.NewService(config.Alerts, logger)

	if config.Publish.GhostURL != "" {
		target, err := publish.NewGhostClient(config.Publish, logger)
		if err != nil {
			storageManager.Close()
			return nil, fmt.Errorf("failed to initialize publish target: %w", err)
		}
		a.Target = target
	} else {
		logger.Warn().Msg("No publish target configured, only simulate runs will work")
	}
	a.Coordinator = publish.NewCoordinator(a.Target, storageManager.Ledger(), config.Publish, logger)

	specs, err := pipeline.LoadSpecs(config.Articles.SpecsDir, logger)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to load article specs: %w", err)
	}

	a.Pipeline = pipeline.NewService(pipeline.Deps{
		Specs:       specs,
		Selector:    pipeline.NewSelector(a.Market, logger),
		Builder:     a.Builder,
		Engine:      a.Engine,
		Renderer:    a.Renderer,
		Gate:        a.Gate,
		Charts:      a.Charts,
		PDF:         a.PDF,
		Artifacts:   storageManager.Artifacts(),
		Ledger:      storageManager.Ledger(),
		Coordinator: a.Coordinator,
		Target:      a.Target,
		Alerts:      a.Alerts,
		OutputDir:   config.Storage.Output.Dir,
		Logger:      logger,
	})

	a.Scheduler = scheduler.NewService(config.Schedule, a.Pipeline, logger)

	logger.Info().
		Str("environment", config.Environment).
		Str("badger_path", config.Storage.Badger.Path).
		Bool("target_configured", a.Target != nil).
		Msg("Application initialized")

	return a, nil
}

// Close releases all resources in reverse initialization order.
func (a *App) Close() error {
	if a.Scheduler != nil && a.Scheduler.IsRunning() {
		if err := a.Scheduler.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Scheduler stop failed")
		}
	}

	if a.TextModel != nil {
		if err := a.TextModel.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Text model close failed")
		}
	}
	if a.Fallback != nil {
		if err := a.Fallback.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Fallback model close failed")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
	}

	a.Logger.Info().Msg("Application closed")
	return nil
}

// loadDisclaimer reads the canonical disclaimer text. Every published
// article carries this exact wording, so a missing file is loud.
func loadDisclaimer(path string, logger arbor.ILogger) string {
	if path == "" {
		return defaultDisclaimer
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn().
			Str("path", path).
			Err(err).
			Msg("Disclaimer file unreadable, using built-in text")
		return defaultDisclaimer
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return defaultDisclaimer
	}
	return text
}
