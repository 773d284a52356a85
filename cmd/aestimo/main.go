package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/aestimo/internal/app"
	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/models"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	runOnce      = flag.Bool("once", false, "Run the pipeline once and exit instead of scheduling")
	runDate      = flag.String("date", "", "Run date in YYYY-MM-DD (defaults to today, implies -once)")
	simulate     = flag.Bool("simulate", false, "Render and validate without touching the publish target")
	onlyArticles = flag.String("article", "", "Comma-separated article kinds to run (daily-brief, deep-dive, theme-trend)")
	skipQA       = flag.Bool("skip-qa", false, "Publish articles even when the QA gate fails them (logged loudly)")
	logLevel     = flag.String("log-level", "", "Log level override (debug, info, warn, error)")
	dataDir      = flag.String("data", "", "Badger database directory (overrides config)")
	outputDir    = flag.String("out", "", "Simulate-mode output directory (overrides config)")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")

	config *common.Config
	logger arbor.ILogger
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Aestimo version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	// Startup sequence (REQUIRED ORDER):
	// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
	// 2. Apply CLI overrides (highest priority)
	// 3. Initialize logger
	// 4. Print banner

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("aestimo.toml"); err == nil {
			configFiles = append(configFiles, "aestimo.toml")
		} else if _, err := os.Stat("deploy/aestimo.toml"); err == nil {
			configFiles = append(configFiles, "deploy/aestimo.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	config.ApplyFlagOverrides(common.FlagOverrides{
		LogLevel:   *logLevel,
		BadgerPath: *dataDir,
		OutputDir:  *outputDir,
	})

	logger = common.InitLogger(config)
	common.PrintBanner(common.GetVersion())
	common.InstallCrashHandler("")

	defer func() {
		if r := recover(); r != nil {
			crashFile := common.WriteCrashFile(r, string(debug.Stack()))
			logger.Fatal().
				Str("panic", fmt.Sprintf("%v", r)).
				Str("crash_file", crashFile).
				Msg("Unrecovered panic")
		}
	}()

	opts, err := buildRunOptions()
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid run options")
		os.Exit(1)
	}

	logger.Info().
		Strs("config_files", configFiles).
		Str("environment", config.Environment).
		Msg("Application configuration loaded")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}
	defer application.Close()

	if *runOnce || *runDate != "" || *simulate {
		os.Exit(runSingle(application, opts))
	}

	if !config.Schedule.Enabled {
		logger.Fatal().Msg("Schedule disabled in config; use -once for a manual run")
		os.Exit(1)
	}

	if err := application.Scheduler.Start(config.Schedule.Cron); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start scheduler")
		os.Exit(1)
	}

	status := application.Scheduler.Status()
	if status.NextRun != nil {
		logger.Info().
			Str("cron", status.Schedule).
			Str("next_run", status.NextRun.Format(time.RFC3339)).
			Msg("Scheduler ready - Press Ctrl+C to stop")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Interrupt signal received, shutting down")
}

// runSingle executes one pipeline pass and maps the outcome to an exit
// code: 0 all published, 1 partial, 2 run failed.
func runSingle(application *app.App, opts models.RunOptions) int {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
	defer cancel()

	summary, err := application.Pipeline.Run(ctx, opts)
	if err != nil {
		logger.Error().Err(err).Msg("Run failed")
		return 2
	}

	for _, outcome := range summary.Articles {
		event := logger.Info()
		if outcome.Withheld {
			event = logger.Warn()
		}
		event.
			Str("article", outcome.Slug).
			Str("qa_status", string(outcome.QAStatus)).
			Bool("published", outcome.Published).
			Bool("withheld", outcome.Withheld).
			Str("error", outcome.Error).
			Msg("Article outcome")
	}

	if summary.Withheld() > 0 {
		return 1
	}
	return 0
}

// buildRunOptions validates the run flags before any services come up.
func buildRunOptions() (models.RunOptions, error) {
	opts := models.RunOptions{
		Simulate: *simulate,
		SkipQA:   *skipQA,
	}

	if *runDate != "" {
		date, err := time.Parse("2006-01-02", *runDate)
		if err != nil {
			return opts, fmt.Errorf("invalid -date %q: %w", *runDate, err)
		}
		opts.Date = date
	}

	if *onlyArticles != "" {
		for _, part := range strings.Split(*onlyArticles, ",") {
			kind := models.ArticleKind(strings.TrimSpace(part))
			switch kind {
			case models.ArticleDailyBrief, models.ArticleDeepDive, models.ArticleThemeTrend:
				opts.Only = append(opts.Only, kind)
			default:
				return opts, fmt.Errorf("unknown article kind %q", part)
			}
		}
	}

	return opts, nil
}
