package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Logging     LoggingConfig   `toml:"logging"`
	Storage     StorageConfig   `toml:"storage"`
	Schedule    ScheduleConfig  `toml:"schedule"`
	Providers   ProvidersConfig `toml:"providers"`
	Fetch       FetchConfig     `toml:"fetch"`
	Valuation   ValuationConfig `toml:"valuation"`
	Renderer    RendererConfig  `toml:"renderer"`
	QA          QAConfig        `toml:"qa"`
	Publish     PublishConfig   `toml:"publish"`
	Charts      ChartsConfig    `toml:"charts"`
	Alerts      AlertsConfig    `toml:"alerts"`
	Articles    ArticlesConfig  `toml:"articles"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Format string   `toml:"format"` // "json" or "text"
	Output []string `toml:"output"` // "stdout", "file"
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
	Output OutputConfig `toml:"output"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// OutputConfig controls where simulate-mode artifacts are exported
type OutputConfig struct {
	Dir string `toml:"dir"` // Directory for rendered HTML / reports in simulate mode
}

// ScheduleConfig controls the daily trigger.
type ScheduleConfig struct {
	Enabled  bool   `toml:"enabled"`
	Cron     string `toml:"cron"`     // cron expression for the daily run
	Timezone string `toml:"timezone"` // IANA zone the cron fires in
}

type ProvidersConfig struct {
	FMP         FMPConfig         `toml:"fmp"`
	Edgar       EdgarConfig       `toml:"edgar"`
	Transcripts TranscriptsConfig `toml:"transcripts"`
}

// FMPConfig configures the market data provider client.
type FMPConfig struct {
	BaseURL        string  `toml:"base_url"`
	APIKey         string  `toml:"api_key"` // env AESTIMO_FMP_API_KEY
	RequestsPerSec float64 `toml:"requests_per_sec"`
	Timeout        string  `toml:"timeout"` // e.g. "15s"
}

// EdgarConfig configures the SEC filings client. EDGAR requires a
// descriptive User-Agent and caps request rates.
type EdgarConfig struct {
	BaseURL        string  `toml:"base_url"`
	UserAgent      string  `toml:"user_agent" validate:"required"`
	RequestsPerSec float64 `toml:"requests_per_sec"`
	Timeout        string  `toml:"timeout"`
}

// TranscriptsConfig configures the earnings transcript provider.
type TranscriptsConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"` // env AESTIMO_TRANSCRIPT_API_KEY
	Timeout string `toml:"timeout"`
}

// FetchConfig holds the operational tuning for evidence fetches. The
// retry counts and staleness windows are deliberately configuration, not
// code constants.
type FetchConfig struct {
	MaxAttempts    int    `toml:"max_attempts" validate:"min=1"` // attempts per fetch under the retry policy
	BackoffBase    string `toml:"backoff_base"`                  // first retry delay, e.g. "500ms"
	BackoffMax     string `toml:"backoff_max"`                   // backoff ceiling, e.g. "8s"
	MaxConcurrent  int    `toml:"max_concurrent" validate:"min=1"`
	CacheTTL       string `toml:"cache_ttl"`       // same-day reuse window, e.g. "5m"
	MaxStaleDays   int    `toml:"max_stale_days"`  // oldest cache entry use-stale-cache may substitute
	AdapterTimeout string `toml:"adapter_timeout"` // per-call deadline, e.g. "20s"
}

// ValuationConfig holds scenario assumptions that are policy rather than
// evidence: spreads, fallback multiples, DCF parameters.
type ValuationConfig struct {
	ShortTermSigmas   float64            `toml:"short_term_sigmas"`   // band half-width in daily-vol units
	ShortTermWindow   int                `toml:"short_term_window"`   // trading days of history for the vol estimate
	SensitivitySpread float64            `toml:"sensitivity_spread"`  // EPS axis half-spread, e.g. 0.20
	SensitivitySteps  int                `toml:"sensitivity_steps"`   // grid dimension, e.g. 5
	BearMultipleRatio float64            `toml:"bear_multiple_ratio"` // bear multiple = ratio * base
	BullMultipleRatio float64            `toml:"bull_multiple_ratio"`
	SectorMultiples   map[string]float64 `toml:"sector_multiples"` // fallback base multiples per sector
	DefaultMultiple   float64            `toml:"default_multiple"` // fallback when the sector is unknown
	FCFMultiples      ScenarioTriple     `toml:"fcf_multiples"`
	DCFGrowth         ScenarioTriple     `toml:"dcf_growth"`   // long-term FCF growth per scenario
	DCFDiscount       ScenarioTriple     `toml:"dcf_discount"` // discount rate per scenario
	DCFYears          int                `toml:"dcf_years"`
}

// ScenarioTriple is a bear/base/bull parameter set.
type ScenarioTriple struct {
	Bear float64 `toml:"bear"`
	Base float64 `toml:"base"`
	Bull float64 `toml:"bull"`
}

// RendererConfig selects and configures the language model providers.
type RendererConfig struct {
	Provider  string          `toml:"provider" validate:"oneof=anthropic gemini"` // primary provider
	Fallback  string          `toml:"fallback"`                                   // optional secondary provider
	Timeout   string          `toml:"timeout"`
	MaxTokens int             `toml:"max_tokens"`
	Anthropic AnthropicConfig `toml:"anthropic"`
	Gemini    GeminiConfig    `toml:"gemini"`
}

type AnthropicConfig struct {
	APIKey string `toml:"api_key"` // env AESTIMO_ANTHROPIC_API_KEY
	Model  string `toml:"model"`
}

type GeminiConfig struct {
	APIKey string `toml:"api_key"` // env AESTIMO_GEMINI_API_KEY
	Model  string `toml:"model"`
}

// QAConfig holds gate thresholds that are policy knobs rather than rule
// semantics.
type QAConfig struct {
	MaxSoftPlaceholders int     `toml:"max_soft_placeholders"` // "--" occurrences tolerated before warning
	MinSourceLinks      int     `toml:"min_source_links"`
	NumericTolerance    float64 `toml:"numeric_tolerance"` // relative slack when tracing rendered numbers to facts
	DisclaimerFile      string  `toml:"disclaimer_file"`   // path to the canonical disclaimer text
}

// PublishConfig configures the Ghost Admin API target.
type PublishConfig struct {
	GhostURL       string `toml:"ghost_url"`
	GhostAdminKey  string `toml:"ghost_admin_key"` // env AESTIMO_GHOST_ADMIN_KEY, format id:secret
	NewsletterSlug string `toml:"newsletter_slug"`
	EmailSegment   string `toml:"email_segment"` // e.g. "all", "status:paid"
	Timeout        string `toml:"timeout"`
}

// ChartsConfig controls headless chart rendering.
type ChartsConfig struct {
	Enabled bool   `toml:"enabled"`
	Timeout string `toml:"timeout"` // per-render deadline
	Width   int    `toml:"width"`
	Height  int    `toml:"height"`
}

// AlertsConfig configures operational notifications.
type AlertsConfig struct {
	SlackWebhookURL string     `toml:"slack_webhook_url"` // env AESTIMO_SLACK_WEBHOOK_URL
	Email           SMTPConfig `toml:"email"`
}

type SMTPConfig struct {
	Enabled bool     `toml:"enabled"`
	Host    string   `toml:"host"`
	Port    int      `toml:"port"`
	User    string   `toml:"user"`
	Pass    string   `toml:"pass"` // env AESTIMO_SMTP_PASS
	From    string   `toml:"from"`
	To      []string `toml:"to"`
}

// ArticlesConfig points at the article spec definitions.
type ArticlesConfig struct {
	SpecsDir string `toml:"specs_dir"` // directory of per-article TOML specs
}

// NewDefaultConfig returns the built-in defaults. Files, env vars and
// flags override in that order.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:           "./data/aestimo",
				ResetOnStartup: false,
			},
			Output: OutputConfig{
				Dir: "./out",
			},
		},
		Schedule: ScheduleConfig{
			Enabled:  true,
			Cron:     "30 7 * * *",
			Timezone: "America/New_York",
		},
		Providers: ProvidersConfig{
			FMP: FMPConfig{
				BaseURL:        "https://financialmodelingprep.com/stable",
				RequestsPerSec: 4,
				Timeout:        "15s",
			},
			Edgar: EdgarConfig{
				BaseURL:        "https://data.sec.gov",
				UserAgent:      "aestimo/1.0 (ops@aestimo.dev)",
				RequestsPerSec: 5,
				Timeout:        "20s",
			},
			Transcripts: TranscriptsConfig{
				Timeout: "20s",
			},
		},
		Fetch: FetchConfig{
			MaxAttempts:    3,
			BackoffBase:    "500ms",
			BackoffMax:     "8s",
			MaxConcurrent:  6,
			CacheTTL:       "5m",
			MaxStaleDays:   3,
			AdapterTimeout: "20s",
		},
		Valuation: ValuationConfig{
			ShortTermSigmas:   2.0,
			ShortTermWindow:   20,
			SensitivitySpread: 0.20,
			SensitivitySteps:  5,
			BearMultipleRatio: 0.75,
			BullMultipleRatio: 1.25,
			SectorMultiples: map[string]float64{
				"Technology":             28,
				"Communication Services": 22,
				"Consumer Cyclical":      22,
				"Financial Services":     14,
				"Healthcare":             18,
				"Industrials":            20,
				"Energy":                 12,
				"Utilities":              16,
			},
			DefaultMultiple: 18,
			FCFMultiples:    ScenarioTriple{Bear: 15, Base: 20, Bull: 25},
			DCFGrowth:       ScenarioTriple{Bear: 0.04, Base: 0.08, Bull: 0.12},
			DCFDiscount:     ScenarioTriple{Bear: 0.11, Base: 0.09, Bull: 0.08},
			DCFYears:        5,
		},
		Renderer: RendererConfig{
			Provider:  "anthropic",
			Timeout:   "120s",
			MaxTokens: 8192,
			Anthropic: AnthropicConfig{Model: "claude-sonnet-4-20250514"},
			Gemini:    GeminiConfig{Model: "gemini-2.0-flash"},
		},
		QA: QAConfig{
			MaxSoftPlaceholders: 50,
			MinSourceLinks:      6,
			NumericTolerance:    0.005,
			DisclaimerFile:      "./deploy/disclaimer.md",
		},
		Publish: PublishConfig{
			NewsletterSlug: "daily-brief",
			EmailSegment:   "all",
			Timeout:        "30s",
		},
		Charts: ChartsConfig{
			Enabled: true,
			Timeout: "30s",
			Width:   1200,
			Height:  675,
		},
		Alerts: AlertsConfig{
			Email: SMTPConfig{Port: 587},
		},
		Articles: ArticlesConfig{
			SpecsDir: "./deploy/articles",
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env -> CLI. Later files override
// earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config.
// Secrets are env-only and never belong in config files.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("AESTIMO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if level := os.Getenv("AESTIMO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("AESTIMO_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("AESTIMO_LOG_OUTPUT"); output != "" {
		config.Logging.Output = strings.Split(output, ",")
	}

	if path := os.Getenv("AESTIMO_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}
	if dir := os.Getenv("AESTIMO_OUTPUT_DIR"); dir != "" {
		config.Storage.Output.Dir = dir
	}

	if cronExpr := os.Getenv("AESTIMO_SCHEDULE_CRON"); cronExpr != "" {
		config.Schedule.Cron = cronExpr
	}
	if tz := os.Getenv("AESTIMO_SCHEDULE_TIMEZONE"); tz != "" {
		config.Schedule.Timezone = tz
	}

	if key := os.Getenv("AESTIMO_FMP_API_KEY"); key != "" {
		config.Providers.FMP.APIKey = key
	}
	if url := os.Getenv("AESTIMO_EDGAR_USER_AGENT"); url != "" {
		config.Providers.Edgar.UserAgent = url
	}
	if url := os.Getenv("AESTIMO_TRANSCRIPT_API_URL"); url != "" {
		config.Providers.Transcripts.BaseURL = url
	}
	if key := os.Getenv("AESTIMO_TRANSCRIPT_API_KEY"); key != "" {
		config.Providers.Transcripts.APIKey = key
	}

	if attempts := os.Getenv("AESTIMO_FETCH_MAX_ATTEMPTS"); attempts != "" {
		if n, err := strconv.Atoi(attempts); err == nil {
			config.Fetch.MaxAttempts = n
		}
	}
	if days := os.Getenv("AESTIMO_FETCH_MAX_STALE_DAYS"); days != "" {
		if n, err := strconv.Atoi(days); err == nil {
			config.Fetch.MaxStaleDays = n
		}
	}

	if provider := os.Getenv("AESTIMO_RENDERER_PROVIDER"); provider != "" {
		config.Renderer.Provider = provider
	}
	if key := os.Getenv("AESTIMO_ANTHROPIC_API_KEY"); key != "" {
		config.Renderer.Anthropic.APIKey = key
	}
	if key := os.Getenv("AESTIMO_GEMINI_API_KEY"); key != "" {
		config.Renderer.Gemini.APIKey = key
	}

	if url := os.Getenv("AESTIMO_GHOST_URL"); url != "" {
		config.Publish.GhostURL = url
	}
	if key := os.Getenv("AESTIMO_GHOST_ADMIN_KEY"); key != "" {
		config.Publish.GhostAdminKey = key
	}
	if slug := os.Getenv("AESTIMO_NEWSLETTER_SLUG"); slug != "" {
		config.Publish.NewsletterSlug = slug
	}
	if segment := os.Getenv("AESTIMO_EMAIL_SEGMENT"); segment != "" {
		config.Publish.EmailSegment = segment
	}

	if url := os.Getenv("AESTIMO_SLACK_WEBHOOK_URL"); url != "" {
		config.Alerts.SlackWebhookURL = url
	}
	if pass := os.Getenv("AESTIMO_SMTP_PASS"); pass != "" {
		config.Alerts.Email.Pass = pass
	}
}

// FlagOverrides carries the CLI flags that override config values.
type FlagOverrides struct {
	LogLevel   string
	BadgerPath string
	OutputDir  string
}

// ApplyFlagOverrides applies CLI flag values (highest priority).
func (c *Config) ApplyFlagOverrides(flags FlagOverrides) {
	if flags.LogLevel != "" {
		c.Logging.Level = flags.LogLevel
	}
	if flags.BadgerPath != "" {
		c.Storage.Badger.Path = flags.BadgerPath
	}
	if flags.OutputDir != "" {
		c.Storage.Output.Dir = flags.OutputDir
	}
}

// Validate checks structural validity plus the cross-field rules the
// tags cannot express.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Schedule.Enabled {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(c.Schedule.Cron); err != nil {
			return fmt.Errorf("invalid schedule cron %q: %w", c.Schedule.Cron, err)
		}
		if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
			return fmt.Errorf("invalid schedule timezone %q: %w", c.Schedule.Timezone, err)
		}
	}

	for _, field := range []struct {
		name  string
		value string
	}{
		{"fetch.backoff_base", c.Fetch.BackoffBase},
		{"fetch.backoff_max", c.Fetch.BackoffMax},
		{"fetch.cache_ttl", c.Fetch.CacheTTL},
		{"fetch.adapter_timeout", c.Fetch.AdapterTimeout},
	} {
		if _, err := time.ParseDuration(field.value); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", field.name, err)
		}
	}

	if c.Valuation.SensitivitySteps < 2 || c.Valuation.SensitivitySteps%2 == 0 {
		return fmt.Errorf("sensitivity_steps must be an odd number >= 3, got %d", c.Valuation.SensitivitySteps)
	}

	return nil
}

// Duration parses a config duration string with a fallback.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
