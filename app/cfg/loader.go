package cfg

import (
	"cmp"
	"fmt"
	"log/slog"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Store configuration
	Store         string `long:"store" env:"STORE" default:"sqlite" choice:"sqlite" choice:"mongo" description:"Storage backend"`
	DBPath        string `long:"db-path" env:"DB_PATH" default:"./data/guidelines.db" description:"SQLite database file"`
	MongoURI      string `long:"mongo-uri" env:"MONGO_URI" default:"mongodb://localhost:27017" description:"MongoDB connection URI"`
	MongoDatabase string `long:"mongo-database" env:"MONGO_DATABASE" default:"guideline_hub" description:"MongoDB database name"`

	// Application configuration
	SourcesDir        string `long:"sources-dir" env:"SOURCES_DIR" default:"./sources" description:"Directory containing source configuration files"`
	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey      string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for the refresh endpoint (optional)"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"86400" description:"Ingestion interval in seconds"`
	SkipInitialRun    bool   `long:"skip-initial-run" env:"SKIP_INITIAL_RUN" description:"Do not run an ingestion cycle at startup"`
	FetchConcurrency  int    `long:"fetch-concurrency" env:"FETCH_CONCURRENCY" default:"3" description:"Sources fetched in parallel"`
	EnrichConcurrency int    `long:"enrich-concurrency" env:"ENRICH_CONCURRENCY" default:"4" description:"Items enriched in parallel"`
	MaxItems          int    `long:"max-items" env:"MAX_ITEMS" default:"10" description:"Default item cap per source and cycle"`
	ReenrichAfterDays int    `long:"reenrich-after-days" env:"REENRICH_AFTER_DAYS" default:"30" description:"Refresh summaries older than this many days (0 disables)"`
	Once              bool   `long:"once" env:"ONCE" description:"Run a single ingestion cycle and exit"`
	SeedFile          string `long:"seed-file" env:"SEED_FILE" description:"JSON file with guidelines to import at startup"`

	// Enrichment configuration
	AIEnabled           bool   `long:"ai-enabled" env:"AI_ENABLED" description:"Summarize guidelines with the AI provider"`
	OpenAIAPIKey        string `long:"openai-api-key" env:"OPENAI_API_KEY" description:"OpenAI API key"`
	OpenAIModel         string `long:"openai-model" env:"OPENAI_MODEL" default:"gpt-4o-mini" description:"Chat completions model"`
	OpenAIBaseURL       string `long:"openai-base-url" env:"OPENAI_BASE_URL" default:"https://api.openai.com/v1" description:"OpenAI-compatible API base URL"`
	AITimeout           int    `long:"ai-timeout" env:"AI_TIMEOUT" default:"20" description:"AI request timeout in seconds"`
	AIRequestsPerMinute int    `long:"ai-requests-per-minute" env:"AI_REQUESTS_PER_MINUTE" default:"60" description:"AI request rate limit (0 disables)"`
	SummaryBullets      int    `long:"summary-bullets" env:"SUMMARY_BULLETS" default:"4" description:"Bullet points per summary (3-5)"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Guideline Hub/1.0 (+https://github.com/lysyi3m/guideline-hub)" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	return parse(nil)
}

func parse(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	var err error
	if args == nil {
		_, err = parser.Parse()
	} else {
		_, err = parser.ParseArgs(args)
	}
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		Store:               raw.Store,
		DBPath:              raw.DBPath,
		MongoURI:            raw.MongoURI,
		MongoDatabase:       raw.MongoDatabase,
		SourcesDir:          raw.SourcesDir,
		Port:                raw.Port,
		APIAccessKey:        raw.APIAccessKey,
		SchedulerInterval:   raw.SchedulerInterval,
		SkipInitialRun:      raw.SkipInitialRun,
		FetchConcurrency:    raw.FetchConcurrency,
		EnrichConcurrency:   raw.EnrichConcurrency,
		MaxItems:            raw.MaxItems,
		ReenrichAfterDays:   raw.ReenrichAfterDays,
		Once:                raw.Once,
		SeedFile:            raw.SeedFile,
		AIEnabled:           raw.AIEnabled,
		OpenAIAPIKey:        raw.OpenAIAPIKey,
		OpenAIModel:         raw.OpenAIModel,
		OpenAIBaseURL:       raw.OpenAIBaseURL,
		AITimeout:           raw.AITimeout,
		AIRequestsPerMinute: raw.AIRequestsPerMinute,
		SummaryBullets:      raw.SummaryBullets,
		UserAgent:           raw.UserAgent,
		Timezone:            raw.Timezone,
		Debug:               raw.Debug,
		Version:             GetVersion(),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		slog.Warn("Invalid timezone, using system default", "timezone", cfg.Timezone, "error", err)
	}

	if cfg.AIEnabled && cfg.OpenAIAPIKey == "" {
		slog.Warn("AI enrichment enabled without an API key, using fallback summaries")
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func validate(cfg *Cfg) error {
	switch {
	case cfg.SchedulerInterval < 0:
		return fmt.Errorf("scheduler interval must not be negative: %d", cfg.SchedulerInterval)
	case cfg.FetchConcurrency < 1:
		return fmt.Errorf("fetch concurrency must be at least 1: %d", cfg.FetchConcurrency)
	case cfg.EnrichConcurrency < 1:
		return fmt.Errorf("enrich concurrency must be at least 1: %d", cfg.EnrichConcurrency)
	case cfg.MaxItems < 1:
		return fmt.Errorf("max items must be at least 1: %d", cfg.MaxItems)
	case cfg.ReenrichAfterDays < 0:
		return fmt.Errorf("re-enrich days must not be negative: %d", cfg.ReenrichAfterDays)
	case cfg.SummaryBullets < 3 || cfg.SummaryBullets > 5:
		return fmt.Errorf("summary bullets must be between 3 and 5: %d", cfg.SummaryBullets)
	case cfg.AITimeout < 1:
		return fmt.Errorf("AI timeout must be at least 1 second: %d", cfg.AITimeout)
	case cfg.Store == StoreMongo && cfg.MongoURI == "":
		return fmt.Errorf("mongo store requires --mongo-uri")
	}
	return nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			return err
		}
		time.Local = loc
		slog.Debug("Timezone configured", "timezone", timezone)
	}
	return nil
}
