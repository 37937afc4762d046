package cfg

import (
	"testing"
	"time"
)

func TestGetVersion(t *testing.T) {
	if GetVersion() == "" {
		t.Error("GetVersion should never return empty string")
	}

	version := GetVersion()
	if version != "dev" && version != "unknown" {
		t.Logf("Version: %s", version)
	}
}

func TestParseDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("API_ACCESS_KEY", "")

	cfg, err := parse([]string{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.Store != StoreSQLite {
		t.Errorf("Expected store 'sqlite', got '%s'", cfg.Store)
	}
	if cfg.SchedulerInterval != 86400 {
		t.Errorf("Expected scheduler interval 86400, got %d", cfg.SchedulerInterval)
	}
	if cfg.FetchConcurrency != 3 || cfg.EnrichConcurrency != 4 {
		t.Errorf("Expected concurrency 3/4, got %d/%d", cfg.FetchConcurrency, cfg.EnrichConcurrency)
	}
	if cfg.MaxItems != 10 {
		t.Errorf("Expected max items 10, got %d", cfg.MaxItems)
	}
	if cfg.SummaryBullets != 4 {
		t.Errorf("Expected 4 summary bullets, got %d", cfg.SummaryBullets)
	}
	if cfg.AIActive() {
		t.Error("Expected AI to be inactive by default")
	}
	if cfg.Interval() != 24*time.Hour {
		t.Errorf("Expected interval 24h, got %v", cfg.Interval())
	}
	if cfg.ReenrichAfter() != 30*24*time.Hour {
		t.Errorf("Expected re-enrich after 720h, got %v", cfg.ReenrichAfter())
	}
	if Get() != cfg {
		t.Error("Expected Get to return the loaded configuration")
	}
}

func TestParseFlagsAndEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("SCHEDULER_INTERVAL", "3600")

	cfg, err := parse([]string{"--store", "mongo", "--ai-enabled", "--once", "--seed-file", "seed.json", "--max-items", "25"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.Store != StoreMongo {
		t.Errorf("Expected store 'mongo', got '%s'", cfg.Store)
	}
	if !cfg.AIActive() {
		t.Error("Expected AI to be active with key and flag")
	}
	if !cfg.Once || cfg.SeedFile != "seed.json" {
		t.Errorf("Expected once mode with seed file, got once=%v seed=%q", cfg.Once, cfg.SeedFile)
	}
	if cfg.MaxItems != 25 {
		t.Errorf("Expected max items 25, got %d", cfg.MaxItems)
	}
	if cfg.SchedulerInterval != 3600 {
		t.Errorf("Expected scheduler interval from env 3600, got %d", cfg.SchedulerInterval)
	}
}

func TestParseValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown store", []string{"--store", "postgres"}},
		{"zero fetch concurrency", []string{"--fetch-concurrency", "0"}},
		{"too many bullets", []string{"--summary-bullets", "9"}},
		{"negative interval", []string{"--scheduler-interval", "-5"}},
		{"zero max items", []string{"--max-items", "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parse(tt.args); err == nil {
				t.Errorf("Expected error for %v", tt.args)
			}
		})
	}
}

func TestApplyTimezone(t *testing.T) {
	original := time.Local
	defer func() { time.Local = original }()

	if err := applyTimezone("Europe/London"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if time.Local.String() != "Europe/London" {
		t.Errorf("Expected Europe/London, got %s", time.Local.String())
	}

	if err := applyTimezone("Not/AZone"); err == nil {
		t.Error("Expected error for invalid timezone")
	}
}
