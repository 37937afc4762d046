package source

import (
	"context"
	"errors"

	"github.com/lysyi3m/guideline-hub/app/guideline"
)

var (
	// ErrUnavailable covers network errors, timeouts, non-2xx responses and
	// undecodable listings.
	ErrUnavailable = errors.New("source unavailable")
	// ErrBlocked means the source refused us (robots.txt, 401/403/429).
	ErrBlocked = errors.New("source blocked")
)

const (
	AdapterHTML  = "html"
	AdapterCrawl = "crawl"
	AdapterFeed  = "feed"
)

// Pacer is awaited before every network request made for a source.
// *rate.Limiter satisfies it.
type Pacer interface {
	Wait(ctx context.Context) error
}

type Request struct {
	Config *Config
	Pacer  Pacer
}

// Adapter fetches the current listing of one kind of source. Returning zero
// items is not an error.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, req Request) ([]guideline.RawItem, error)
}

type Config struct {
	Name        string           // Derived from filename (without .yml extension)
	Source      guideline.Source `yaml:"source"`
	Adapter     string           `yaml:"adapter"`
	BaseURL     string           `yaml:"base_url"`
	URL         string           `yaml:"url"`
	DateFormats []string         `yaml:"date_formats"`
	Settings    ConfigSettings   `yaml:"settings"`
	Selectors   ConfigSelectors  `yaml:"selectors"`
	Filters     []ConfigFilter   `yaml:"filters"`
}

type ConfigSettings struct {
	Enabled        bool `yaml:"enabled"`
	MaxItems       int  `yaml:"max_items"`
	Timeout        int  `yaml:"timeout"`  // seconds
	DelayMS        int  `yaml:"delay_ms"` // minimum gap between requests
	ExtractContent bool `yaml:"extract_content"`
	MinTitleLength int  `yaml:"min_title_length"`
	RespectRobots  bool `yaml:"respect_robots"`
	FuzzyDates     bool `yaml:"fuzzy_dates"`
	MaxPages       int  `yaml:"max_pages"` // crawl adapter only
}

type ConfigSelectors struct {
	Item        string `yaml:"item"`
	Link        string `yaml:"link"`
	LinkPattern string `yaml:"link_pattern"`
	Title       string `yaml:"title"`
	Date        string `yaml:"date"`
	Content     string `yaml:"content"`
	NextPage    string `yaml:"next_page"`
}

func wait(ctx context.Context, pacer Pacer) error {
	if pacer == nil {
		return ctx.Err()
	}
	return pacer.Wait(ctx)
}
