package cfg

import "time"

const (
	StoreSQLite = "sqlite"
	StoreMongo  = "mongo"
)

type Cfg struct {
	// Store configuration
	Store         string
	DBPath        string
	MongoURI      string
	MongoDatabase string

	// Application configuration
	SourcesDir        string
	Port              string
	APIAccessKey      string
	SchedulerInterval int
	SkipInitialRun    bool
	FetchConcurrency  int
	EnrichConcurrency int
	MaxItems          int
	ReenrichAfterDays int
	Once              bool
	SeedFile          string

	// Enrichment configuration
	AIEnabled           bool
	OpenAIAPIKey        string
	OpenAIModel         string
	OpenAIBaseURL       string
	AITimeout           int
	AIRequestsPerMinute int
	SummaryBullets      int

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}

// AIActive reports whether summaries should be requested from the AI provider.
func (c *Cfg) AIActive() bool {
	return c.AIEnabled && c.OpenAIAPIKey != ""
}

func (c *Cfg) Interval() time.Duration {
	return time.Duration(c.SchedulerInterval) * time.Second
}

func (c *Cfg) ReenrichAfter() time.Duration {
	return time.Duration(c.ReenrichAfterDays) * 24 * time.Hour
}
