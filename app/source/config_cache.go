package source

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/lysyi3m/guideline-hub/app/guideline"
	"gopkg.in/yaml.v3"
)

const (
	defaultMaxItems       = 10
	defaultTimeout        = 30
	defaultDelayMS        = 2000
	defaultMinTitleLength = 10
	defaultMaxPages       = 1
)

type ConfigCache struct {
	sourcesDir      string
	defaultMaxItems int
	cache           map[string]*Config
	mu              sync.RWMutex
}

func NewConfigCache(sourcesDir string, defaultMaxItems int) *ConfigCache {
	return &ConfigCache{
		sourcesDir:      sourcesDir,
		defaultMaxItems: defaultMaxItems,
		cache:           make(map[string]*Config),
	}
}

func (cc *ConfigCache) Run() error {
	if _, err := os.Stat(cc.sourcesDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(cc.sourcesDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		fileName := filepath.Base(file)
		name := fileName[:len(fileName)-4]

		config, err := cc.LoadConfig(name)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Source configuration loaded", "source", config.Source, "name", name, "adapter", config.Adapter, "enabled", config.Settings.Enabled)
	}

	return nil
}

func (cc *ConfigCache) LoadConfig(name string) (*Config, error) {
	configFile := cc.getConfigFilePath(name)
	sourceConfig, err := cc.parseConfig(configFile)
	if err != nil {
		return nil, err
	}

	sourceConfig.Name = name

	if err := cc.validateConfig(sourceConfig); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configFile, err)
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache[sourceConfig.Name] = sourceConfig

	return sourceConfig, nil
}

func (cc *ConfigCache) GetConfig(name string) (*Config, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	sourceConfig, ok := cc.cache[name]
	if !ok {
		return nil, fmt.Errorf("source config with name '%s' not found", name)
	}
	return sourceConfig, nil
}

func (cc *ConfigCache) GetConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	configsCopy := make(map[string]*Config, len(cc.cache))
	for k, v := range cc.cache {
		configsCopy[k] = v
	}
	return configsCopy
}

// GetEnabledConfigs returns enabled sources ordered by name.
func (cc *ConfigCache) GetEnabledConfigs() []*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	enabled := make([]*Config, 0, len(cc.cache))
	for _, v := range cc.cache {
		if v.Settings.Enabled {
			enabled = append(enabled, v)
		}
	}
	sort.Slice(enabled, func(i, j int) bool { return enabled[i].Name < enabled[j].Name })
	return enabled
}

func (cc *ConfigCache) GetConfigCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

func (cc *ConfigCache) parseConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var sourceConfig Config
	if err := yaml.Unmarshal(data, &sourceConfig); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if sourceConfig.Adapter == "" {
		sourceConfig.Adapter = AdapterHTML
	}
	if sourceConfig.Settings.MaxItems == 0 {
		sourceConfig.Settings.MaxItems = cc.defaultMaxItems
		if sourceConfig.Settings.MaxItems <= 0 {
			sourceConfig.Settings.MaxItems = defaultMaxItems
		}
	}
	if sourceConfig.Settings.Timeout == 0 {
		sourceConfig.Settings.Timeout = defaultTimeout
	}
	if sourceConfig.Settings.DelayMS == 0 {
		sourceConfig.Settings.DelayMS = defaultDelayMS
	}
	if sourceConfig.Settings.MinTitleLength == 0 {
		sourceConfig.Settings.MinTitleLength = defaultMinTitleLength
	}
	if sourceConfig.Settings.MaxPages == 0 {
		sourceConfig.Settings.MaxPages = defaultMaxPages
	}

	return &sourceConfig, nil
}

func (cc *ConfigCache) validateConfig(sourceConfig *Config) error {
	if sourceConfig == nil {
		return fmt.Errorf("sourceConfig is nil")
	}

	requiredFields := map[string]string{
		"source name": sourceConfig.Name,
		"source":      string(sourceConfig.Source),
		"source URL":  sourceConfig.URL,
		"base URL":    sourceConfig.BaseURL,
	}

	for fieldName, fieldValue := range requiredFields {
		if fieldValue == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
	}

	code, err := guideline.ParseSource(string(sourceConfig.Source))
	if err != nil {
		return err
	}
	sourceConfig.Source = code

	nonNegativeFields := map[string]int{
		"max items":        sourceConfig.Settings.MaxItems,
		"timeout":          sourceConfig.Settings.Timeout,
		"delay ms":         sourceConfig.Settings.DelayMS,
		"min title length": sourceConfig.Settings.MinTitleLength,
		"max pages":        sourceConfig.Settings.MaxPages,
	}

	for fieldName, fieldValue := range nonNegativeFields {
		if fieldValue < 0 {
			return fmt.Errorf("%s must be non-negative", fieldName)
		}
	}

	switch sourceConfig.Adapter {
	case AdapterHTML, AdapterCrawl:
		if sourceConfig.Selectors.Link == "" {
			return fmt.Errorf("link selector is required for %s adapter", sourceConfig.Adapter)
		}
	case AdapterFeed:
	default:
		return fmt.Errorf("unknown adapter: %s", sourceConfig.Adapter)
	}

	for _, filter := range sourceConfig.Filters {
		switch filter.Field {
		case guideline.FieldTitle, guideline.FieldLink, guideline.FieldContent:
		default:
			return fmt.Errorf("unsupported filter field: %s", filter.Field)
		}
	}

	if sourceConfig.Adapter == AdapterCrawl && sourceConfig.Settings.MaxPages > 1 && sourceConfig.Selectors.NextPage == "" {
		return fmt.Errorf("next page selector is required when max pages is greater than 1")
	}

	return nil
}

func (cc *ConfigCache) getConfigFilePath(name string) string {
	return filepath.Join(cc.sourcesDir, name+".yml")
}
