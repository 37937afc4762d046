package source

import (
	"fmt"
	"strings"

	"github.com/lysyi3m/guideline-hub/app/guideline"
)

// ConfigFilter drops listing entries whose field matches any exclude, or
// none of the includes when includes are given. Matching is a
// case-insensitive substring test.
type ConfigFilter struct {
	Field    string   `yaml:"field"`
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

type Filterer struct{}

func NewFilterer() *Filterer {
	return &Filterer{}
}

// Run splits items into kept and dropped ones. reasons is parallel to dropped.
func (f *Filterer) Run(items []guideline.RawItem, config *Config) (kept, dropped []guideline.RawItem, reasons []string) {
	if len(config.Filters) == 0 {
		return items, nil, nil
	}

	kept = make([]guideline.RawItem, 0, len(items))
	for _, item := range items {
		if isFiltered, reason := f.applyFilters(item, config.Filters); isFiltered {
			dropped = append(dropped, item)
			reasons = append(reasons, reason)
			continue
		}
		kept = append(kept, item)
	}

	return kept, dropped, reasons
}

func (f *Filterer) applyFilters(item guideline.RawItem, filters []ConfigFilter) (bool, string) {
	for _, filter := range filters {
		value := item[filter.Field]

		for _, exclude := range filter.Excludes {
			if f.matchesFilter(value, exclude) {
				return true, fmt.Sprintf("excluded by %s filter: contains '%s'", filter.Field, exclude)
			}
		}

		if len(filter.Includes) > 0 {
			matched := false
			for _, include := range filter.Includes {
				if f.matchesFilter(value, include) {
					matched = true
					break
				}
			}
			if !matched {
				return true, fmt.Sprintf("excluded by %s filter: does not contain any of %v", filter.Field, filter.Includes)
			}
		}
	}

	return false, ""
}

func (f *Filterer) matchesFilter(value, pattern string) bool {
	return strings.Contains(strings.ToLower(value), strings.ToLower(pattern))
}
