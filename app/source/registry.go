package source

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps adapter names used in source configs to implementations.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: map[string]Adapter{}}
}

// NewDefaultRegistry registers the bundled html, crawl and feed adapters.
func NewDefaultRegistry(fetcher *Fetcher) *Registry {
	r := NewRegistry()
	r.Register(NewHTMLAdapter(fetcher))
	r.Register(NewCrawlAdapter(fetcher))
	r.Register(NewFeedAdapter(fetcher))
	return r
}

// Register adds or replaces an adapter.
func (r *Registry) Register(adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.Name()] = adapter
}

func (r *Registry) Resolve(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if adapter, ok := r.adapters[name]; ok {
		return adapter, nil
	}
	return nil, fmt.Errorf("adapter %s is not registered", name)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
