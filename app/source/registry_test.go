package source

import (
	"context"
	"reflect"
	"testing"

	"github.com/lysyi3m/guideline-hub/app/guideline"
)

type stubAdapter struct {
	name string
}

func (s stubAdapter) Name() string { return s.name }

func (s stubAdapter) Fetch(ctx context.Context, req Request) ([]guideline.RawItem, error) {
	return nil, nil
}

func TestRegistryResolve(t *testing.T) {
	registry := NewRegistry()
	registry.Register(stubAdapter{name: "pdf"})

	adapter, err := registry.Resolve("pdf")
	if err != nil {
		t.Fatal(err)
	}
	if adapter.Name() != "pdf" {
		t.Errorf("Expected adapter 'pdf', got '%s'", adapter.Name())
	}

	if _, err := registry.Resolve("missing"); err == nil {
		t.Error("Expected error for unregistered adapter")
	}
}

func TestDefaultRegistry(t *testing.T) {
	registry := NewDefaultRegistry(NewFetcher(nil, testUserAgent))

	want := []string{AdapterCrawl, AdapterFeed, AdapterHTML}
	if got := registry.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected adapters %v, got %v", want, got)
	}
}
