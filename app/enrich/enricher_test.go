package enrich

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/lysyi3m/guideline-hub/app/guideline"
)

type mockProvider struct {
	result Result
	err    error
	delay  time.Duration
	calls  int
	last   Request
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Enrich(ctx context.Context, req Request) (Result, error) {
	m.calls++
	m.last = req
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return Result{}, &ProviderError{Kind: KindTimeout, Err: ctx.Err()}
		}
	}
	return m.result, m.err
}

var opioidDraft = guideline.Draft{
	Source: guideline.SourceCDC,
	Title:  "Opioid Prescribing Update",
	Link:   "https://www.cdc.gov/mmwr/opioids",
}

func TestEnricherWithoutProvider(t *testing.T) {
	enricher := NewEnricher(nil, time.Second, 4)

	result := enricher.Run(context.Background(), opioidDraft)

	if result.Method != MethodFallback {
		t.Errorf("Expected fallback method, got %s", result.Method)
	}
	if result.Summary == "" {
		t.Error("Expected non-empty summary")
	}
	if !containsTag(result.Tags, "opioid") {
		t.Errorf("Expected tags to include 'opioid', got %v", result.Tags)
	}
	if enricher.ProviderName() != MethodFallback {
		t.Errorf("Expected provider name %s, got %s", MethodFallback, enricher.ProviderName())
	}
}

func TestEnricherUsesProvider(t *testing.T) {
	provider := &mockProvider{result: Result{Summary: "• a\n• b\n• c", Tags: []string{"opioid"}}}
	enricher := NewEnricher(provider, time.Second, 9)

	result := enricher.Run(context.Background(), guideline.Draft{Title: "Opioid Prescribing Update", Snippet: "text"})

	if result.Method != MethodAI {
		t.Errorf("Expected AI method, got %s", result.Method)
	}
	if result.Summary != "• a\n• b\n• c" {
		t.Errorf("Unexpected summary %q", result.Summary)
	}
	if provider.last.Bullets != MaxBullets {
		t.Errorf("Expected bullets clamped to %d, got %d", MaxBullets, provider.last.Bullets)
	}
	if provider.last.Snippet != "text" {
		t.Errorf("Expected snippet to be forwarded, got %q", provider.last.Snippet)
	}
}

func TestEnricherFillsMissingTags(t *testing.T) {
	provider := &mockProvider{result: Result{Summary: "• a\n• b\n• c"}}
	result := NewEnricher(provider, time.Second, 3).Run(context.Background(), opioidDraft)

	if !reflect.DeepEqual(result.Tags, FallbackTags(opioidDraft.Title)) {
		t.Errorf("Expected keyword tags when provider returns none, got %v", result.Tags)
	}
}

func TestEnricherFallsBackOnFailure(t *testing.T) {
	tests := []struct {
		name     string
		provider *mockProvider
	}{
		{"timeout", &mockProvider{delay: time.Second}},
		{"quota", &mockProvider{err: &ProviderError{Kind: KindQuota}}},
		{"auth", &mockProvider{err: &ProviderError{Kind: KindAuth}}},
		{"untyped error", &mockProvider{err: errors.New("boom")}},
		{"empty summary", &mockProvider{result: Result{Tags: []string{"x"}}}},
	}

	want := Fallback(Request{Title: opioidDraft.Title, Bullets: 4})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enricher := NewEnricher(tt.provider, 20*time.Millisecond, 4)
			result := enricher.Run(context.Background(), opioidDraft)

			if !reflect.DeepEqual(result, want) {
				t.Errorf("Expected fallback result %+v, got %+v", want, result)
			}
			if tt.provider.calls != 1 {
				t.Errorf("Expected exactly 1 provider call, got %d", tt.provider.calls)
			}
		})
	}
}

func TestProviderErrorIsUnavailable(t *testing.T) {
	err := error(&ProviderError{Kind: KindTimeout, Err: context.DeadlineExceeded})

	if !errors.Is(err, ErrUnavailable) {
		t.Error("Expected ProviderError to match ErrUnavailable")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("Expected ProviderError to unwrap its cause")
	}
	if !strings.Contains(err.Error(), "timeout") {
		t.Errorf("Expected kind in message, got %q", err.Error())
	}
}

func containsTag(tags []string, want string) bool {
	for _, tag := range tags {
		if tag == want {
			return true
		}
	}
	return false
}
