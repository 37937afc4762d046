package enrich

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/lysyi3m/guideline-hub/app/guideline"
)

const DefaultTimeout = 20 * time.Second

// Enricher produces a summary and tags for a draft. A nil provider always
// takes the fallback path, and provider failures degrade to it silently.
type Enricher struct {
	provider Provider
	timeout  time.Duration
	bullets  int
}

func NewEnricher(provider Provider, timeout time.Duration, bullets int) *Enricher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Enricher{
		provider: provider,
		timeout:  timeout,
		bullets:  clampBullets(bullets),
	}
}

func (e *Enricher) ProviderName() string {
	if e.provider == nil {
		return MethodFallback
	}
	return e.provider.Name()
}

func (e *Enricher) Run(ctx context.Context, draft guideline.Draft) Result {
	req := Request{Title: draft.Title, Snippet: draft.Snippet, Bullets: e.bullets}

	if e.provider == nil {
		return Fallback(req)
	}

	aiCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	result, err := e.provider.Enrich(aiCtx, req)
	if err == nil && result.Summary == "" {
		err = &ProviderError{Kind: KindMalformed, Err: errors.New("empty summary")}
	}
	if err != nil {
		kind := ErrorKind("unknown")
		var providerErr *ProviderError
		if errors.As(err, &providerErr) {
			kind = providerErr.Kind
		}
		slog.Warn("Enrichment unavailable, using fallback", "provider", e.provider.Name(), "kind", string(kind), "title", draft.Title, "error", err)
		return Fallback(req)
	}

	if len(result.Tags) == 0 {
		result.Tags = FallbackTags(draft.Title)
	}
	result.Method = MethodAI
	return result
}
