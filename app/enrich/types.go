package enrich

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable is wrapped by every provider failure.
var ErrUnavailable = errors.New("enrichment unavailable")

const (
	MinBullets     = 3
	MaxBullets     = 5
	DefaultBullets = 4

	MethodAI       = "ai"
	MethodFallback = "fallback"

	bulletPrefix = "• "
)

type Request struct {
	Title   string
	Snippet string
	Bullets int
}

type Result struct {
	Summary string
	Tags    []string
	Method  string
}

// Provider is an external summarization capability.
type Provider interface {
	Name() string
	Enrich(ctx context.Context, req Request) (Result, error)
}

type ErrorKind string

const (
	KindTimeout   ErrorKind = "timeout"
	KindMalformed ErrorKind = "malformed"
	KindQuota     ErrorKind = "quota"
	KindAuth      ErrorKind = "auth"
	KindTransport ErrorKind = "transport"
	KindDisabled  ErrorKind = "disabled"
)

type ProviderError struct {
	Kind ErrorKind
	Err  error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("enrichment %s", e.Kind)
	}
	return fmt.Sprintf("enrichment %s: %v", e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUnavailable}
	}
	return []error{ErrUnavailable, e.Err}
}

func newProviderError(kind ErrorKind, format string, args ...any) *ProviderError {
	return &ProviderError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func clampBullets(n int) int {
	switch {
	case n <= 0:
		return DefaultBullets
	case n < MinBullets:
		return MinBullets
	case n > MaxBullets:
		return MaxBullets
	default:
		return n
	}
}
