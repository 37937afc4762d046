package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/lysyi3m/guideline-hub/app/database"
	"github.com/lysyi3m/guideline-hub/app/enrich"
	"github.com/lysyi3m/guideline-hub/app/guideline"
	"github.com/lysyi3m/guideline-hub/app/source"
)

const (
	DefaultFetchConcurrency  = 3
	DefaultEnrichConcurrency = 4
)

type Options struct {
	FetchConcurrency  int
	EnrichConcurrency int
	// ReenrichAfter refreshes summary and tags of known guidelines whose
	// enrichment is older than this. Zero disables re-enrichment.
	ReenrichAfter time.Duration
}

// Orchestrator runs ingestion cycles: fetch every enabled source, normalize,
// deduplicate by fingerprint, enrich what is new and persist.
type Orchestrator struct {
	configs   ConfigProvider
	adapters  AdapterResolver
	enricher  Enricher
	extractor ContentExtractor
	filterer  *source.Filterer
	store     database.GuidelineWriter
	runs      database.RunRepository
	options   Options
	now       func() time.Time

	pacersMu sync.Mutex
	pacers   map[string]*rate.Limiter
}

// NewOrchestrator wires the cycle dependencies. extractor and runs may be nil.
func NewOrchestrator(configs ConfigProvider, adapters AdapterResolver, enricher Enricher,
	extractor ContentExtractor, store database.GuidelineWriter, runs database.RunRepository, options Options) *Orchestrator {
	if options.FetchConcurrency <= 0 {
		options.FetchConcurrency = DefaultFetchConcurrency
	}
	if options.EnrichConcurrency <= 0 {
		options.EnrichConcurrency = DefaultEnrichConcurrency
	}

	return &Orchestrator{
		configs:   configs,
		adapters:  adapters,
		enricher:  enricher,
		extractor: extractor,
		filterer:  source.NewFilterer(),
		store:     store,
		runs:      runs,
		options:   options,
		now:       func() time.Time { return time.Now().UTC() },
		pacers:    make(map[string]*rate.Limiter),
	}
}

type fetchResult struct {
	config *source.Config
	items  []guideline.RawItem
	err    error
}

type candidate struct {
	draft  guideline.Draft
	config *source.Config
}

// cycle holds the mutable state of one Run call.
type cycle struct {
	mu      sync.Mutex
	summary Summary
	cancel  context.CancelFunc
}

func (c *cycle) update(fn func(s *Summary)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.summary)
}

func (c *cycle) abort(err error) {
	c.update(func(s *Summary) {
		if !s.Aborted {
			s.Aborted = true
			s.SourceErrors[storeErrorKey] = err.Error()
		}
	})
	c.cancel()
}

// Run executes one full cycle. It never returns an error: failures are
// isolated per source and per item and reported in the Summary.
func (o *Orchestrator) Run(ctx context.Context, reason string) Summary {
	cycleCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c := &cycle{
		cancel: cancel,
		summary: Summary{
			RunID:        uuid.NewString(),
			Reason:       reason,
			Status:       StatusRunning,
			StartedAt:    o.now(),
			SourceErrors: make(map[string]string),
		},
	}

	configs := o.configs.GetEnabledConfigs()
	c.summary.SourcesAttempted = len(configs)
	slog.Info("Ingestion cycle started", "id", c.summary.RunID, "reason", reason, "sources", len(configs))

	results := o.fetchAll(cycleCtx, configs)
	candidates := o.normalizeAll(c, results)

	if len(candidates) > 0 && cycleCtx.Err() == nil {
		o.processAll(ctx, cycleCtx, c, candidates)
	}

	if ctx.Err() != nil && !c.summary.Aborted {
		c.summary.Aborted = true
		c.summary.SourceErrors["cycle"] = "cancelled: " + ctx.Err().Error()
	}

	summary := c.summary
	summary.FinishedAt = o.now()
	summary.Status = StatusCompleted
	if summary.Aborted || summary.SourcesFailed > 0 {
		summary.Status = StatusCompletedWithErrors
	}

	if o.runs != nil {
		if err := o.runs.SaveRun(context.WithoutCancel(ctx), summary.Run()); err != nil {
			slog.Error("Failed to save ingestion run", "id", summary.RunID, "error", err)
		}
	}

	slog.Info("Ingestion cycle completed",
		"id", summary.RunID,
		"status", string(summary.Status),
		"duration", summary.Duration(),
		"sources", summary.SourcesAttempted,
		"failed_sources", summary.SourcesFailed,
		"seen", summary.ItemsSeen,
		"new", summary.ItemsNew,
		"updated", summary.ItemsUpdated,
		"rejected", summary.ItemsRejected,
		"failed", summary.ItemsFailed,
		"reenriched", summary.ItemsReenriched,
		"fallbacks", summary.Fallbacks)

	return summary
}

func (o *Orchestrator) fetchAll(ctx context.Context, configs []*source.Config) []fetchResult {
	results := make([]fetchResult, len(configs))

	var g errgroup.Group
	g.SetLimit(o.options.FetchConcurrency)

	for i, config := range configs {
		g.Go(func() error {
			items, err := o.fetch(ctx, config)
			results[i] = fetchResult{config: config, items: items, err: err}
			return nil
		})
	}
	g.Wait()

	return results
}

func (o *Orchestrator) fetch(ctx context.Context, config *source.Config) (items []guideline.RawItem, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: adapter panic: %v", source.ErrUnavailable, r)
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	adapter, err := o.adapters.Resolve(config.Adapter)
	if err != nil {
		return nil, err
	}

	fetchCtx := ctx
	if config.Settings.Timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, time.Duration(config.Settings.Timeout)*time.Second)
		defer cancel()
	}

	start := time.Now()
	items, err = adapter.Fetch(fetchCtx, source.Request{Config: config, Pacer: o.pacer(config)})
	if err != nil {
		return nil, err
	}

	slog.Debug("Source fetched", "source", config.Name, "adapter", adapter.Name(), "items", len(items), "duration", time.Since(start))
	return items, nil
}

// pacer returns the per-source politeness limiter. Limiters outlive a cycle
// so back-to-back cycles still honour the delay.
func (o *Orchestrator) pacer(config *source.Config) *rate.Limiter {
	o.pacersMu.Lock()
	defer o.pacersMu.Unlock()

	limit := rate.Inf
	if config.Settings.DelayMS > 0 {
		limit = rate.Every(time.Duration(config.Settings.DelayMS) * time.Millisecond)
	}

	limiter, ok := o.pacers[config.Name]
	if !ok {
		limiter = rate.NewLimiter(limit, 1)
		o.pacers[config.Name] = limiter
	} else if limiter.Limit() != limit {
		limiter.SetLimit(limit)
	}
	return limiter
}

func (o *Orchestrator) normalizeAll(c *cycle, results []fetchResult) []candidate {
	var candidates []candidate
	seen := make(map[string]bool)

	for _, result := range results {
		name := result.config.Name
		if result.err != nil {
			c.summary.SourcesFailed++
			c.summary.SourceErrors[name] = result.err.Error()
			slog.Warn("Source unavailable", "source", name, "blocked", errors.Is(result.err, source.ErrBlocked), "error", result.err)
			continue
		}

		normalizer, err := guideline.NewNormalizer(guideline.NormalizerOptions{
			Source:         result.config.Source,
			BaseURL:        result.config.BaseURL,
			DateLayouts:    result.config.DateFormats,
			MinTitleLength: result.config.Settings.MinTitleLength,
			FuzzyDates:     result.config.Settings.FuzzyDates,
		})
		if err != nil {
			c.summary.SourcesFailed++
			c.summary.SourceErrors[name] = err.Error()
			slog.Error("Invalid source configuration", "source", name, "error", err)
			continue
		}

		items, dropped, reasons := o.filterer.Run(result.items, result.config)
		for i := range dropped {
			c.summary.ItemsSeen++
			c.summary.ItemsRejected++
			slog.Debug("Item filtered", "source", name, "link", dropped[i][guideline.FieldLink], "reason", reasons[i])
		}

		if limit := result.config.Settings.MaxItems; limit > 0 && len(items) > limit {
			items = items[:limit]
		}

		for _, raw := range items {
			c.summary.ItemsSeen++

			draft, err := normalizer.Run(raw)
			if err != nil {
				c.summary.ItemsRejected++
				slog.Debug("Item rejected", "source", name, "error", err)
				continue
			}

			draft.Fingerprint = guideline.Fingerprint(draft)
			if seen[draft.Fingerprint] {
				continue
			}
			seen[draft.Fingerprint] = true
			candidates = append(candidates, candidate{draft: draft, config: result.config})
		}
	}

	return candidates
}

// processAll looks the candidates up in one batch and then enriches and
// writes them with bounded parallelism. Writes use parent detached from
// cancellation; cycleCtx decides whether an item starts and whether an
// enrichment result is still written.
func (o *Orchestrator) processAll(parent, cycleCtx context.Context, c *cycle, candidates []candidate) {
	fingerprints := make([]string, len(candidates))
	for i, cand := range candidates {
		fingerprints[i] = cand.draft.Fingerprint
	}

	existing, err := o.store.GetByFingerprints(cycleCtx, fingerprints)
	if err != nil {
		slog.Error("Failed to look up fingerprints, ending cycle", "error", err)
		c.abort(err)
		return
	}

	writeCtx := context.WithoutCancel(parent)

	var g errgroup.Group
	g.SetLimit(o.options.EnrichConcurrency)

	for _, cand := range candidates {
		if cycleCtx.Err() != nil {
			break
		}
		stored, known := existing[cand.draft.Fingerprint]

		g.Go(func() error {
			if cycleCtx.Err() != nil {
				return nil
			}

			var err error
			if known {
				err = o.refreshKnown(cycleCtx, writeCtx, c, cand, stored)
			} else {
				err = o.insertNew(cycleCtx, writeCtx, c, cand)
			}

			switch {
			case err == nil:
			case errors.Is(err, database.ErrUnavailable):
				slog.Error("Store unavailable, ending cycle", "source", cand.config.Name, "title", cand.draft.Title, "error", err)
				c.abort(err)
			default:
				slog.Error("Failed to store guideline", "source", cand.config.Name, "title", cand.draft.Title, "error", err)
				c.update(func(s *Summary) { s.ItemsFailed++ })
			}
			return nil
		})
	}
	g.Wait()
}

func (o *Orchestrator) insertNew(ctx, writeCtx context.Context, c *cycle, cand candidate) error {
	draft := cand.draft

	if o.extractor != nil && cand.config.Settings.ExtractContent {
		text, err := o.extractor.Run(ctx, o.pacer(cand.config), draft.Link, cand.config.Settings.RespectRobots)
		if err != nil {
			slog.Debug("Content extraction failed", "source", cand.config.Name, "link", draft.Link, "error", err)
		} else if text != "" {
			draft.Snippet = text
		}
	}

	result := o.enricher.Run(ctx, draft)
	if ctx.Err() != nil {
		return nil
	}
	g := guideline.NewGuideline(draft, result.Summary, result.Tags, result.Method, o.now())

	if _, err := o.store.Upsert(writeCtx, g); err != nil {
		return err
	}

	c.update(func(s *Summary) {
		s.ItemsNew++
		if result.Method == enrich.MethodFallback {
			s.Fallbacks++
		}
	})
	return nil
}

func (o *Orchestrator) refreshKnown(ctx, writeCtx context.Context, c *cycle, cand candidate, stored guideline.Guideline) error {
	now := o.now()

	if !o.stale(stored, now) {
		if err := o.store.Touch(writeCtx, stored.Fingerprint, now); err != nil {
			return err
		}
		c.update(func(s *Summary) { s.ItemsUpdated++ })
		return nil
	}

	result := o.enricher.Run(ctx, cand.draft)
	if ctx.Err() != nil {
		return nil
	}
	stored.Summary = result.Summary
	stored.Tags = result.Tags
	stored.EnrichedBy = result.Method
	stored.EnrichedAt = now
	stored.LastSeenAt = now
	if !cand.draft.PublishedDate.IsUnknown() {
		stored.PublishedDate = cand.draft.PublishedDate
	}

	if _, err := o.store.Upsert(writeCtx, stored); err != nil {
		return err
	}

	c.update(func(s *Summary) {
		s.ItemsUpdated++
		s.ItemsReenriched++
		if result.Method == enrich.MethodFallback {
			s.Fallbacks++
		}
	})
	return nil
}

func (o *Orchestrator) stale(g guideline.Guideline, now time.Time) bool {
	if o.options.ReenrichAfter <= 0 {
		return false
	}
	return now.Sub(g.EnrichedAt) > o.options.ReenrichAfter
}
