package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gocolly/colly"
	"github.com/lysyi3m/guideline-hub/app/guideline"
)

// CrawlAdapter walks paginated listings, following the next-page selector
// up to MaxPages.
type CrawlAdapter struct {
	fetcher *Fetcher
}

func NewCrawlAdapter(fetcher *Fetcher) *CrawlAdapter {
	return &CrawlAdapter{fetcher: fetcher}
}

func (a *CrawlAdapter) Name() string {
	return AdapterCrawl
}

func (a *CrawlAdapter) Fetch(ctx context.Context, req Request) ([]guideline.RawItem, error) {
	config := req.Config
	maxPages := max(config.Settings.MaxPages, 1)

	c := colly.NewCollector(
		colly.UserAgent(a.fetcher.UserAgent()),
		colly.MaxDepth(maxPages),
	)
	c.IgnoreRobotsTxt = !config.Settings.RespectRobots
	if deadline, ok := ctx.Deadline(); ok {
		c.SetRequestTimeout(time.Until(deadline))
	}

	var (
		items    []guideline.RawItem
		pages    int
		abortErr error
		status   int
	)

	c.OnRequest(func(r *colly.Request) {
		if err := wait(ctx, req.Pacer); err != nil {
			abortErr = err
			r.Abort()
		}
	})

	c.OnHTML("html", func(e *colly.HTMLElement) {
		pages++
		items = append(items, extractListing(e.DOM, e.Request.URL, config)...)

		if config.Selectors.NextPage == "" || pages >= maxPages || len(items) >= config.Settings.MaxItems {
			return
		}
		next, ok := e.DOM.Find(config.Selectors.NextPage).First().Attr("href")
		if !ok || next == "" {
			return
		}
		if err := e.Request.Visit(next); err != nil {
			slog.Debug("Stopped following pagination", "source", config.Source, "page", pages, "error", err)
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		if r.Request.Depth == 1 {
			status = r.StatusCode
		}
	})

	err := c.Visit(config.URL)
	switch {
	case abortErr != nil && pages == 0:
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, abortErr)
	case errors.Is(err, colly.ErrRobotsTxtBlocked):
		return nil, fmt.Errorf("%w: disallowed by robots.txt", ErrBlocked)
	case status == http.StatusUnauthorized, status == http.StatusForbidden, status == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: HTTP %d", ErrBlocked, status)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return items, nil
}
