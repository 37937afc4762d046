package source

import (
	"bytes"
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"github.com/lysyi3m/guideline-hub/app/guideline"
)

// HTMLAdapter scrapes a single listing page.
type HTMLAdapter struct {
	fetcher *Fetcher
}

func NewHTMLAdapter(fetcher *Fetcher) *HTMLAdapter {
	return &HTMLAdapter{fetcher: fetcher}
}

func (a *HTMLAdapter) Name() string {
	return AdapterHTML
}

func (a *HTMLAdapter) Fetch(ctx context.Context, req Request) ([]guideline.RawItem, error) {
	page, err := a.fetcher.GetHTML(ctx, req.Pacer, req.Config.URL, req.Config.Settings.RespectRobots)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse HTML: %v", ErrUnavailable, err)
	}

	return extractListing(doc.Selection, page.URL, req.Config), nil
}
