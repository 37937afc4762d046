package source

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/lysyi3m/guideline-hub/app/guideline"
	"github.com/mmcdole/gofeed"
)

// FeedAdapter reads RSS/Atom/JSON feed listings.
type FeedAdapter struct {
	fetcher *Fetcher
}

func NewFeedAdapter(fetcher *Fetcher) *FeedAdapter {
	return &FeedAdapter{fetcher: fetcher}
}

func (a *FeedAdapter) Name() string {
	return AdapterFeed
}

func (a *FeedAdapter) Fetch(ctx context.Context, req Request) ([]guideline.RawItem, error) {
	page, err := a.fetcher.Get(ctx, req.Pacer, req.Config.URL, req.Config.Settings.RespectRobots)
	if err != nil {
		return nil, err
	}

	// gofeed parsers keep state between calls
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse feed: %v", ErrUnavailable, err)
	}

	items := make([]guideline.RawItem, 0, len(feed.Items))
	for _, item := range feed.Items {
		link := item.Link
		if link == "" && len(item.Links) > 0 {
			link = item.Links[0]
		}

		raw := guideline.RawItem{
			guideline.FieldTitle: item.Title,
			guideline.FieldLink:  resolveHref(page.URL, strings.TrimSpace(link)),
			guideline.FieldDate:  feedItemDate(item),
		}
		if text := htmlToText(item.Description); text != "" {
			raw[guideline.FieldContent] = text
		}
		items = append(items, raw)
	}

	return items, nil
}

func feedItemDate(item *gofeed.Item) string {
	switch {
	case item.PublishedParsed != nil:
		return item.PublishedParsed.UTC().Format(time.RFC3339)
	case item.UpdatedParsed != nil:
		return item.UpdatedParsed.UTC().Format(time.RFC3339)
	case item.Published != "":
		return item.Published
	default:
		return item.Updated
	}
}

func htmlToText(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
