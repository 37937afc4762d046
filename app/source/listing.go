package source

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/lysyi3m/guideline-hub/app/guideline"
)

// extractListing pulls raw items out of a listing page using the source's
// selectors. Links are resolved against pageURL.
func extractListing(root *goquery.Selection, pageURL *url.URL, config *Config) []guideline.RawItem {
	sel := config.Selectors
	seen := make(map[string]struct{})
	items := make([]guideline.RawItem, 0)

	add := func(container, anchor *goquery.Selection) {
		href, ok := anchor.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		if sel.LinkPattern != "" && !strings.Contains(href, sel.LinkPattern) {
			return
		}

		link := resolveHref(pageURL, href)
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}

		title := anchor.Text()
		if sel.Title != "" {
			if t := strings.TrimSpace(container.Find(sel.Title).First().Text()); t != "" {
				title = t
			}
		}
		if strings.TrimSpace(title) == "" {
			title = anchor.AttrOr("title", "")
		}

		item := guideline.RawItem{
			guideline.FieldTitle: title,
			guideline.FieldLink:  link,
		}
		if sel.Date != "" {
			date := container.Find(sel.Date).First()
			item[guideline.FieldDate] = date.AttrOr("datetime", date.Text())
		}
		if sel.Content != "" {
			item[guideline.FieldContent] = container.Find(sel.Content).First().Text()
		}
		items = append(items, item)
	}

	if sel.Item != "" {
		root.Find(sel.Item).Each(func(_ int, container *goquery.Selection) {
			anchor := container.Find(sel.Link).First()
			if anchor.Length() == 0 && container.Is(sel.Link) {
				anchor = container
			}
			add(container, anchor)
		})
		return items
	}

	root.Find(sel.Link).Each(func(_ int, anchor *goquery.Selection) {
		add(anchor.Parent(), anchor)
	})
	return items
}

func resolveHref(pageURL *url.URL, href string) string {
	if pageURL == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return pageURL.ResolveReference(ref).String()
}
