package guideline

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/araddon/dateparse"
	"golang.org/x/text/unicode/norm"
)

var defaultDateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	time.RFC1123Z,
	time.RFC1123,
	"2 January 2006",
	"02 January 2006",
	"January 2, 2006",
	"January 2 2006",
	"Monday, January 2, 2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	"02 Jan 2006",
	"01/02/2006",
	"January 2006",
	"Jan 2006",
}

var dateLabelRe = regexp.MustCompile(`(?i)^\s*(last\s+updated|published(\s+on)?|updated(\s+on)?|posted(\s+on)?|release\s+date|date)\s*:?\s*`)

const minPlausibleYear = 1900

type NormalizerOptions struct {
	Source         Source
	BaseURL        string
	DateLayouts    []string
	MinTitleLength int
	FuzzyDates     bool
}

// Normalizer turns a source's raw items into drafts. It is safe for concurrent use.
type Normalizer struct {
	source     Source
	base       *url.URL
	layouts    []string
	minTitle   int
	fuzzyDates bool
	now        func() time.Time
}

func NewNormalizer(opts NormalizerOptions) (*Normalizer, error) {
	if opts.Source == "" {
		return nil, fmt.Errorf("source is required")
	}

	var base *url.URL
	if opts.BaseURL != "" {
		parsed, err := url.Parse(strings.TrimSpace(opts.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("invalid base URL %q: %w", opts.BaseURL, err)
		}
		if !parsed.IsAbs() {
			return nil, fmt.Errorf("base URL %q must be absolute", opts.BaseURL)
		}
		base = parsed
	}

	layouts := make([]string, 0, len(opts.DateLayouts)+len(defaultDateLayouts))
	layouts = append(layouts, opts.DateLayouts...)
	layouts = append(layouts, defaultDateLayouts...)

	return &Normalizer{
		source:     opts.Source,
		base:       base,
		layouts:    layouts,
		minTitle:   opts.MinTitleLength,
		fuzzyDates: opts.FuzzyDates,
		now:        time.Now,
	}, nil
}

func (n *Normalizer) Run(raw RawItem) (Draft, error) {
	title := NormalizeTitle(raw[FieldTitle])
	if title == "" {
		return Draft{}, fmt.Errorf("%w: empty title", ErrItemRejected)
	}
	if n.minTitle > 0 && utf8.RuneCountInString(title) < n.minTitle {
		return Draft{}, fmt.Errorf("%w: title %q shorter than %d characters", ErrItemRejected, title, n.minTitle)
	}

	link, err := n.normalizeLink(raw[FieldLink])
	if err != nil {
		return Draft{}, fmt.Errorf("%w: %v", ErrItemRejected, err)
	}

	snippet := collapseWhitespace(norm.NFKC.String(raw[FieldContent]))
	if snippet == title {
		snippet = ""
	}

	return Draft{
		Source:        n.source,
		Title:         title,
		Link:          link,
		PublishedDate: n.parseDate(raw[FieldDate]),
		Snippet:       snippet,
	}, nil
}

// NormalizeTitle applies NFKC, trims and collapses internal whitespace.
func NormalizeTitle(title string) string {
	return collapseWhitespace(norm.NFKC.String(title))
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func (n *Normalizer) normalizeLink(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty link")
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid link %q: %w", raw, err)
	}

	if !ref.IsAbs() {
		if n.base == nil {
			return "", fmt.Errorf("relative link %q without base URL", raw)
		}
		ref = n.base.ResolveReference(ref)
	}

	if ref.Scheme != "http" && ref.Scheme != "https" {
		return "", fmt.Errorf("unsupported link scheme %q", ref.Scheme)
	}
	if ref.Host == "" {
		return "", fmt.Errorf("link %q has no host", raw)
	}

	ref.Host = strings.ToLower(ref.Host)
	ref.Fragment = ""
	ref.RawFragment = ""

	return ref.String(), nil
}

func (n *Normalizer) parseDate(raw string) Date {
	value := collapseWhitespace(raw)
	value = dateLabelRe.ReplaceAllString(value, "")
	if value == "" {
		return UnknownDate
	}

	for _, layout := range n.layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return n.plausible(t)
		}
	}

	if n.fuzzyDates {
		if t, err := dateparse.ParseAny(value); err == nil {
			return n.plausible(t)
		}
	}

	return UnknownDate
}

func (n *Normalizer) plausible(t time.Time) Date {
	if t.Year() < minPlausibleYear || t.After(n.now().AddDate(1, 0, 0)) {
		return UnknownDate
	}
	return NewDate(t)
}
