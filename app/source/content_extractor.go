package source

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
)

const DefaultSnippetChars = 2000

// blockSpacer keeps words from adjacent block elements apart in Text().
var blockSpacer = strings.NewReplacer(
	"</p>", "</p> ",
	"</div>", "</div> ",
	"</li>", "</li> ",
	"</h1>", "</h1> ",
	"</h2>", "</h2> ",
	"</h3>", "</h3> ",
	"<br>", "<br> ",
	"<br/>", "<br/> ",
)

// ContentExtractor fetches a guideline page and returns its main text.
type ContentExtractor struct {
	fetcher  *Fetcher
	maxChars int
}

func NewContentExtractor(fetcher *Fetcher, maxChars int) *ContentExtractor {
	if maxChars <= 0 {
		maxChars = DefaultSnippetChars
	}
	return &ContentExtractor{fetcher: fetcher, maxChars: maxChars}
}

func (e *ContentExtractor) Run(ctx context.Context, pacer Pacer, link string, respectRobots bool) (string, error) {
	page, err := e.fetcher.GetHTML(ctx, pacer, link, respectRobots)
	if err != nil {
		return "", err
	}
	return e.Extract(page.Body, page.URL)
}

func (e *ContentExtractor) Extract(data []byte, pageURL *url.URL) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("HTML data is empty")
	}

	article, err := readability.FromReader(bytes.NewReader(data), pageURL)
	if err != nil {
		return "", fmt.Errorf("failed to extract content: %w", err)
	}

	text := ""
	if article.Content != "" {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(blockSpacer.Replace(article.Content)))
		if err == nil {
			text = strings.Join(strings.Fields(doc.Text()), " ")
		}
	}
	if text == "" {
		text = strings.Join(strings.Fields(article.Excerpt), " ")
	}
	if text == "" {
		return "", fmt.Errorf("no content extracted from HTML data")
	}

	slog.Debug("Content extracted successfully",
		"title", article.Title,
		"content_length", len(text))

	return truncateRunes(text, e.maxChars), nil
}

// truncateRunes cuts at the last word boundary before limit.
func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)[:limit]
	cut := string(runes)
	if i := strings.LastIndexByte(cut, ' '); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}
