package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
	"golang.org/x/net/html/charset"
)

const maxBodyBytes = 10 << 20

type Page struct {
	URL  *url.URL
	Body []byte
}

// Fetcher performs paced, identified GET requests and caches robots.txt per host.
type Fetcher struct {
	client    *http.Client
	userAgent string

	robotsMu sync.Mutex
	robots   map[string]*robotstxt.Group
}

func NewFetcher(client *http.Client, userAgent string) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	return &Fetcher{
		client:    client,
		userAgent: userAgent,
		robots:    make(map[string]*robotstxt.Group),
	}
}

func (f *Fetcher) UserAgent() string {
	return f.userAgent
}

// Get returns the raw response body.
func (f *Fetcher) Get(ctx context.Context, pacer Pacer, rawURL string, respectRobots bool) (*Page, error) {
	return f.get(ctx, pacer, rawURL, respectRobots, false)
}

// GetHTML returns the response body decoded to UTF-8.
func (f *Fetcher) GetHTML(ctx context.Context, pacer Pacer, rawURL string, respectRobots bool) (*Page, error) {
	return f.get(ctx, pacer, rawURL, respectRobots, true)
}

func (f *Fetcher) get(ctx context.Context, pacer Pacer, rawURL string, respectRobots, decode bool) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() {
		return nil, fmt.Errorf("%w: invalid URL %q", ErrUnavailable, rawURL)
	}

	if respectRobots && !f.allowed(ctx, pacer, u) {
		return nil, fmt.Errorf("%w: disallowed by robots.txt: %s", ErrBlocked, u.Path)
	}

	if err := wait(ctx, pacer); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrUnavailable, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: HTTP %d", ErrBlocked, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: HTTP %d", ErrUnavailable, resp.StatusCode)
	}

	var body io.Reader = io.LimitReader(resp.Body, maxBodyBytes)
	if decode {
		body, err = charset.NewReader(body, resp.Header.Get("Content-Type"))
		if err != nil {
			return nil, fmt.Errorf("%w: failed to decode body: %v", ErrUnavailable, err)
		}
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %v", ErrUnavailable, err)
	}

	return &Page{URL: resp.Request.URL, Body: data}, nil
}

// allowed fails open when robots.txt cannot be fetched.
func (f *Fetcher) allowed(ctx context.Context, pacer Pacer, u *url.URL) bool {
	group, err := f.robotsGroup(ctx, pacer, u)
	if err != nil {
		slog.Debug("robots.txt unavailable, assuming allowed", "host", u.Host, "error", err)
		return true
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return group.Test(path)
}

func (f *Fetcher) robotsGroup(ctx context.Context, pacer Pacer, u *url.URL) (*robotstxt.Group, error) {
	key := u.Scheme + "://" + u.Host

	f.robotsMu.Lock()
	group, ok := f.robots[key]
	f.robotsMu.Unlock()
	if ok {
		return group, nil
	}

	if err := wait(ctx, pacer); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, key+"/robots.txt", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, err
	}
	group = data.FindGroup(f.userAgent)

	f.robotsMu.Lock()
	f.robots[key] = group
	f.robotsMu.Unlock()

	return group, nil
}
