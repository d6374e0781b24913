// Package feedsync orchestrates iCal feed synchronization: fetching remote
// calendars, diffing decoded events against stored bookings, and resolving
// date-range conflicts.
package feedsync

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	ErrFetchFailed = errors.New("feed fetch failed")
)

const (
	fetchTimeout  = 30 * time.Second
	minTLSVersion = tls.VersionTLS12

	// Channel feeds are calendar text; anything bigger is not a feed.
	maxFeedBytes = 10 << 20
)

// Fetcher retrieves raw iCal text from a feed URL. Network I/O and retry
// behavior live behind this boundary; the engine only consumes text.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// HTTPFetcher fetches feeds over plain HTTP GET.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates a fetcher with sane transport defaults.
func NewHTTPFetcher() *HTTPFetcher {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: minTLSVersion,
		},
		MaxIdleConns:        10,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   fetchTimeout,
			Transport: transport,
		},
	}
}

// Fetch downloads the feed body. Any non-200 response is a fetch failure.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: invalid request: %w", ErrFetchFailed, err)
	}
	req.Header.Set("Accept", "text/calendar, text/plain, */*")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: feed returned status %d", ErrFetchFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return "", fmt.Errorf("%w: failed to read body: %w", ErrFetchFailed, err)
	}

	return string(body), nil
}
