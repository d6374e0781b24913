// Package validator checks feed URLs before they are stored or fetched.
package validator

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrInvalidURL       = errors.New("invalid URL format")
	ErrHTTPSRequired    = errors.New("HTTPS is required")
	ErrPrivateIP        = errors.New("private IP addresses are not allowed")
	ErrTooManyRedirects = errors.New("too many redirects")
	ErrConnectionFailed = errors.New("connection failed")
	ErrNotCalendarFeed  = errors.New("URL does not serve a calendar feed")
)

const (
	maxRedirects   = 3
	defaultTimeout = 10 * time.Second
	minTLSVersion  = tls.VersionTLS12
	probeBytes     = 512
)

// Validator provides URL and feed endpoint validation functionality.
type Validator struct {
	client          *http.Client
	allowPrivateIPs bool
}

// Option configures a Validator.
type Option func(*Validator)

// WithAllowPrivateIPs allows connections to private IP addresses.
// This is useful for Docker internal networking.
func WithAllowPrivateIPs() Option {
	return func(v *Validator) {
		v.allowPrivateIPs = true
	}
}

// New creates a new Validator with the given options.
func New(opts ...Option) *Validator {
	v := &Validator{
		allowPrivateIPs: false,
	}

	for _, opt := range opts {
		opt(v)
	}

	v.client = v.createHTTPClient()
	return v
}

func (v *Validator) createHTTPClient() *http.Client {
	redirectCount := 0

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: minTLSVersion,
		},
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return v.dialWithIPCheck(ctx, network, addr)
		},
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   defaultTimeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			redirectCount++
			if redirectCount > maxRedirects {
				return ErrTooManyRedirects
			}
			return nil
		},
	}
}

func (v *Validator) dialWithIPCheck(ctx context.Context, network, addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}

	// Resolve the hostname to check IP addresses
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, fmt.Errorf("DNS resolution failed: %w", err)
	}

	for _, ip := range ips {
		if !v.allowPrivateIPs && isPrivateIP(ip) {
			return nil, ErrPrivateIP
		}
	}

	dialer := &net.Dialer{
		Timeout:   defaultTimeout,
		KeepAlive: 30 * time.Second,
	}
	return dialer.DialContext(ctx, network, addr)
}

// isPrivateIP checks if an IP address is private or reserved.
func isPrivateIP(ip net.IP) bool {
	if ip == nil {
		return false
	}

	if ip.IsLoopback() {
		return true
	}
	if ip.IsPrivate() {
		return true
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	if ip.IsUnspecified() {
		return true
	}

	return false
}

// ValidateURL validates a URL string.
// If requireHTTPS is true, only HTTPS URLs are accepted.
func (v *Validator) ValidateURL(rawURL string, requireHTTPS bool) error {
	if rawURL == "" {
		return ErrInvalidURL
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: parse error: %w", ErrInvalidURL, err)
	}

	if parsed.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	if requireHTTPS && parsed.Scheme != "https" {
		return ErrHTTPSRequired
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}

	return nil
}

// ValidateFeedURL probes an iCal feed URL: it must be reachable and the
// start of the body must look like a VCALENDAR document. Channel managers
// sometimes publish HTML error pages at a feed URL, which would otherwise
// only surface as a failed sync later.
func (v *Validator) ValidateFeedURL(ctx context.Context, feedURL string) error {
	if err := v.ValidateURL(feedURL, false); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %w", ErrConnectionFailed, err)
	}
	req.Header.Set("Accept", "text/calendar, text/plain, */*")

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: feed returned status %d", ErrNotCalendarFeed, resp.StatusCode)
	}

	head := make([]byte, probeBytes)
	n, _ := resp.Body.Read(head)
	if !strings.Contains(string(head[:n]), "BEGIN:VCALENDAR") {
		return fmt.Errorf("%w: body does not start a VCALENDAR", ErrNotCalendarFeed)
	}

	return nil
}

// TestConnection tests if a URL is reachable.
func (v *Validator) TestConnection(ctx context.Context, rawURL string) error {
	if err := v.ValidateURL(rawURL, false); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %w", ErrConnectionFailed, err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	return nil
}
