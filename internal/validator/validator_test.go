package validator

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestValidateURL(t *testing.T) {
	v := New()

	tests := []struct {
		name         string
		url          string
		requireHTTPS bool
		wantErr      error
	}{
		{"valid https", "https://airbnb.example.com/cal.ics", false, nil},
		{"valid http when allowed", "http://channel.example.com/cal.ics", false, nil},
		{"http rejected when https required", "http://channel.example.com/cal.ics", true, ErrHTTPSRequired},
		{"empty url", "", false, ErrInvalidURL},
		{"missing host", "https://", false, ErrInvalidURL},
		{"bad scheme", "ftp://host/cal.ics", false, ErrInvalidURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateURL(tt.url, tt.requireHTTPS)
			if tt.wantErr == nil && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"127.0.0.1", true},
		{"10.1.2.3", true},
		{"192.168.1.1", true},
		{"169.254.0.1", true},
		{"0.0.0.0", true},
		{"8.8.8.8", false},
		{"::1", true},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			if got := isPrivateIP(net.ParseIP(tt.ip)); got != tt.want {
				t.Errorf("isPrivateIP(%s) = %v, want %v", tt.ip, got, tt.want)
			}
		})
	}
}

func TestValidateFeedURL(t *testing.T) {
	ctx := context.Background()

	t.Run("accepts a calendar body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/calendar")
			w.Write([]byte("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nEND:VCALENDAR\r\n"))
		}))
		defer server.Close()

		v := New(WithAllowPrivateIPs())
		if err := v.ValidateFeedURL(ctx, server.URL); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("rejects an html error page", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("<html><body>Listing not found</body></html>"))
		}))
		defer server.Close()

		v := New(WithAllowPrivateIPs())
		if err := v.ValidateFeedURL(ctx, server.URL); !errors.Is(err, ErrNotCalendarFeed) {
			t.Errorf("expected ErrNotCalendarFeed, got %v", err)
		}
	})

	t.Run("rejects non-200 responses", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer server.Close()

		v := New(WithAllowPrivateIPs())
		if err := v.ValidateFeedURL(ctx, server.URL); !errors.Is(err, ErrNotCalendarFeed) {
			t.Errorf("expected ErrNotCalendarFeed, got %v", err)
		}
	})

	t.Run("blocks private addresses by default", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("BEGIN:VCALENDAR\r\n"))
		}))
		defer server.Close()

		v := New()
		if err := v.ValidateFeedURL(ctx, server.URL); err == nil {
			t.Error("expected loopback feed URL to be rejected")
		}
	})
}
