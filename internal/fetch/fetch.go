// Package fetch retrieves remote binary payloads such as card audio.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrUnsupportedScheme is returned for URLs no fetcher is registered for.
var ErrUnsupportedScheme = errors.New("unsupported url scheme")

// Payload is a fetched body with its declared content type.
type Payload struct {
	Data        []byte
	ContentType string
}

// Fetcher retrieves a URL as a binary payload. It fails on network errors
// and on non-success responses.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Payload, error)
}

// StatusError reports a non-success response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
}

// Mux dispatches to a fetcher by URL scheme.
type Mux struct {
	fetchers map[string]Fetcher
}

// NewMux creates an empty Mux.
func NewMux() *Mux {
	return &Mux{fetchers: make(map[string]Fetcher)}
}

// Handle registers f for scheme.
func (m *Mux) Handle(scheme string, f Fetcher) *Mux {
	m.fetchers[strings.ToLower(scheme)] = f
	return m
}

func (m *Mux) Fetch(ctx context.Context, rawURL string) (*Payload, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", rawURL, err)
	}
	f, ok := m.fetchers[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	return f.Fetch(ctx, rawURL)
}
