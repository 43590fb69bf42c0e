package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/vytor/hanziflash/internal/logger"
)

const (
	DefaultTimeout  = 15 * time.Second
	DefaultMaxBytes = 10 << 20
)

// HTTPFetcher fetches http and https URLs.
type HTTPFetcher struct {
	httpClient *http.Client
	maxBytes   int64
}

// HTTPOption configures an HTTPFetcher.
type HTTPOption func(*HTTPFetcher)

// WithTimeout bounds a whole request.
func WithTimeout(d time.Duration) HTTPOption {
	return func(f *HTTPFetcher) {
		f.httpClient.Timeout = d
	}
}

// WithMaxBytes caps the accepted body size.
func WithMaxBytes(n int64) HTTPOption {
	return func(f *HTTPFetcher) {
		f.maxBytes = n
	}
}

// WithHTTPClient replaces the underlying client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(f *HTTPFetcher) {
		f.httpClient = c
	}
}

func NewHTTPFetcher(opts ...HTTPOption) *HTTPFetcher {
	f := &HTTPFetcher{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		maxBytes:   DefaultMaxBytes,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Payload, error) {
	log := logger.FromContext(ctx).WithPrefix("fetch").WithField("url", rawURL)
	log.Debug("fetching payload")
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		log.Error("failed to create request: %v", err)
		return nil, err
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		log.Warn("request failed: %v", err)
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	log.Debug("response received in %v, status=%d", time.Since(start), resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		log.Warn("request failed: status=%d", resp.StatusCode)
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		log.Warn("failed to read body: %v", err)
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("fetch %s: body exceeds %s", rawURL, humanize.Bytes(uint64(f.maxBytes)))
	}

	log.Debug("fetched %s", humanize.Bytes(uint64(len(data))))
	return &Payload{Data: data, ContentType: resp.Header.Get("Content-Type")}, nil
}
