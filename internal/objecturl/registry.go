// Package objecturl hands out opaque, process-scoped URLs for in-memory
// binary payloads so media players can read locally stored audio.
package objecturl

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// DefaultPrefix is where the HTTP surface serves registry URLs.
const DefaultPrefix = "/blobs/"

// Blob is the payload behind a URL.
type Blob struct {
	Data     []byte
	MimeType string
}

// Registry maps URLs to blobs until they are revoked.
type Registry struct {
	prefix string

	mu    sync.RWMutex
	blobs map[string]Blob
}

// NewRegistry creates a registry whose URLs start with prefix.
func NewRegistry(prefix string) *Registry {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Registry{prefix: prefix, blobs: make(map[string]Blob)}
}

// Prefix returns the common prefix of every URL this registry creates.
func (r *Registry) Prefix() string { return r.prefix }

// Create registers a blob and returns a fresh URL for it.
func (r *Registry) Create(data []byte, mimeType string) string {
	url := r.prefix + uuid.NewString()
	r.mu.Lock()
	r.blobs[url] = Blob{Data: data, MimeType: mimeType}
	r.mu.Unlock()
	return url
}

// Resolve returns the blob behind url.
func (r *Registry) Resolve(url string) (Blob, bool) {
	if !strings.HasPrefix(url, r.prefix) {
		return Blob{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.blobs[url]
	return b, ok
}

// Revoke frees the blob behind url. Unknown URLs are ignored.
func (r *Registry) Revoke(url string) {
	r.mu.Lock()
	delete(r.blobs, url)
	r.mu.Unlock()
}

// Len reports the number of live URLs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blobs)
}
