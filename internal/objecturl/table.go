package objecturl

import "sync"

// Loader reads the blob for a key. ok is false when there is nothing to
// register.
type Loader func() (data []byte, mimeType string, ok bool, err error)

// Table owns at most one live registry URL per key. Every release revokes
// the URL it drops.
type Table struct {
	registry *Registry

	mu   sync.Mutex
	urls map[string]string
	// gens counts releases per key and epoch counts ReleaseAll calls; a
	// load that raced either is retried.
	gens  map[string]uint64
	epoch uint64
}

// NewTable creates an empty table releasing into registry.
func NewTable(registry *Registry) *Table {
	return &Table{
		registry: registry,
		urls:     make(map[string]string),
		gens:     make(map[string]uint64),
	}
}

// Get returns the live URL for key, if any.
func (t *Table) Get(key string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	url, ok := t.urls[key]
	return url, ok
}

// GetOrCreate returns the live URL for key, or registers the blob returned
// by load and records its URL. load runs without the table lock held.
// Concurrent callers for one key all get the same live URL, and a blob
// loaded before a Release of its key is never registered.
func (t *Table) GetOrCreate(key string, load Loader) (string, bool, error) {
	for {
		t.mu.Lock()
		if url, ok := t.urls[key]; ok {
			t.mu.Unlock()
			return url, true, nil
		}
		gen, epoch := t.gens[key], t.epoch
		t.mu.Unlock()

		data, mimeType, ok, err := load()
		if err != nil || !ok {
			return "", false, err
		}

		t.mu.Lock()
		if url, ok := t.urls[key]; ok {
			t.mu.Unlock()
			return url, true, nil
		}
		if t.gens[key] != gen || t.epoch != epoch {
			t.mu.Unlock()
			continue
		}
		url := t.registry.Create(data, mimeType)
		t.urls[key] = url
		t.mu.Unlock()
		return url, true, nil
	}
}

// Release revokes and forgets the URL for key. Loads for key still in
// flight are discarded.
func (t *Table) Release(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.releaseLocked(key)
}

// ReleaseAll revokes every URL the table owns.
func (t *Table) ReleaseAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.epoch++
	for key, url := range t.urls {
		t.registry.Revoke(url)
		delete(t.urls, key)
	}
}

func (t *Table) releaseLocked(key string) {
	t.gens[key]++
	if url, ok := t.urls[key]; ok {
		t.registry.Revoke(url)
		delete(t.urls, key)
	}
}

// Len reports the number of keys holding a URL.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.urls)
}
