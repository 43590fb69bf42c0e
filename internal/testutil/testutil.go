package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vytor/hanziflash/internal/db"
	"github.com/vytor/hanziflash/internal/models"
	"github.com/vytor/hanziflash/internal/repository"
	"github.com/vytor/hanziflash/internal/repository/sqlite"
)

// NewTestProvider creates a database provider over a fresh SQLite file in a
// temporary directory. The database is closed when the test ends.
func NewTestProvider(t *testing.T) *db.Provider {
	t.Helper()
	p := db.NewProvider(filepath.Join(t.TempDir(), "offline.db"))
	t.Cleanup(func() { _ = p.Close() })
	return p
}

// NewTestStorage creates SQLite-backed offline storage on a fresh database.
func NewTestStorage(t *testing.T, opts sqlite.Options) repository.Storage {
	t.Helper()
	s, err := sqlite.NewStorage(NewTestProvider(t), opts)
	require.NoError(t, err)
	return s
}

// MustClose closes a resource and fails the test on error.
func MustClose(t *testing.T, closer interface{ Close() error }) {
	require.NoError(t, closer.Close())
}

// Card builds a card with deterministic fields for tests.
func Card(id, hanzi, audioURL string) models.Card {
	return models.Card{
		ID:        id,
		Polish:    "cześć",
		Hanzi:     hanzi,
		Pinyin:    "nǐ hǎo",
		AudioURL:  models.StringPtr(audioURL),
		Mastered:  false,
		CreatedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}
