package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vytor/hanziflash/internal/config"
	"github.com/vytor/hanziflash/internal/db"
	"github.com/vytor/hanziflash/internal/services"
	"github.com/vytor/hanziflash/internal/testutil"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.OfflineDBPath = filepath.Join(t.TempDir(), "offline.db")
	return cfg
}

func TestNew_OfflineOnly(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t))
	require.NoError(t, err)
	a.Start(ctx)
	defer testutil.MustClose(t, a)

	assert.True(t, a.Manager.Available())
	assert.Nil(t, a.Remote)
	assert.NoError(t, a.CheckOffline(ctx))
	assert.NoError(t, a.CheckRemote(ctx))

	_, err = a.Manager.CacheCard(ctx, testutil.Card("c1", "你好", ""), []string{"col-a"})
	require.NoError(t, err)

	cards, source, err := a.Study.LoadCards(ctx)
	require.NoError(t, err)
	assert.Equal(t, services.SourceOffline, source)
	require.Len(t, cards, 1)
	assert.Equal(t, "c1", cards[0].ID)
}

func TestNew_OfflineDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := config.Defaults()
	cfg.OfflineDBPath = ""

	a, err := New(ctx, cfg)
	require.NoError(t, err)
	defer testutil.MustClose(t, a)

	assert.False(t, a.Manager.Available())
	assert.Nil(t, a.Provider)
	assert.NoError(t, a.CheckOffline(ctx))

	_, _, err = a.Study.LoadCards(ctx)
	assert.Error(t, err)
}

func TestNew_BlobPrefix(t *testing.T) {
	cfg := testConfig(t)
	cfg.BlobPrefix = "/media/"

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer testutil.MustClose(t, a)

	assert.Equal(t, "/media/", a.Registry.Prefix())
	assert.Same(t, a.Registry, a.Manager.Registry())
}

func TestNew_HoldsOfflineDatabaseReference(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t))
	require.NoError(t, err)

	// Another owner coming and going leaves the app's handle open.
	conn, err := a.Provider.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, a.Provider.Release())
	assert.NoError(t, conn.PingContext(ctx))

	require.NoError(t, a.Close())
	assert.Error(t, conn.PingContext(ctx), "closed with the app's reference")
	assert.ErrorIs(t, a.Provider.Release(), db.ErrNotAcquired)
}
