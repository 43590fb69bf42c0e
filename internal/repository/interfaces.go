package repository

import (
	"context"

	"github.com/vytor/hanziflash/internal/models"
)

// CardStore is the offline "cards" space, keyed by card ID.
type CardStore interface {
	// Get returns nil, nil when the card is not cached.
	Get(ctx context.Context, id string) (*models.CachedCard, error)
	Put(ctx context.Context, card models.CachedCard) error
	Delete(ctx context.Context, id string) error
	GetAll(ctx context.Context) ([]models.CachedCard, error)
	Clear(ctx context.Context) error
	// UpdateCollections rewrites only the embedded membership. It reports
	// false without error when the card is not cached.
	UpdateCollections(ctx context.Context, id string, collectionIDs []string) (bool, error)
}

// AudioStore is the offline "audio" space, keyed by card ID.
type AudioStore interface {
	// Get returns nil, nil when no audio is stored for the card.
	Get(ctx context.Context, cardID string) (*models.CachedAudio, error)
	Put(ctx context.Context, audio models.CachedAudio) error
	Delete(ctx context.Context, cardID string) error
	// Keys lists the card IDs that have audio stored.
	Keys(ctx context.Context) ([]string, error)
	Clear(ctx context.Context) error
}

// CollectionStore is the offline "collections" space, keyed by collection ID.
type CollectionStore interface {
	Get(ctx context.Context, id string) (*models.Collection, error)
	Put(ctx context.Context, collections ...models.Collection) error
	Delete(ctx context.Context, id string) error
	GetAll(ctx context.Context) ([]models.Collection, error)
	Clear(ctx context.Context) error
}

// Storage bundles the offline record spaces. Available reports whether the
// process has durable storage at all; it is resolved once at startup.
type Storage interface {
	Available() bool
	Cards() CardStore
	Audio() AudioStore
	Collections() CollectionStore
}
