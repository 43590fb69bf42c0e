// Package remote talks to the remote relational store that owns cards,
// collections and their membership.
package remote

import (
	"context"

	"github.com/vytor/hanziflash/internal/errors"
	"github.com/vytor/hanziflash/internal/models"
)

// Gateway is the remote data capability consumed by the study screen.
type Gateway interface {
	ListCards(ctx context.Context) ([]models.Card, error)
	// GetCard returns nil, nil when the card does not exist.
	GetCard(ctx context.Context, id string) (*models.Card, error)
	SetMastered(ctx context.Context, id string, mastered bool) error

	ListCollections(ctx context.Context) ([]models.Collection, error)
	// UpsertCollection creates the collection, assigning an ID when empty,
	// or replaces it by ID.
	UpsertCollection(ctx context.Context, c models.Collection) (models.Collection, error)
	DeleteCollection(ctx context.Context, id string) error

	CardCollections(ctx context.Context, cardID string) ([]string, error)
	Memberships(ctx context.Context) (map[string][]string, error)
	SetCardCollections(ctx context.Context, cardID string, collectionIDs []string) error
}

type unavailable struct{}

// Unavailable returns a Gateway for processes without a remote store. Every
// call fails with errors.ErrRemoteUnavailable.
func Unavailable() Gateway { return unavailable{} }

func (unavailable) ListCards(context.Context) ([]models.Card, error) {
	return nil, errors.ErrRemoteUnavailable
}

func (unavailable) GetCard(context.Context, string) (*models.Card, error) {
	return nil, errors.ErrRemoteUnavailable
}

func (unavailable) SetMastered(context.Context, string, bool) error {
	return errors.ErrRemoteUnavailable
}

func (unavailable) ListCollections(context.Context) ([]models.Collection, error) {
	return nil, errors.ErrRemoteUnavailable
}

func (unavailable) UpsertCollection(context.Context, models.Collection) (models.Collection, error) {
	return models.Collection{}, errors.ErrRemoteUnavailable
}

func (unavailable) DeleteCollection(context.Context, string) error {
	return errors.ErrRemoteUnavailable
}

func (unavailable) CardCollections(context.Context, string) ([]string, error) {
	return nil, errors.ErrRemoteUnavailable
}

func (unavailable) Memberships(context.Context) (map[string][]string, error) {
	return nil, errors.ErrRemoteUnavailable
}

func (unavailable) SetCardCollections(context.Context, string, []string) error {
	return errors.ErrRemoteUnavailable
}
