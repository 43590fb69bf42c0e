package repository

import (
	"context"

	"github.com/vytor/hanziflash/internal/errors"
	"github.com/vytor/hanziflash/internal/models"
)

// Unavailable returns a Storage for processes without durable storage.
// Every primitive fails fast with errors.ErrStorageUnavailable.
func Unavailable() Storage {
	return unavailableStorage{}
}

type unavailableStorage struct{}

func (unavailableStorage) Available() bool { return false }
func (unavailableStorage) Cards() CardStore { return unavailableCards{} }
func (unavailableStorage) Audio() AudioStore { return unavailableAudio{} }
func (unavailableStorage) Collections() CollectionStore { return unavailableCollections{} }

type unavailableCards struct{}

func (unavailableCards) Get(context.Context, string) (*models.CachedCard, error) {
	return nil, errors.ErrStorageUnavailable
}
func (unavailableCards) Put(context.Context, models.CachedCard) error {
	return errors.ErrStorageUnavailable
}
func (unavailableCards) Delete(context.Context, string) error { return errors.ErrStorageUnavailable }
func (unavailableCards) GetAll(context.Context) ([]models.CachedCard, error) {
	return nil, errors.ErrStorageUnavailable
}
func (unavailableCards) Clear(context.Context) error { return errors.ErrStorageUnavailable }
func (unavailableCards) UpdateCollections(context.Context, string, []string) (bool, error) {
	return false, errors.ErrStorageUnavailable
}

type unavailableAudio struct{}

func (unavailableAudio) Get(context.Context, string) (*models.CachedAudio, error) {
	return nil, errors.ErrStorageUnavailable
}
func (unavailableAudio) Put(context.Context, models.CachedAudio) error {
	return errors.ErrStorageUnavailable
}
func (unavailableAudio) Delete(context.Context, string) error { return errors.ErrStorageUnavailable }
func (unavailableAudio) Keys(context.Context) ([]string, error) {
	return nil, errors.ErrStorageUnavailable
}
func (unavailableAudio) Clear(context.Context) error { return errors.ErrStorageUnavailable }

type unavailableCollections struct{}

func (unavailableCollections) Get(context.Context, string) (*models.Collection, error) {
	return nil, errors.ErrStorageUnavailable
}
func (unavailableCollections) Put(context.Context, ...models.Collection) error {
	return errors.ErrStorageUnavailable
}
func (unavailableCollections) Delete(context.Context, string) error {
	return errors.ErrStorageUnavailable
}
func (unavailableCollections) GetAll(context.Context) ([]models.Collection, error) {
	return nil, errors.ErrStorageUnavailable
}
func (unavailableCollections) Clear(context.Context) error { return errors.ErrStorageUnavailable }
