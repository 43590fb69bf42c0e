// Package offline mirrors cards, collections and card audio into local
// durable storage so the study screen keeps working without a connection.
//
// Every operation degrades to an empty result when the process runs
// without durable storage, so callers never need to branch on it.
package offline

import (
	"context"
	"fmt"
	"time"

	"github.com/vytor/hanziflash/internal/events"
	"github.com/vytor/hanziflash/internal/fetch"
	"github.com/vytor/hanziflash/internal/logger"
	"github.com/vytor/hanziflash/internal/models"
	"github.com/vytor/hanziflash/internal/objecturl"
	"github.com/vytor/hanziflash/internal/repository"
)

// Manager orchestrates the offline cache.
//
// Concurrent calls for different cards are safe. Overlapping calls for the
// same card are not serialized; the last write wins.
type Manager struct {
	storage   repository.Storage
	fetcher   fetch.Fetcher
	bus       *events.Bus[models.StatusEvent]
	registry  *objecturl.Registry
	urls      *objecturl.Table
	now       func() time.Time
	log       *logger.Logger
	available bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithBus shares an existing status bus.
func WithBus(bus *events.Bus[models.StatusEvent]) Option {
	return func(m *Manager) { m.bus = bus }
}

// WithRegistry sets where playable URLs are registered.
func WithRegistry(r *objecturl.Registry) Option {
	return func(m *Manager) { m.registry = r }
}

// WithClock overrides the time source used for capture timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the base logger.
func WithLogger(l *logger.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// NewManager creates a Manager over storage. Availability is read from
// storage once, here.
func NewManager(storage repository.Storage, fetcher fetch.Fetcher, opts ...Option) *Manager {
	m := &Manager{
		storage: storage,
		fetcher: fetcher,
		now:     time.Now,
		log:     logger.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.WithPrefix("offline")
	if m.storage == nil {
		m.storage = repository.Unavailable()
	}
	if m.fetcher == nil {
		m.fetcher = fetch.NewHTTPFetcher()
	}
	if m.bus == nil {
		m.bus = events.NewBus[models.StatusEvent](m.log)
	}
	if m.registry == nil {
		m.registry = objecturl.NewRegistry(objecturl.DefaultPrefix)
	}
	m.urls = objecturl.NewTable(m.registry)
	m.available = m.storage.Available()
	if !m.available {
		m.log.Info("durable storage unavailable, offline cache disabled")
	}
	return m
}

// Available reports whether the manager has durable storage.
func (m *Manager) Available() bool { return m.available }

// Subscribe registers a status listener and returns its unsubscribe func.
func (m *Manager) Subscribe(listener func(models.StatusEvent)) func() {
	return m.bus.Subscribe(listener)
}

func (m *Manager) logFor(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != logger.Default() {
		return l.WithPrefix("offline")
	}
	return m.log
}

// CacheCard stores a snapshot of card with its membership, and its audio
// when the audio URL can be fetched. Audio failures never block the card
// record; they are reported through AudioStored.
//
// Audio is settled before the card record is written, and the card record
// before any stale playable URL is released and the event is emitted.
func (m *Manager) CacheCard(ctx context.Context, card models.Card, collectionIDs []string) (models.StatusEvent, error) {
	if !m.available {
		return models.StatusEvent{}, nil
	}
	log := m.logFor(ctx).WithField("card_id", card.ID)

	audioStored, err := m.storeAudio(ctx, log, card)
	if err != nil {
		return models.StatusEvent{}, err
	}

	if collectionIDs == nil {
		collectionIDs = []string{}
	}
	err = m.storage.Cards().Put(ctx, models.CachedCard{
		Card:          card,
		CollectionIDs: collectionIDs,
		CachedAt:      m.now().UTC(),
	})
	if err != nil {
		log.Error("failed to write card record: %v", err)
		return models.StatusEvent{}, fmt.Errorf("cache card %s: %w", card.ID, err)
	}

	m.urls.Release(card.ID)

	ev := models.StatusEvent{CardID: card.ID, Cached: true, AudioStored: audioStored}
	m.bus.Emit(ev)
	log.Info("card cached: audio_stored=%t", audioStored)
	return ev, nil
}

func (m *Manager) storeAudio(ctx context.Context, log *logger.Logger, card models.Card) (bool, error) {
	if !card.HasAudio() {
		if err := m.storage.Audio().Delete(ctx, card.ID); err != nil {
			return false, fmt.Errorf("drop audio of %s: %w", card.ID, err)
		}
		return false, nil
	}

	payload, err := m.fetcher.Fetch(ctx, *card.AudioURL)
	if err != nil {
		log.Warn("audio fetch failed, caching card without audio: %v", err)
		if err := m.storage.Audio().Delete(ctx, card.ID); err != nil {
			return false, fmt.Errorf("drop stale audio of %s: %w", card.ID, err)
		}
		return false, nil
	}

	err = m.storage.Audio().Put(ctx, models.CachedAudio{
		CardID:     card.ID,
		Data:       payload.Data,
		MimeType:   payload.ContentType,
		CapturedAt: m.now().UTC(),
	})
	if err != nil {
		log.Error("failed to write audio record: %v", err)
		return false, fmt.Errorf("store audio of %s: %w", card.ID, err)
	}
	return true, nil
}

// RemoveCardFromOffline deletes the card and its audio. Removing a card that
// is not cached still emits the event.
func (m *Manager) RemoveCardFromOffline(ctx context.Context, cardID string) (models.StatusEvent, error) {
	if !m.available {
		return models.StatusEvent{}, nil
	}
	if err := m.storage.Cards().Delete(ctx, cardID); err != nil {
		return models.StatusEvent{}, fmt.Errorf("evict card %s: %w", cardID, err)
	}
	if err := m.storage.Audio().Delete(ctx, cardID); err != nil {
		return models.StatusEvent{}, fmt.Errorf("evict audio %s: %w", cardID, err)
	}
	m.urls.Release(cardID)

	ev := models.StatusEvent{CardID: cardID}
	m.bus.Emit(ev)
	m.logFor(ctx).WithField("card_id", cardID).Info("card evicted")
	return ev, nil
}

// GetOfflineCard returns the cached snapshot of a card.
func (m *Manager) GetOfflineCard(ctx context.Context, cardID string) (*models.Card, bool, error) {
	if !m.available {
		return nil, false, nil
	}
	cached, err := m.storage.Cards().Get(ctx, cardID)
	if err != nil {
		return nil, false, err
	}
	if cached == nil {
		return nil, false, nil
	}
	return &cached.Card, true, nil
}

// GetAllOfflineCards returns every cached card. Callers choose the order.
func (m *Manager) GetAllOfflineCards(ctx context.Context) ([]models.Card, error) {
	if !m.available {
		return []models.Card{}, nil
	}
	all, err := m.storage.Cards().GetAll(ctx)
	if err != nil {
		return nil, err
	}
	cards := make([]models.Card, 0, len(all))
	for _, c := range all {
		cards = append(cards, c.Card)
	}
	return cards, nil
}

// GetOfflineCardCollections maps every cached card to its stored membership.
func (m *Manager) GetOfflineCardCollections(ctx context.Context) (map[string][]string, error) {
	out := map[string][]string{}
	if !m.available {
		return out, nil
	}
	all, err := m.storage.Cards().GetAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range all {
		out[c.Card.ID] = c.CollectionIDs
	}
	return out, nil
}

// UpdateCachedCardCollections replaces the membership of a cached card.
// Cards that are not cached are left alone.
func (m *Manager) UpdateCachedCardCollections(ctx context.Context, cardID string, collectionIDs []string) error {
	if !m.available {
		return nil
	}
	updated, err := m.storage.Cards().UpdateCollections(ctx, cardID, collectionIDs)
	if err != nil {
		return fmt.Errorf("update membership of %s: %w", cardID, err)
	}
	if !updated {
		m.logFor(ctx).Debug("membership update skipped, card not cached: card_id=%s", cardID)
	}
	return nil
}

// UpsertCollectionsOffline replaces the given collections by key.
func (m *Manager) UpsertCollectionsOffline(ctx context.Context, collections []models.Collection) error {
	if !m.available {
		return nil
	}
	return m.storage.Collections().Put(ctx, collections...)
}

// GetOfflineCollections returns the mirrored collections.
func (m *Manager) GetOfflineCollections(ctx context.Context) ([]models.Collection, error) {
	if !m.available {
		return []models.Collection{}, nil
	}
	return m.storage.Collections().GetAll(ctx)
}

// RemoveCollectionOffline drops one collection from the mirror.
func (m *Manager) RemoveCollectionOffline(ctx context.Context, collectionID string) error {
	if !m.available {
		return nil
	}
	return m.storage.Collections().Delete(ctx, collectionID)
}

// GetPlayableAudioURL returns, in order: the live playable URL of the card,
// a new one built from stored audio, or fallback. An empty result means no
// audio is playable.
func (m *Manager) GetPlayableAudioURL(ctx context.Context, cardID, fallback string) string {
	if !m.available {
		return fallback
	}
	url, ok, err := m.urls.GetOrCreate(cardID, func() ([]byte, string, bool, error) {
		audio, err := m.storage.Audio().Get(ctx, cardID)
		if err != nil || audio == nil {
			return nil, "", false, err
		}
		return audio.Data, audio.MimeType, true, nil
	})
	if err != nil {
		m.logFor(ctx).Warn("failed to read stored audio: card_id=%s, err=%v", cardID, err)
		return fallback
	}
	if !ok {
		return fallback
	}
	return url
}

// Registry exposes where playable URLs resolve.
func (m *Manager) Registry() *objecturl.Registry { return m.registry }

// GetOfflineStatusSnapshot returns the offline status of every cached card.
func (m *Manager) GetOfflineStatusSnapshot(ctx context.Context) (map[string]models.OfflineStatus, error) {
	snapshot := map[string]models.OfflineStatus{}
	if !m.available {
		return snapshot, nil
	}
	all, err := m.storage.Cards().GetAll(ctx)
	if err != nil {
		return nil, err
	}
	keys, err := m.storage.Audio().Keys(ctx)
	if err != nil {
		return nil, err
	}
	withAudio := make(map[string]bool, len(keys))
	for _, k := range keys {
		withAudio[k] = true
	}
	for _, c := range all {
		snapshot[c.Card.ID] = models.OfflineStatus{AudioStored: withAudio[c.Card.ID]}
	}
	return snapshot, nil
}

// ClearOfflineCache empties the cards and audio spaces and releases every
// playable URL. A {cached:false} event is emitted per card that was cached.
func (m *Manager) ClearOfflineCache(ctx context.Context) error {
	if !m.available {
		return nil
	}
	log := m.logFor(ctx)

	all, err := m.storage.Cards().GetAll(ctx)
	if err != nil {
		return err
	}
	if err := m.storage.Cards().Clear(ctx); err != nil {
		return fmt.Errorf("clear cards: %w", err)
	}
	if err := m.storage.Audio().Clear(ctx); err != nil {
		return fmt.Errorf("clear audio: %w", err)
	}
	m.urls.ReleaseAll()

	for _, c := range all {
		m.bus.Emit(models.StatusEvent{CardID: c.Card.ID})
	}
	log.Info("offline cache cleared: %d cards dropped", len(all))
	return nil
}
