package services

import (
	"context"
	"slices"
	"sort"
	"strings"

	"github.com/vytor/hanziflash/internal/errors"
	"github.com/vytor/hanziflash/internal/jobs"
	"github.com/vytor/hanziflash/internal/logger"
	"github.com/vytor/hanziflash/internal/models"
	"github.com/vytor/hanziflash/internal/offline"
	"github.com/vytor/hanziflash/internal/remote"
)

// Source tells where a listing came from.
type Source string

const (
	SourceOnline  Source = "online"
	SourceOffline Source = "offline"
)

// StudyService drives the main study screen: it reads from the remote store
// when it can, falls back to the offline cache when it cannot, and keeps the
// cache in step with local edits.
type StudyService interface {
	LoadCards(ctx context.Context) ([]models.CardView, Source, error)
	LoadCollections(ctx context.Context) ([]models.Collection, Source, error)
	SaveCollection(ctx context.Context, c models.Collection) (models.Collection, error)
	DeleteCollection(ctx context.Context, id string) error

	SetMastered(ctx context.Context, cardID string, mastered bool) error
	SetCardCollections(ctx context.Context, cardID string, collectionIDs []string) (bool, error)

	CacheCard(ctx context.Context, cardID string) (models.StatusEvent, error)
	EnqueueCollection(ctx context.Context, collectionID string) (int, error)
	EvictCard(ctx context.Context, cardID string) (models.StatusEvent, error)
	ClearOffline(ctx context.Context) error

	OfflineStatus(ctx context.Context) (map[string]models.OfflineStatus, error)
	OfflineCards(ctx context.Context) ([]models.CardView, error)
	OfflineCard(ctx context.Context, cardID string) (*models.CardView, error)
	PlayableAudioURL(ctx context.Context, cardID string) (string, error)
}

type studyService struct {
	remote  remote.Gateway
	offline *offline.Manager
	queue   jobs.JobQueue
}

// NewStudyService creates a StudyService. A nil queue disables
// EnqueueCollection.
func NewStudyService(gateway remote.Gateway, manager *offline.Manager, queue jobs.JobQueue) StudyService {
	return &studyService{remote: gateway, offline: manager, queue: queue}
}

func remoteError(err error) error {
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, errors.ErrRemoteUnavailable) {
		return errors.NewUnavailableError("remote store unavailable", err)
	}
	return errors.NewUnavailableError("remote store request failed", err)
}

func (s *studyService) requireOffline() error {
	if !s.offline.Available() {
		return errors.NewUnavailableError("offline storage is disabled", errors.ErrStorageUnavailable)
	}
	return nil
}

func (s *studyService) LoadCards(ctx context.Context) ([]models.CardView, Source, error) {
	log := logger.FromContext(ctx)

	cards, err := s.remote.ListCards(ctx)
	if err != nil {
		log.Warn("remote cards unavailable, falling back to offline cache: %v", err)
		return s.offlineFallback(ctx, err)
	}
	memberships, err := s.remote.Memberships(ctx)
	if err != nil {
		log.Warn("remote memberships unavailable, falling back to offline cache: %v", err)
		return s.offlineFallback(ctx, err)
	}

	status, err := s.offline.GetOfflineStatusSnapshot(ctx)
	if err != nil {
		log.Error("failed to read offline status: %v", err)
		return nil, "", errors.NewInternalError(err)
	}

	views := make([]models.CardView, 0, len(cards))
	for _, c := range cards {
		views = append(views, newView(c, memberships[c.ID], status))
	}
	log.Debug("loaded %d cards from remote store", len(views))
	return views, SourceOnline, nil
}

func (s *studyService) offlineFallback(ctx context.Context, cause error) ([]models.CardView, Source, error) {
	if !s.offline.Available() {
		return nil, "", remoteError(cause)
	}
	views, err := s.OfflineCards(ctx)
	if err != nil {
		return nil, "", err
	}
	return views, SourceOffline, nil
}

func newView(c models.Card, collectionIDs []string, status map[string]models.OfflineStatus) models.CardView {
	if collectionIDs == nil {
		collectionIDs = []string{}
	}
	v := models.CardView{Card: c, CollectionIDs: collectionIDs}
	if st, ok := status[c.ID]; ok {
		v.Offline = &st
	}
	return v
}

// OfflineCards returns the cached cards newest first.
func (s *studyService) OfflineCards(ctx context.Context) ([]models.CardView, error) {
	log := logger.FromContext(ctx)

	cards, err := s.offline.GetAllOfflineCards(ctx)
	if err != nil {
		log.Error("failed to read offline cards: %v", err)
		return nil, errors.NewInternalError(err)
	}
	memberships, err := s.offline.GetOfflineCardCollections(ctx)
	if err != nil {
		return nil, errors.NewInternalError(err)
	}
	status, err := s.offline.GetOfflineStatusSnapshot(ctx)
	if err != nil {
		return nil, errors.NewInternalError(err)
	}

	sort.SliceStable(cards, func(i, j int) bool {
		if !cards[i].CreatedAt.Equal(cards[j].CreatedAt) {
			return cards[i].CreatedAt.After(cards[j].CreatedAt)
		}
		return cards[i].ID < cards[j].ID
	})

	views := make([]models.CardView, 0, len(cards))
	for _, c := range cards {
		views = append(views, newView(c, memberships[c.ID], status))
	}
	log.Debug("loaded %d cards from offline cache", len(views))
	return views, nil
}

func (s *studyService) OfflineCard(ctx context.Context, cardID string) (*models.CardView, error) {
	card, found, err := s.offline.GetOfflineCard(ctx, cardID)
	if err != nil {
		return nil, errors.NewInternalError(err)
	}
	if !found {
		return nil, errors.NewNotFoundError("offline card", cardID)
	}
	memberships, err := s.offline.GetOfflineCardCollections(ctx)
	if err != nil {
		return nil, errors.NewInternalError(err)
	}
	status, err := s.offline.GetOfflineStatusSnapshot(ctx)
	if err != nil {
		return nil, errors.NewInternalError(err)
	}
	v := newView(*card, memberships[cardID], status)
	return &v, nil
}

func (s *studyService) LoadCollections(ctx context.Context) ([]models.Collection, Source, error) {
	log := logger.FromContext(ctx)

	collections, err := s.remote.ListCollections(ctx)
	if err != nil {
		log.Warn("remote collections unavailable, falling back to offline mirror: %v", err)
		if !s.offline.Available() {
			return nil, "", remoteError(err)
		}
		offlineCollections, err := s.offline.GetOfflineCollections(ctx)
		if err != nil {
			return nil, "", errors.NewInternalError(err)
		}
		return offlineCollections, SourceOffline, nil
	}

	if err := s.offline.UpsertCollectionsOffline(ctx, collections); err != nil {
		log.Warn("failed to mirror collections offline: %v", err)
	}
	return collections, SourceOnline, nil
}

func (s *studyService) SaveCollection(ctx context.Context, c models.Collection) (models.Collection, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return models.Collection{}, errors.NewValidationError("name", "must not be empty")
	}
	if c.Color != nil && !isHexColor(*c.Color) {
		return models.Collection{}, errors.NewValidationError("color", "must be a hex color like #a1b2c3")
	}

	saved, err := s.remote.UpsertCollection(ctx, c)
	if err != nil {
		return models.Collection{}, remoteError(err)
	}
	if err := s.offline.UpsertCollectionsOffline(ctx, []models.Collection{saved}); err != nil {
		logger.FromContext(ctx).Warn("failed to mirror collection offline: %v", err)
	}
	return saved, nil
}

func isHexColor(s string) bool {
	if len(s) != 4 && len(s) != 7 || s[0] != '#' {
		return false
	}
	for _, r := range s[1:] {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}

// DeleteCollection removes a collection remotely, then strips it from every
// cached card's membership and from the offline mirror.
func (s *studyService) DeleteCollection(ctx context.Context, id string) error {
	log := logger.FromContext(ctx).WithField("collection_id", id)

	if err := s.remote.DeleteCollection(ctx, id); err != nil {
		return remoteError(err)
	}

	memberships, err := s.offline.GetOfflineCardCollections(ctx)
	if err != nil {
		return errors.NewOfflineCacheError(err)
	}
	pruned := 0
	for cardID, ids := range memberships {
		if !slices.Contains(ids, id) {
			continue
		}
		kept := slices.DeleteFunc(slices.Clone(ids), func(c string) bool { return c == id })
		if err := s.offline.UpdateCachedCardCollections(ctx, cardID, kept); err != nil {
			return errors.NewOfflineCacheError(err)
		}
		pruned++
	}
	if err := s.offline.RemoveCollectionOffline(ctx, id); err != nil {
		return errors.NewOfflineCacheError(err)
	}
	log.Info("collection deleted, pruned from %d cached cards", pruned)

	if _, _, err := s.LoadCollections(ctx); err != nil {
		log.Warn("failed to refresh offline collections: %v", err)
	}
	return nil
}

// SetMastered only writes to the remote store; offline edits are not queued.
func (s *studyService) SetMastered(ctx context.Context, cardID string, mastered bool) error {
	if err := s.remote.SetMastered(ctx, cardID, mastered); err != nil {
		logger.FromContext(ctx).Warn("failed to set mastered: card_id=%s, err=%v", cardID, err)
		return remoteError(err)
	}
	return nil
}

// SetCardCollections records the membership locally first, then pushes it
// to the remote store once. It reports whether the push succeeded; a failed
// push is logged and not retried.
func (s *studyService) SetCardCollections(ctx context.Context, cardID string, collectionIDs []string) (bool, error) {
	log := logger.FromContext(ctx).WithField("card_id", cardID)
	if collectionIDs == nil {
		collectionIDs = []string{}
	}

	if err := s.offline.UpdateCachedCardCollections(ctx, cardID, collectionIDs); err != nil {
		log.Error("failed to update cached membership: %v", err)
		return false, errors.NewOfflineCacheError(err)
	}

	if err := s.remote.SetCardCollections(ctx, cardID, collectionIDs); err != nil {
		log.Warn("membership push failed, not retried: %v", err)
		return false, nil
	}
	return true, nil
}

// CacheCard reads the card and its membership from the remote store and
// stores them offline.
func (s *studyService) CacheCard(ctx context.Context, cardID string) (models.StatusEvent, error) {
	if err := s.requireOffline(); err != nil {
		return models.StatusEvent{}, err
	}

	card, err := s.remote.GetCard(ctx, cardID)
	if err != nil {
		return models.StatusEvent{}, remoteError(err)
	}
	if card == nil {
		return models.StatusEvent{}, errors.NewNotFoundError("card", cardID)
	}
	collectionIDs, err := s.remote.CardCollections(ctx, cardID)
	if err != nil {
		return models.StatusEvent{}, remoteError(err)
	}

	res, err := s.offline.CacheCard(ctx, *card, collectionIDs)
	if err != nil {
		return models.StatusEvent{}, errors.NewOfflineCacheError(err)
	}
	return res, nil
}

// EnqueueCollection queues every card of a collection for background
// caching and returns how many were queued.
func (s *studyService) EnqueueCollection(ctx context.Context, collectionID string) (int, error) {
	log := logger.FromContext(ctx).WithField("collection_id", collectionID)
	if err := s.requireOffline(); err != nil {
		return 0, err
	}
	if s.queue == nil {
		return 0, errors.NewUnavailableError("background caching is not configured", nil)
	}

	memberships, err := s.remote.Memberships(ctx)
	if err != nil {
		return 0, remoteError(err)
	}

	cardIDs := make([]string, 0)
	for cardID, ids := range memberships {
		if slices.Contains(ids, collectionID) {
			cardIDs = append(cardIDs, cardID)
		}
	}
	sort.Strings(cardIDs)

	queued := 0
	for _, id := range cardIDs {
		if err := s.queue.EnqueueCache(id); err != nil {
			log.Warn("stopped queueing after %d cards: %v", queued, err)
			return queued, errors.NewUnavailableError("cache queue is full", err)
		}
		queued++
	}
	log.Info("queued %d cards for offline caching", queued)
	return queued, nil
}

func (s *studyService) EvictCard(ctx context.Context, cardID string) (models.StatusEvent, error) {
	if err := s.requireOffline(); err != nil {
		return models.StatusEvent{}, err
	}
	res, err := s.offline.RemoveCardFromOffline(ctx, cardID)
	if err != nil {
		return models.StatusEvent{}, errors.NewOfflineCacheError(err)
	}
	return res, nil
}

func (s *studyService) ClearOffline(ctx context.Context) error {
	if err := s.requireOffline(); err != nil {
		return err
	}
	if err := s.offline.ClearOfflineCache(ctx); err != nil {
		return errors.NewOfflineCacheError(err)
	}
	return nil
}

func (s *studyService) OfflineStatus(ctx context.Context) (map[string]models.OfflineStatus, error) {
	status, err := s.offline.GetOfflineStatusSnapshot(ctx)
	if err != nil {
		return nil, errors.NewInternalError(err)
	}
	return status, nil
}

// PlayableAudioURL resolves a URL a media player can load for the card:
// stored audio first, then the card's remote audio URL.
func (s *studyService) PlayableAudioURL(ctx context.Context, cardID string) (string, error) {
	fallback := ""
	card, found, err := s.offline.GetOfflineCard(ctx, cardID)
	if err != nil {
		return "", errors.NewInternalError(err)
	}
	if !found {
		if remoteCard, err := s.remote.GetCard(ctx, cardID); err == nil && remoteCard != nil {
			card = remoteCard
		}
	}
	if card != nil && card.HasAudio() {
		fallback = *card.AudioURL
	}

	url := s.offline.GetPlayableAudioURL(ctx, cardID, fallback)
	if url == "" {
		return "", errors.NewNotFoundError("audio", cardID)
	}
	return url, nil
}

// FilterByCollection keeps the cards that belong to collectionID. An empty
// collectionID keeps everything.
func FilterByCollection(cards []models.CardView, collectionID string) []models.CardView {
	if collectionID == "" {
		return cards
	}
	out := make([]models.CardView, 0, len(cards))
	for _, c := range cards {
		if slices.Contains(c.CollectionIDs, collectionID) {
			out = append(out, c)
		}
	}
	return out
}
