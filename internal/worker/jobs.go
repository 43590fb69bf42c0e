package worker

import (
	"context"

	"github.com/vytor/hanziflash/internal/logger"
	"github.com/vytor/hanziflash/internal/models"
)

// CardCacher caches one card, fetching it from the remote store first.
// Declared here so the worker package does not import services.
type CardCacher interface {
	CacheCard(ctx context.Context, cardID string) (models.StatusEvent, error)
}

// CacheCardJob stores one card and its audio offline in the background.
type CacheCardJob struct {
	Cacher CardCacher
	CardID string
}

func (j *CacheCardJob) Name() string { return "cache_card" }

func (j *CacheCardJob) Run(ctx context.Context) error {
	log := logger.FromContext(ctx).WithField("card_id", j.CardID)
	res, err := j.Cacher.CacheCard(ctx, j.CardID)
	if err != nil {
		return err
	}
	log.Debug("background cache done: audio_stored=%t", res.AudioStored)
	return nil
}

// CardCacherFunc adapts a function to CardCacher.
type CardCacherFunc func(ctx context.Context, cardID string) (models.StatusEvent, error)

func (f CardCacherFunc) CacheCard(ctx context.Context, cardID string) (models.StatusEvent, error) {
	return f(ctx, cardID)
}
