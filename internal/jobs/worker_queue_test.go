package jobs

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vytor/hanziflash/internal/models"
	"github.com/vytor/hanziflash/internal/worker"
)

type recordingCacher struct {
	mu  sync.Mutex
	wg  sync.WaitGroup
	ids []string
}

func (r *recordingCacher) CacheCard(_ context.Context, cardID string) (models.StatusEvent, error) {
	defer r.wg.Done()
	r.mu.Lock()
	r.ids = append(r.ids, cardID)
	r.mu.Unlock()
	return models.StatusEvent{CardID: cardID, Cached: true}, nil
}

func TestWorkerQueue_EnqueueCache(t *testing.T) {
	pool := worker.NewPool(2, 8)
	pool.Start(context.Background())
	defer pool.Stop()

	cacher := &recordingCacher{}
	var q JobQueue = NewWorkerQueue(pool, cacher)

	cacher.wg.Add(3)
	for _, id := range []string{"c1", "c2", "c3"} {
		require.NoError(t, q.EnqueueCache(id))
	}
	cacher.wg.Wait()

	cacher.mu.Lock()
	defer cacher.mu.Unlock()
	assert.ElementsMatch(t, []string{"c1", "c2", "c3"}, cacher.ids)
}

func TestWorkerQueue_StoppedPool(t *testing.T) {
	pool := worker.NewPool(1, 1)
	pool.Stop()

	q := NewWorkerQueue(pool, &recordingCacher{})
	assert.ErrorIs(t, q.EnqueueCache("c1"), worker.ErrPoolStopped)
}
