package jobs

import (
	"github.com/vytor/hanziflash/internal/worker"
)

// WorkerQueue implements JobQueue using a worker pool
type WorkerQueue struct {
	cachePool *worker.Pool
	cacher    worker.CardCacher
}

// NewWorkerQueue creates a new WorkerQueue implementation
func NewWorkerQueue(cachePool *worker.Pool, cacher worker.CardCacher) *WorkerQueue {
	return &WorkerQueue{
		cachePool: cachePool,
		cacher:    cacher,
	}
}

func (q *WorkerQueue) EnqueueCache(cardID string) error {
	return q.cachePool.Submit(&worker.CacheCardJob{
		Cacher: q.cacher,
		CardID: cardID,
	})
}
