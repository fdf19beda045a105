// internal/domain/product/rollup.go
package product

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// RollupQueue recomputes product rollups off the request path. Sales enqueue
// the products they touched after commit; the worker drains the queue and
// logs failures instead of surfacing them, since rollup is idempotent and
// re-run on the next mutation. The queue replaces the implicit
// fire-and-forget goroutine pattern so the dependency and its failure mode
// stay visible.
type RollupQueue struct {
	service *Service
	log     *logrus.Logger
	jobs    chan uint
	wg      sync.WaitGroup
	once    sync.Once
}

// NewRollupQueue creates a queue and starts its worker goroutine.
func NewRollupQueue(service *Service, log *logrus.Logger) *RollupQueue {
	q := &RollupQueue{
		service: service,
		log:     log,
		jobs:    make(chan uint, 256),
	}
	q.wg.Add(1)
	go q.worker()
	return q
}

// Enqueue schedules a rollup recomputation for the product. If the queue is
// full the rollup runs inline rather than being dropped.
func (q *RollupQueue) Enqueue(productID uint) {
	select {
	case q.jobs <- productID:
	default:
		q.log.WithField("product_id", productID).Warn("rollup queue full, recomputing inline")
		q.refresh(productID)
	}
}

// Close stops the worker after draining pending jobs.
func (q *RollupQueue) Close() {
	q.once.Do(func() {
		close(q.jobs)
	})
	q.wg.Wait()
}

func (q *RollupQueue) worker() {
	defer q.wg.Done()
	for productID := range q.jobs {
		q.refresh(productID)
	}
}

func (q *RollupQueue) refresh(productID uint) {
	if err := q.service.RefreshRollup(nil, productID); err != nil {
		q.log.WithField("product_id", productID).WithError(err).Error("rollup recomputation failed")
	}
}
