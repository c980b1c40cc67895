package benders

import (
	"github.com/grussorusso/serverledge-estimator/internal/catalog"
	"github.com/grussorusso/serverledge-estimator/internal/master"
)

// CutStore owns the live cuts and holds one catalog reference per cut item.
type CutStore struct {
	queue   *cutQueue
	catalog *catalog.Catalog
	items   int
}

func NewCutStore(invocations int) *CutStore {
	return &CutStore{queue: newCutQueue(16), catalog: catalog.New(invocations)}
}

// Add reserves every interval of c and appends it.
func (s *CutStore) Add(c master.Cut) {
	for _, k := range c {
		s.catalog.Reserve(k.Invocation, k.Interval)
	}
	s.items += len(c)
	s.queue.enqueue(c)
}

// Evict drops the oldest cuts until at most limit remain and returns how
// many were dropped.
func (s *CutStore) Evict(limit int) (int, error) {
	dropped := 0
	for s.queue.len() > limit {
		c := s.queue.dequeue()
		for _, k := range c {
			if err := s.catalog.Release(k.Invocation, k.Interval); err != nil {
				return dropped, err
			}
		}
		s.items -= len(c)
		dropped++
	}
	return dropped, nil
}

func (s *CutStore) Len() int { return s.queue.len() }

// Items is the sum of the cut sizes, which always equals the catalog's
// total reference count.
func (s *CutStore) Items() int { return s.items }

func (s *CutStore) Cuts() []master.Cut { return s.queue.slice() }

func (s *CutStore) Catalog() *catalog.Catalog { return s.catalog }
