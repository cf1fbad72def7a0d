package store

import (
	"sync"

	"github.com/ecobazaar/storefront/internal/domain"
)

// Snapshot is a consistent view of a store after some mutation. Version
// increases by one with every applied mutation.
type Snapshot struct {
	Version   uint64            `json:"version"`
	Cart      []domain.LineItem `json:"items"`
	ItemCount int               `json:"item_count"`
	Total     domain.Amount     `json:"total"`
	CarbonKg  domain.Amount     `json:"carbon_kg"`
	// Orders is only filled by Store.Snapshot. Subscribers get nil.
	Orders []domain.Order `json:"-"`
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Version:   s.version,
		Cart:      domain.CloneItems(s.cart),
		ItemCount: domain.ItemCount(s.cart),
		Total:     domain.NewAmount(domain.CalculateTotal(s.cart)),
		CarbonKg:  domain.NewAmount(domain.CarbonTotal(s.cart)),
	}
}

// Subscribe returns a channel that receives the current snapshot immediately
// and the latest snapshot after each mutation. A slow reader misses
// intermediate snapshots, never the latest one, and never delays a mutation.
// Snapshots delivered on the channel are shared and must not be modified.
//
// cancel closes the channel; it may be called more than once. The channel is
// also closed when the store is closed.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// publishLocked replaces whatever a subscriber has not read yet with snap.
// The store is the only sender and holds s.mu, so the final send cannot block.
func (s *Store) publishLocked(snap Snapshot) {
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}
