// Package positions stores the latest known position per booking. The
// two delivery channels overlap and reorder freely, so writes carry a
// timestamp and the freshest sample wins; host displays read whatever is
// latest regardless of which channel delivered it.
package positions

import (
	"context"
	"sync"

	"github.com/example/trip-tracking/internal/models"
)

type Store interface {
	// Upsert records the update unless a newer one is already stored.
	Upsert(ctx context.Context, u models.LocationUpdate) error
	// Latest returns the freshest sample for a booking, if any.
	Latest(ctx context.Context, bookingID string) (models.LocationUpdate, bool, error)
}

type MemoryStore struct {
	mu     sync.RWMutex
	latest map[string]models.LocationUpdate
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{latest: make(map[string]models.LocationUpdate)}
}

func (m *MemoryStore) Upsert(ctx context.Context, u models.LocationUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.latest[u.BookingID]; ok && cur.Timestamp.After(u.Timestamp) {
		return nil
	}
	m.latest[u.BookingID] = u
	return nil
}

func (m *MemoryStore) Latest(ctx context.Context, bookingID string) (models.LocationUpdate, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.latest[bookingID]
	return u, ok, nil
}
