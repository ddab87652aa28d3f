package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/example/trip-tracking/internal/models"
)

var ErrNotFound = errors.New("booking not found")

// BookingStore defines the persistence operations the tracking server
// needs from the booking subsystem. The full CRUD surface lives in the
// booking service; this is only what discovery and ingest touch.
type BookingStore interface {
	Create(ctx context.Context, b *models.Booking) error
	Get(ctx context.Context, id string) (*models.Booking, error)
	ListByCustomer(ctx context.Context, customerID string) ([]models.Booking, error)
	UpdateStatus(ctx context.Context, id string, status models.BookingStatus) error
}

type MemoryStore struct {
	mu       sync.RWMutex
	bookings map[string]*models.Booking
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bookings: make(map[string]*models.Booking)}
}

func (m *MemoryStore) Create(ctx context.Context, b *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.bookings[b.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *MemoryStore) ListByCustomer(ctx context.Context, customerID string) ([]models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Booking, 0)
	for _, b := range m.bookings {
		if customerID == "" || b.CustomerID == customerID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *MemoryStore) UpdateStatus(ctx context.Context, id string, status models.BookingStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return ErrNotFound
	}
	b.Status = status
	b.UpdatedAt = time.Now()
	return nil
}
