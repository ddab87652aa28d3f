// Package monitor discovers which booking, if any, is currently in the
// "ongoing" state for this user. It polls the booking list and tells the
// coordinator when the answer changes.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/trip-tracking/internal/models"
	"github.com/example/trip-tracking/internal/observability"
)

// BookingLister is the slice of the booking API the monitor needs.
type BookingLister interface {
	ListMine(ctx context.Context) ([]models.Booking, error)
}

// Monitor polls for the active trip: once immediately on Start, then on
// a fixed interval. A failed poll keeps the previously known answer; a
// network hiccup must not interrupt an in-progress trip's tracking.
type Monitor struct {
	api      BookingLister
	interval time.Duration
	logger   *slog.Logger
	onChange func(bookingID string) // "" means no active trip

	mu     sync.Mutex
	active string
	cancel context.CancelFunc
	done   chan struct{}
}

func New(api BookingLister, interval time.Duration, logger *slog.Logger, onChange func(string)) *Monitor {
	return &Monitor{api: api, interval: interval, logger: logger, onChange: onChange}
}

// Start begins polling. Idempotent; a second Start is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	go func() {
		defer close(done)
		m.Refresh(runCtx)
		tick := time.NewTicker(m.interval)
		defer tick.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-tick.C:
				m.Refresh(runCtx)
			}
		}
	}()
}

// Stop halts polling and forgets the active trip.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// Active returns the last known active booking id, "" if none.
func (m *Monitor) Active() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Refresh performs one poll. On failure the previous answer is retained
// (fail-open) and only a warning is logged.
func (m *Monitor) Refresh(ctx context.Context) {
	observability.MonitorPolls.Inc()
	bookings, err := m.api.ListMine(ctx)
	if err != nil {
		observability.MonitorFailures.Inc()
		if ctx.Err() == nil {
			m.logger.Warn("booking poll failed, keeping previous state", "error", err)
		}
		return
	}

	// At most one ongoing booking is expected; first match wins as a
	// defensive fallback if the backend ever reports more.
	var active string
	for _, b := range bookings {
		if b.Status == models.StatusOngoing {
			active = b.ID
			break
		}
	}

	m.mu.Lock()
	changed := active != m.active
	m.active = active
	m.mu.Unlock()

	if !changed {
		return
	}
	if active == "" {
		m.logger.Info("no ongoing booking")
	} else {
		m.logger.Info("ongoing booking found", "booking_id", active)
	}
	if m.onChange != nil {
		m.onChange(active)
	}
}
