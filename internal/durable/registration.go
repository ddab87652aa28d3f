// Package durable implements the store-and-forward delivery path: a
// long-lived background registration that posts one position per tick to
// the per-booking ingest endpoint over HTTP. It is the channel that keeps
// working while the realtime socket is down or the process is suspended,
// and it is best-effort: the platform may kill the registration, and lost
// samples are superseded by the next tick rather than retried.
package durable

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/trip-tracking/internal/models"
	"github.com/example/trip-tracking/internal/observability"
	"github.com/example/trip-tracking/internal/sampler"
)

// Poster delivers one sample to the ingest endpoint.
type Poster interface {
	SendPosition(ctx context.Context, bookingID string, s models.Sample) error
}

// Registration is the background execution slot. Exactly one booking is
// tracked at a time; switching bookings means updating the slot before
// the next tick fires. It runs its own tick loop independent of the
// coordinator so it keeps delivering when the foreground path is gone.
type Registration struct {
	poster   Poster
	provider sampler.Provider
	perms    sampler.Permissions
	interval time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	bookingID string
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewRegistration(poster Poster, provider sampler.Provider, perms sampler.Permissions, interval time.Duration, logger *slog.Logger) *Registration {
	return &Registration{
		poster:   poster,
		provider: provider,
		perms:    perms,
		interval: interval,
		logger:   logger,
	}
}

// Start registers background delivery for the given booking. Both the
// foreground and background grants are required; denial of either keeps
// this channel off without affecting the realtime path. Start while
// already running only updates the booking slot.
func (r *Registration) Start(bookingID string) error {
	if err := r.perms.Foreground(); err != nil {
		return sampler.ErrPermissionDenied
	}
	if err := r.perms.Background(); err != nil {
		return sampler.ErrPermissionDenied
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.bookingID = bookingID
	if r.cancel != nil {
		r.logger.Debug("background registration already running", "booking_id", bookingID)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done
	go r.run(ctx, done)
	r.logger.Info("background tracking started", "booking_id", bookingID)
	return nil
}

// SetBooking updates the current-booking slot without touching the loop.
func (r *Registration) SetBooking(bookingID string) {
	r.mu.Lock()
	r.bookingID = bookingID
	r.mu.Unlock()
}

// Stop ends the registration. Idempotent.
func (r *Registration) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	done := r.done
	r.cancel = nil
	r.done = nil
	r.bookingID = ""
	r.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
		r.logger.Info("background tracking stopped")
	}
}

// Running reports whether the registration loop is alive. The coordinator
// checks this on foreground resume to detect a killed registration.
func (r *Registration) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}

func (r *Registration) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	tick := time.NewTicker(r.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			r.deliver(ctx)
		}
	}
}

func (r *Registration) deliver(ctx context.Context) {
	r.mu.Lock()
	bookingID := r.bookingID
	r.mu.Unlock()
	if bookingID == "" {
		return
	}

	fix, err := r.provider.Current(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Warn("background position fix failed", "error", err)
		}
		return
	}
	s := models.Sample{
		Lat:        fix.Lat,
		Lng:        fix.Lng,
		Heading:    fix.Heading,
		Speed:      fix.Speed,
		CapturedAt: time.Now().UTC(),
	}

	// Post with a bounded budget; the result is ignored if the session
	// stopped in the meantime.
	postCtx, cancel := context.WithTimeout(context.Background(), r.interval)
	defer cancel()
	if err := r.poster.SendPosition(postCtx, bookingID, s); err != nil {
		observability.IngestFailures.Inc()
		r.logger.Warn("background location send failed", "booking_id", bookingID, "error", err)
		return
	}
	observability.IngestPosts.Inc()
	r.logger.Debug("background location sent", "booking_id", bookingID, "lat", s.Lat, "lng", s.Lng)
}
