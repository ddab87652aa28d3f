package sampler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/example/trip-tracking/internal/geo"
	"github.com/example/trip-tracking/internal/models"
	"github.com/example/trip-tracking/internal/observability"
)

// ErrPermissionDenied is returned by Start when the foreground location
// grant is missing. It is the only tracking failure surfaced to callers;
// everything else degrades silently.
var ErrPermissionDenied = errors.New("location permission denied")

// Fix is a raw position reading from a Provider, before gating.
type Fix struct {
	Lat     float64
	Lng     float64
	Heading float64 // degrees, 0 if unknown
	Speed   float64 // m/s, 0 if unknown
}

// Provider yields the device's current position. Implementations wrap
// whatever location source the deployment has (GPS daemon, CAN bus
// adapter, simulator).
type Provider interface {
	Current(ctx context.Context) (Fix, error)
}

// Permissions models the OS location grants. Foreground and background
// are independent: a deployment may hold one without the other.
type Permissions interface {
	Foreground() error
	Background() error
}

// Options bound the sample rate. Both gates must pass before a fix is
// emitted: at least Interval since the last emission AND at least
// Distance meters of displacement.
type Options struct {
	Interval time.Duration
	Distance float64
}

// Sampler produces position samples at a bounded rate. Only one
// subscription is active per Sampler; Start while running tears down the
// previous subscription first so there is never a duplicate stream.
type Sampler struct {
	provider Provider
	perms    Permissions
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(provider Provider, perms Permissions, logger *slog.Logger) *Sampler {
	return &Sampler{provider: provider, perms: perms, logger: logger}
}

// Start requests the foreground location grant and begins emitting
// samples to fn. It returns ErrPermissionDenied if the grant is missing.
// The stream runs until Stop is called or ctx is cancelled.
func (s *Sampler) Start(ctx context.Context, opts Options, fn func(models.Sample)) error {
	if err := s.perms.Foreground(); err != nil {
		return ErrPermissionDenied
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		done := s.done
		s.mu.Unlock()
		<-done
		s.mu.Lock()
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go s.run(runCtx, opts, fn, done)
	return nil
}

// Stop releases the subscription. Calling Stop when not started is a
// no-op, not an error.
func (s *Sampler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// Running reports whether a subscription is currently active.
func (s *Sampler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Sampler) run(ctx context.Context, opts Options, fn func(models.Sample), done chan struct{}) {
	defer close(done)

	tick := time.NewTicker(opts.Interval)
	defer tick.Stop()

	var hasLast bool
	var lastLat, lastLng float64

	// First fix goes out immediately rather than a full interval later.
	s.emit(ctx, opts, fn, &hasLast, &lastLat, &lastLng)

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			s.emit(ctx, opts, fn, &hasLast, &lastLat, &lastLng)
		}
	}
}

func (s *Sampler) emit(ctx context.Context, opts Options, fn func(models.Sample), hasLast *bool, lastLat, lastLng *float64) {
	fix, err := s.provider.Current(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("position fix failed", "error", err)
		}
		return
	}
	if *hasLast && opts.Distance > 0 {
		if geo.Haversine(*lastLat, *lastLng, fix.Lat, fix.Lng) < opts.Distance {
			observability.SamplesSuppressed.Inc()
			return
		}
	}
	*hasLast = true
	*lastLat, *lastLng = fix.Lat, fix.Lng

	observability.SamplesEmitted.Inc()
	fn(models.Sample{
		Lat:        fix.Lat,
		Lng:        fix.Lng,
		Heading:    fix.Heading,
		Speed:      fix.Speed,
		CapturedAt: time.Now().UTC(),
	})
}
