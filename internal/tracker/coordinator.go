// Package tracker orchestrates the tracking session: it reacts to
// active-trip changes from the monitor and to app-state transitions,
// starting and stopping the position sampler, the realtime channel sends,
// and the durable background registration so the two delivery paths
// overlap instead of leaving gaps.
package tracker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/example/trip-tracking/internal/lifecycle"
	"github.com/example/trip-tracking/internal/models"
	"github.com/example/trip-tracking/internal/observability"
	"github.com/example/trip-tracking/internal/sampler"
)

// State of the coordinator's session machine.
type State string

const (
	Idle               State = "idle"
	Starting           State = "starting"
	ForegroundTracking State = "foreground_tracking"
	BackgroundTracking State = "background_tracking"
	Stopping           State = "stopping"
)

// PositionSource is the sampler surface the coordinator drives.
type PositionSource interface {
	Start(ctx context.Context, opts sampler.Options, fn func(models.Sample)) error
	Stop()
	Running() bool
}

// RealtimeSender is the slice of the realtime channel the coordinator
// uses. The connection itself is shared process-wide and not owned here;
// a false send result is the only connectivity signal the coordinator
// acts on.
type RealtimeSender interface {
	SendPosition(u models.LocationUpdate) bool
	Join(bookingID string) bool
}

// BackgroundRegistration is the durable channel's platform registration.
type BackgroundRegistration interface {
	Start(bookingID string) error
	SetBooking(bookingID string)
	Stop()
	Running() bool
}

// Session is a snapshot of the coordinator's in-memory state, for the UI
// layer and for tests. It is never persisted; after a process restart it
// is rebuilt by the next monitor poll.
type Session struct {
	BookingID      string
	State          State
	RealtimeActive bool
	DurableActive  bool
	LastSampleSent time.Time
	LastError      string
}

// Coordinator is the single process-wide tracking orchestrator.
// Concurrent coordinators are not supported; the durable registration's
// booking slot has exactly one writer.
type Coordinator struct {
	source       PositionSource
	realtime     RealtimeSender
	registration BackgroundRegistration
	opts         sampler.Options
	logger       *slog.Logger

	// opMu serializes orchestration (trip changes, lifecycle events);
	// mu guards the session snapshot read from the sample path.
	opMu sync.Mutex
	mu   sync.Mutex

	state          State
	bookingID      string
	foreground     bool
	realtimeActive bool
	durableActive  bool
	lastSentAt     time.Time
	lastErr        string
}

func NewCoordinator(source PositionSource, realtime RealtimeSender, registration BackgroundRegistration, opts sampler.Options, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		source:       source,
		realtime:     realtime,
		registration: registration,
		opts:         opts,
		logger:       logger,
		state:        Idle,
		foreground:   true,
	}
}

// SetActiveTrip is the monitor's notification entry point. Empty id
// means no active trip. Same id while tracking is a no-op; a different
// id forces a stop-then-start cycle.
func (c *Coordinator) SetActiveTrip(bookingID string) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	current := c.snapshot()
	if bookingID == current.BookingID {
		return
	}
	if current.BookingID != "" {
		c.stopLocked()
	}
	if bookingID != "" {
		c.startLocked(bookingID)
	}
}

// Stop ends the session outright (trip ended or user logged out).
func (c *Coordinator) Stop() {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.snapshot().BookingID != "" {
		c.stopLocked()
	}
}

// HandleAppState is wired to the lifecycle notifier. Foreground resume
// is the self-healing point: the durable registration may have been
// killed by the platform while we were away, and the sampler may need a
// restart.
func (c *Coordinator) HandleAppState(s lifecycle.State) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	c.foreground = s == lifecycle.Foreground
	bookingID := c.bookingID
	c.mu.Unlock()
	if bookingID == "" {
		return
	}

	switch s {
	case lifecycle.Background:
		// Durable becomes primary; the sampler and realtime sends keep
		// running for as long as the process stays alive.
		c.setState(BackgroundTracking)
		c.logger.Info("backgrounded, durable channel primary", "booking_id", bookingID)
	case lifecycle.Foreground:
		if !c.registration.Running() {
			c.logger.Warn("background registration lost, restarting", "booking_id", bookingID)
			c.startRegistration(bookingID)
		}
		if !c.source.Running() {
			c.startSampler(bookingID)
		}
		if c.source.Running() {
			c.setState(ForegroundTracking)
		}
		c.logger.Info("foregrounded, tracking verified", "booking_id", bookingID)
	}
}

// OnRealtimeConnected restores this session's socket state after a
// (re)connect. The channel does not rejoin rooms by itself.
func (c *Coordinator) OnRealtimeConnected() {
	c.mu.Lock()
	bookingID := c.bookingID
	c.mu.Unlock()
	if bookingID == "" {
		return
	}
	c.realtime.Join(bookingID)
	c.logger.Info("realtime reconnected, subscription restored", "booking_id", bookingID)
}

// Session returns the current snapshot.
func (c *Coordinator) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Session{
		BookingID:      c.bookingID,
		State:          c.state,
		RealtimeActive: c.realtimeActive,
		DurableActive:  c.durableActive,
		LastSampleSent: c.lastSentAt,
		LastError:      c.lastErr,
	}
}

func (c *Coordinator) snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Session{BookingID: c.bookingID, State: c.state}
}

// startLocked runs the Idle -> Starting -> {Foreground,Background}Tracking
// leg. Caller holds opMu.
func (c *Coordinator) startLocked(bookingID string) {
	c.mu.Lock()
	c.bookingID = bookingID
	c.state = Starting
	c.lastErr = ""
	c.mu.Unlock()
	c.logger.Info("starting tracking", "booking_id", bookingID)

	// Durable path first: it has its own permission check and must not
	// be blocked by a realtime failure.
	c.startRegistration(bookingID)

	c.mu.Lock()
	foreground := c.foreground
	c.mu.Unlock()
	if foreground {
		c.startSampler(bookingID)
	}

	if c.source.Running() {
		c.setState(ForegroundTracking)
	} else {
		c.setState(BackgroundTracking)
	}
	observability.ActiveSessions.Set(1)
}

// stopLocked runs the Stopping -> Idle leg. Caller holds opMu.
func (c *Coordinator) stopLocked() {
	c.mu.Lock()
	bookingID := c.bookingID
	c.state = Stopping
	c.mu.Unlock()
	c.logger.Info("stopping tracking", "booking_id", bookingID)

	c.source.Stop()
	c.registration.Stop()

	c.mu.Lock()
	c.bookingID = ""
	c.state = Idle
	c.realtimeActive = false
	c.durableActive = false
	c.lastSentAt = time.Time{}
	c.mu.Unlock()
	observability.ActiveSessions.Set(0)
}

func (c *Coordinator) startRegistration(bookingID string) {
	err := c.registration.Start(bookingID)
	c.mu.Lock()
	c.durableActive = err == nil
	if err != nil {
		c.lastErr = err.Error()
	}
	c.mu.Unlock()
	if err != nil {
		c.logger.Warn("durable channel unavailable", "booking_id", bookingID, "error", err)
	}
}

func (c *Coordinator) startSampler(bookingID string) {
	err := c.source.Start(context.Background(), c.opts, c.handleSample)
	c.mu.Lock()
	c.realtimeActive = err == nil
	if err != nil {
		c.lastErr = err.Error()
	}
	c.mu.Unlock()
	if err != nil {
		// Permission denial is terminal for the realtime path this
		// session; the durable path carries on independently.
		if errors.Is(err, sampler.ErrPermissionDenied) {
			c.logger.Warn("foreground tracking unavailable", "booking_id", bookingID, "error", err)
		} else {
			c.logger.Error("sampler start failed", "booking_id", bookingID, "error", err)
		}
	}
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// handleSample is the sampler callback on the foreground path. Send
// failures are silent: a disconnected socket just means the durable
// channel covers that interval.
func (c *Coordinator) handleSample(s models.Sample) {
	c.mu.Lock()
	bookingID := c.bookingID
	c.mu.Unlock()
	if bookingID == "" {
		return
	}
	if c.realtime.SendPosition(models.UpdateFromSample(bookingID, s)) {
		c.mu.Lock()
		c.lastSentAt = time.Now()
		c.mu.Unlock()
		c.logger.Debug("location sent", "booking_id", bookingID, "lat", s.Lat, "lng", s.Lng, "speed", s.Speed)
	} else {
		c.logger.Debug("realtime unavailable, sample dropped", "booking_id", bookingID)
	}
}
