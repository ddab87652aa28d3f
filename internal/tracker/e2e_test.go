package tracker_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/trip-tracking/internal/apiclient"
	"github.com/example/trip-tracking/internal/durable"
	"github.com/example/trip-tracking/internal/httpapi"
	"github.com/example/trip-tracking/internal/hub"
	"github.com/example/trip-tracking/internal/lifecycle"
	"github.com/example/trip-tracking/internal/logging"
	"github.com/example/trip-tracking/internal/models"
	"github.com/example/trip-tracking/internal/monitor"
	"github.com/example/trip-tracking/internal/positions"
	"github.com/example/trip-tracking/internal/realtime"
	"github.com/example/trip-tracking/internal/sampler"
	"github.com/example/trip-tracking/internal/storage"
	"github.com/example/trip-tracking/internal/tracker"
)

// The full customer pipeline against a real backend: booking discovery,
// realtime delivery to a subscribed host, durable ingest, and teardown
// when the trip completes.

type pipeline struct {
	server   *httpapi.Server
	ts       *httptest.Server
	api      *apiclient.Client
	channel  *realtime.Channel
	coord    *tracker.Coordinator
	mon      *monitor.Monitor
	registry *durable.Registration
}

func startPipeline(t *testing.T) *pipeline {
	t.Helper()
	logger := logging.NewLogger("error")

	srv := httpapi.NewServer(storage.NewMemoryStore(), positions.NewMemoryStore(), nil, hub.New(logger), logger)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	api := apiclient.New(ts.URL+"/api", "cust-1")
	provider := sampler.NewSimProvider(12.9716, 77.5946)
	perms := sampler.EnvPermissions{}

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	channel := realtime.NewChannel(wsURL, realtime.Options{Attempts: 5, Delay: 10 * time.Millisecond}, logger)
	channel.Connect()
	t.Cleanup(channel.Close)

	src := sampler.New(provider, perms, logger)
	reg := durable.NewRegistration(api, provider, perms, 20*time.Millisecond, logger)

	coord := tracker.NewCoordinator(src, channel, reg, sampler.Options{Interval: 20 * time.Millisecond}, logger)
	channel.OnConnect(coord.OnRealtimeConnected)
	t.Cleanup(coord.Stop)

	mon := monitor.New(api, 50*time.Millisecond, logger, coord.SetActiveTrip)

	return &pipeline{server: srv, ts: ts, api: api, channel: channel, coord: coord, mon: mon, registry: reg}
}

func (p *pipeline) seedOngoing(t *testing.T, id string) {
	t.Helper()
	err := p.server.Store.Create(context.Background(), &models.Booking{
		ID: id, CustomerID: "cust-1", CarID: "car-1", Status: models.StatusOngoing,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestEndToEndForegroundDeliveryToHost(t *testing.T) {
	p := startPipeline(t)
	p.seedOngoing(t, "B1")

	// host subscribes to the trip before the customer starts driving
	logger := logging.NewLogger("error")
	wsURL := "ws" + strings.TrimPrefix(p.ts.URL, "http") + "/ws"
	host := realtime.NewChannel(wsURL, realtime.Options{Attempts: 5, Delay: 10 * time.Millisecond}, logger)
	host.Connect()
	defer host.Close()
	waitFor(t, 2*time.Second, host.Connected, "host never connected")

	var mu sync.Mutex
	var got []models.LocationUpdate
	host.OnLocation(func(u models.LocationUpdate) {
		mu.Lock()
		got = append(got, u)
		mu.Unlock()
	})
	host.Join("B1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	waitFor(t, 2*time.Second, p.channel.Connected, "customer channel never connected")
	p.mon.Start(ctx)
	defer p.mon.Stop()

	waitFor(t, 3*time.Second, func() bool {
		return p.coord.Session().State == tracker.ForegroundTracking
	}, "coordinator never reached foreground tracking")

	waitFor(t, 3*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0
	}, "host never received a realtime position")

	mu.Lock()
	defer mu.Unlock()
	if got[0].BookingID != "B1" {
		t.Fatalf("push for wrong booking: %+v", got[0])
	}
	if got[0].Timestamp.IsZero() {
		t.Fatalf("push missing timestamp: %+v", got[0])
	}
}

func TestEndToEndDurableChannelWhileBackgrounded(t *testing.T) {
	p := startPipeline(t)
	p.seedOngoing(t, "B1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.mon.Start(ctx)
	defer p.mon.Stop()

	waitFor(t, 3*time.Second, func() bool {
		return p.coord.Session().BookingID == "B1"
	}, "coordinator never picked up the trip")

	p.coord.HandleAppState(lifecycle.Background)
	if state := p.coord.Session().State; state != tracker.BackgroundTracking {
		t.Fatalf("state = %s, want %s", state, tracker.BackgroundTracking)
	}

	// the registration posts over HTTP; the server's latest-position
	// read must eventually reflect it
	waitFor(t, 3*time.Second, func() bool {
		_, ok, err := p.server.Positions.Latest(context.Background(), "B1")
		return err == nil && ok
	}, "durable channel never delivered a sample")
}

func TestEndToEndTripCompletionStopsTracking(t *testing.T) {
	p := startPipeline(t)
	p.seedOngoing(t, "B1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.mon.Start(ctx)
	defer p.mon.Stop()

	waitFor(t, 3*time.Second, func() bool {
		return p.coord.Session().State != tracker.Idle && p.coord.Session().BookingID == "B1"
	}, "tracking never started")

	// trip ends server-side; within one polling interval tracking stops
	if err := p.server.Store.UpdateStatus(context.Background(), "B1", models.StatusCompleted); err != nil {
		t.Fatalf("complete: %v", err)
	}

	waitFor(t, 3*time.Second, func() bool {
		s := p.coord.Session()
		return s.State == tracker.Idle && s.BookingID == ""
	}, "tracking never stopped after completion")

	if p.registry.Running() {
		t.Fatal("durable registration still running after trip end")
	}
}
