package sampler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/trip-tracking/internal/logging"
	"github.com/example/trip-tracking/internal/models"
)

type fakeProvider struct {
	mu    sync.Mutex
	fixes []Fix
	idx   int
	calls int
}

func (f *fakeProvider) Current(ctx context.Context) (Fix, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.fixes) == 0 {
		return Fix{}, errors.New("no fix")
	}
	fix := f.fixes[f.idx]
	if f.idx < len(f.fixes)-1 {
		f.idx++
	}
	return fix, nil
}

type grantAll struct{}

func (grantAll) Foreground() error { return nil }
func (grantAll) Background() error { return nil }

type denyAll struct{}

func (denyAll) Foreground() error { return ErrPermissionDenied }
func (denyAll) Background() error { return ErrPermissionDenied }

func collect(t *testing.T) (func(models.Sample), func() []models.Sample) {
	t.Helper()
	var mu sync.Mutex
	var got []models.Sample
	fn := func(s models.Sample) {
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
	}
	return fn, func() []models.Sample {
		mu.Lock()
		defer mu.Unlock()
		out := make([]models.Sample, len(got))
		copy(out, got)
		return out
	}
}

func TestStartDeniedWithoutPermission(t *testing.T) {
	s := New(&fakeProvider{}, denyAll{}, logging.NewLogger("error"))
	err := s.Start(context.Background(), Options{Interval: time.Second}, func(models.Sample) {})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if s.Running() {
		t.Fatal("sampler should not be running after denied start")
	}
}

func TestEmitsFirstFixImmediately(t *testing.T) {
	p := &fakeProvider{fixes: []Fix{{Lat: 1, Lng: 2, Speed: 5}}}
	s := New(p, grantAll{}, logging.NewLogger("error"))
	fn, got := collect(t)
	if err := s.Start(context.Background(), Options{Interval: time.Hour}, fn); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(got()) >= 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	samples := got()
	if len(samples) != 1 {
		t.Fatalf("expected 1 immediate sample, got %d", len(samples))
	}
	if samples[0].Lat != 1 || samples[0].Lng != 2 {
		t.Fatalf("unexpected sample: %+v", samples[0])
	}
	if samples[0].CapturedAt.IsZero() {
		t.Fatal("sample missing capture timestamp")
	}
}

func TestDisplacementGatingSuppressesStationaryFixes(t *testing.T) {
	// same position on every fix: only the first should be emitted
	p := &fakeProvider{fixes: []Fix{{Lat: 12.97, Lng: 77.59}}}
	s := New(p, grantAll{}, logging.NewLogger("error"))
	fn, got := collect(t)
	if err := s.Start(context.Background(), Options{Interval: 10 * time.Millisecond, Distance: 20}, fn); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(120 * time.Millisecond)
	s.Stop()

	if n := len(got()); n != 1 {
		t.Fatalf("expected stationary fixes to be suppressed, got %d samples", n)
	}
}

func TestStartWhileRunningReplacesSubscription(t *testing.T) {
	p := &fakeProvider{fixes: []Fix{{Lat: 1, Lng: 1}}}
	s := New(p, grantAll{}, logging.NewLogger("error"))
	fn, _ := collect(t)
	if err := s.Start(context.Background(), Options{Interval: time.Hour}, fn); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := s.Start(context.Background(), Options{Interval: time.Hour}, fn); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if !s.Running() {
		t.Fatal("sampler should be running")
	}
	s.Stop()
	if s.Running() {
		t.Fatal("sampler should be stopped")
	}
}

func TestStopIdempotent(t *testing.T) {
	s := New(&fakeProvider{}, grantAll{}, logging.NewLogger("error"))
	s.Stop()
	s.Stop()
}
