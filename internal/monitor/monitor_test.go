package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/trip-tracking/internal/logging"
	"github.com/example/trip-tracking/internal/models"
)

type fakeAPI struct {
	mu       sync.Mutex
	bookings []models.Booking
	err      error
}

func (f *fakeAPI) ListMine(ctx context.Context) ([]models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.bookings, nil
}

func (f *fakeAPI) set(bookings []models.Booking, err error) {
	f.mu.Lock()
	f.bookings = bookings
	f.err = err
	f.mu.Unlock()
}

func changes() (func(string), func() []string) {
	var mu sync.Mutex
	var got []string
	return func(id string) {
			mu.Lock()
			got = append(got, id)
			mu.Unlock()
		}, func() []string {
			mu.Lock()
			defer mu.Unlock()
			out := make([]string, len(got))
			copy(out, got)
			return out
		}
}

func TestRefreshFindsOngoingBooking(t *testing.T) {
	api := &fakeAPI{bookings: []models.Booking{
		{ID: "B0", Status: models.StatusCompleted},
		{ID: "B1", Status: models.StatusOngoing},
	}}
	onChange, got := changes()
	m := New(api, time.Minute, logging.NewLogger("error"), onChange)

	m.Refresh(context.Background())
	if m.Active() != "B1" {
		t.Fatalf("active = %q, want B1", m.Active())
	}
	if ids := got(); len(ids) != 1 || ids[0] != "B1" {
		t.Fatalf("changes = %v", ids)
	}
}

func TestRefreshPicksFirstWhenMultipleOngoing(t *testing.T) {
	api := &fakeAPI{bookings: []models.Booking{
		{ID: "B1", Status: models.StatusOngoing},
		{ID: "B2", Status: models.StatusOngoing},
	}}
	m := New(api, time.Minute, logging.NewLogger("error"), nil)
	m.Refresh(context.Background())
	if m.Active() != "B1" {
		t.Fatalf("active = %q, want first match B1", m.Active())
	}
}

func TestTransientFailureKeepsPreviousState(t *testing.T) {
	api := &fakeAPI{bookings: []models.Booking{{ID: "B1", Status: models.StatusOngoing}}}
	onChange, got := changes()
	m := New(api, time.Minute, logging.NewLogger("error"), onChange)

	m.Refresh(context.Background())
	api.set(nil, errors.New("network down"))
	m.Refresh(context.Background())

	if m.Active() != "B1" {
		t.Fatalf("active = %q after transient failure, want B1", m.Active())
	}
	if ids := got(); len(ids) != 1 {
		t.Fatalf("expected no change notification on failed poll, got %v", ids)
	}
}

func TestTripEndClearsActive(t *testing.T) {
	api := &fakeAPI{bookings: []models.Booking{{ID: "B1", Status: models.StatusOngoing}}}
	onChange, got := changes()
	m := New(api, time.Minute, logging.NewLogger("error"), onChange)

	m.Refresh(context.Background())
	api.set([]models.Booking{{ID: "B1", Status: models.StatusCompleted}}, nil)
	m.Refresh(context.Background())

	if m.Active() != "" {
		t.Fatalf("active = %q, want empty", m.Active())
	}
	want := []string{"B1", ""}
	ids := got()
	if len(ids) != 2 || ids[0] != want[0] || ids[1] != want[1] {
		t.Fatalf("changes = %v, want %v", ids, want)
	}
}

func TestNoDuplicateNotificationForSameTrip(t *testing.T) {
	api := &fakeAPI{bookings: []models.Booking{{ID: "B1", Status: models.StatusOngoing}}}
	onChange, got := changes()
	m := New(api, time.Minute, logging.NewLogger("error"), onChange)

	m.Refresh(context.Background())
	m.Refresh(context.Background())
	m.Refresh(context.Background())

	if ids := got(); len(ids) != 1 {
		t.Fatalf("expected exactly one notification, got %v", ids)
	}
}

func TestStartPollsImmediately(t *testing.T) {
	api := &fakeAPI{bookings: []models.Booking{{ID: "B1", Status: models.StatusOngoing}}}
	onChange, got := changes()
	m := New(api, time.Hour, logging.NewLogger("error"), onChange)

	m.Start(context.Background())
	defer m.Stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(got()) > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected immediate poll on Start")
}
