package realtime

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/trip-tracking/internal/httpapi"
	"github.com/example/trip-tracking/internal/hub"
	"github.com/example/trip-tracking/internal/logging"
	"github.com/example/trip-tracking/internal/models"
	"github.com/example/trip-tracking/internal/positions"
	"github.com/example/trip-tracking/internal/storage"
)

func startHub(t *testing.T) string {
	t.Helper()
	logger := logging.NewLogger("error")
	srv := httpapi.NewServer(storage.NewMemoryStore(), positions.NewMemoryStore(), nil, hub.New(logger), logger)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *Channel {
	t.Helper()
	c := NewChannel(url, Options{Attempts: 3, Delay: 10 * time.Millisecond}, logging.NewLogger("error"))
	c.Connect()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Connected() {
			return c
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("channel did not connect")
	return nil
}

func TestSendPositionFailsSilentlyWhenDisconnected(t *testing.T) {
	c := NewChannel("ws://127.0.0.1:1/ws", Options{Attempts: 1, Delay: time.Millisecond}, logging.NewLogger("error"))
	u := models.LocationUpdate{BookingID: "B1", Lat: 1, Lng: 2}
	if c.SendPosition(u) {
		t.Fatal("send must report failure while disconnected")
	}
}

func TestConnectGivesUpAfterBoundedAttempts(t *testing.T) {
	c := NewChannel("ws://127.0.0.1:1/ws", Options{Attempts: 2, Delay: time.Millisecond, DelayMax: time.Millisecond}, logging.NewLogger("error"))
	c.Connect()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == Disconnected {
			return // terminal for this dial cycle
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("dial loop never settled")
}

func TestConnectIdempotentWhileConnected(t *testing.T) {
	url := startHub(t)
	c := dial(t, url)
	defer c.Close()
	c.Connect()
	c.Connect()
	if !c.Connected() {
		t.Fatal("redundant Connect must not drop the connection")
	}
}

func TestCustomerToHostDelivery(t *testing.T) {
	url := startHub(t)

	host := dial(t, url)
	defer host.Close()
	customer := dial(t, url)
	defer customer.Close()

	var mu sync.Mutex
	var got []models.LocationUpdate
	host.OnLocation(func(u models.LocationUpdate) {
		mu.Lock()
		got = append(got, u)
		mu.Unlock()
	})
	if !host.Join("B1") {
		t.Fatal("join failed")
	}
	time.Sleep(50 * time.Millisecond) // let the join land before publishing

	sent := models.LocationUpdate{BookingID: "B1", Lat: 12.97, Lng: 77.59, Heading: 45, Speed: 9, Timestamp: time.Now().UTC()}
	if !customer.SendPosition(sent) {
		t.Fatal("send failed")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) == 0 {
		t.Fatal("host never received the location push")
	}
	if got[0].BookingID != "B1" || got[0].Lat != 12.97 || got[0].Heading != 45 {
		t.Fatalf("received = %+v", got[0])
	}
}

func TestSubscriberOnlySeesItsOwnRoom(t *testing.T) {
	url := startHub(t)

	host := dial(t, url)
	defer host.Close()
	customer := dial(t, url)
	defer customer.Close()

	var mu sync.Mutex
	count := 0
	host.OnLocation(func(u models.LocationUpdate) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	host.Join("B1")
	time.Sleep(50 * time.Millisecond)

	customer.SendPosition(models.LocationUpdate{BookingID: "OTHER", Lat: 1, Lng: 1})
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Fatalf("received %d pushes for a room we never joined", count)
	}
}

func TestOnConnectHookFiresOnEveryConnect(t *testing.T) {
	url := startHub(t)

	c := NewChannel(url, Options{Attempts: 5, Delay: 10 * time.Millisecond}, logging.NewLogger("error"))
	var mu sync.Mutex
	fires := 0
	c.OnConnect(func() {
		mu.Lock()
		fires++
		mu.Unlock()
	})
	c.Connect()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := fires
		mu.Unlock()
		if n >= 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	defer c.Close()

	mu.Lock()
	defer mu.Unlock()
	if fires < 1 {
		t.Fatal("OnConnect hook never fired")
	}
}
