// Package hub is the server side of the realtime channel: one duplex
// websocket per client, rooms keyed by booking id. Customers publish
// send_location events; hosts join_tracking a booking and get
// receive_location pushes for it.
package hub

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/example/trip-tracking/internal/models"
	"github.com/example/trip-tracking/internal/observability"
)

const (
	eventJoinTracking    = "join_tracking"
	eventSendLocation    = "send_location"
	eventReceiveLocation = "receive_location"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// session wraps one websocket connection with a write lock, since
// broadcasts and acks can race on the same conn.
type session struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *session) send(f frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(f)
}

// Hub routes location events between connected clients.
type Hub struct {
	logger *slog.Logger

	mu    sync.RWMutex
	rooms map[string]map[*session]struct{}

	// onLocation taps every accepted send_location so the server can
	// persist and fan it out beyond connected sockets.
	onLocation func(models.LocationUpdate)
}

func New(logger *slog.Logger) *Hub {
	return &Hub{logger: logger, rooms: make(map[string]map[*session]struct{})}
}

// SetLocationHandler registers the server-side tap for published samples.
func (h *Hub) SetLocationHandler(fn func(models.LocationUpdate)) {
	h.onLocation = fn
}

// HandleConn owns the connection until it closes.
func (h *Hub) HandleConn(conn *websocket.Conn) {
	s := &session{conn: conn}
	defer func() {
		h.leaveAll(s)
		_ = conn.Close()
	}()

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		switch f.Event {
		case eventJoinTracking:
			var bookingID string
			if err := json.Unmarshal(f.Data, &bookingID); err != nil {
				h.logger.Warn("bad join_tracking payload", "error", err)
				continue
			}
			h.join(s, bookingID)
		case eventSendLocation:
			var u models.LocationUpdate
			if err := json.Unmarshal(f.Data, &u); err != nil {
				h.logger.Warn("bad send_location payload", "error", err)
				continue
			}
			if u.BookingID == "" {
				continue
			}
			if h.onLocation != nil {
				h.onLocation(u)
			}
			h.Broadcast(u)
		}
	}
}

func (h *Hub) join(s *session, bookingID string) {
	h.mu.Lock()
	room, ok := h.rooms[bookingID]
	if !ok {
		room = make(map[*session]struct{})
		h.rooms[bookingID] = room
	}
	if _, already := room[s]; !already {
		room[s] = struct{}{}
		observability.HubSubscribers.Inc()
	}
	h.mu.Unlock()
	h.logger.Debug("joined tracking room", "booking_id", bookingID)
}

func (h *Hub) leaveAll(s *session) {
	h.mu.Lock()
	for bookingID, room := range h.rooms {
		if _, ok := room[s]; ok {
			delete(room, s)
			observability.HubSubscribers.Dec()
			if len(room) == 0 {
				delete(h.rooms, bookingID)
			}
		}
	}
	h.mu.Unlock()
}

// Broadcast pushes a receive_location event to every subscriber of the
// update's booking. Samples arriving over the durable HTTP path flow
// through here too, so hosts see them regardless of which channel the
// customer used.
func (h *Hub) Broadcast(u models.LocationUpdate) {
	raw, err := json.Marshal(u)
	if err != nil {
		return
	}
	f := frame{Event: eventReceiveLocation, Data: raw}

	h.mu.RLock()
	subs := make([]*session, 0, len(h.rooms[u.BookingID]))
	for s := range h.rooms[u.BookingID] {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, s := range subs {
		if err := s.send(f); err != nil {
			h.logger.Warn("push failed, dropping subscriber", "booking_id", u.BookingID, "error", err)
			h.leaveAll(s)
		}
	}
}
