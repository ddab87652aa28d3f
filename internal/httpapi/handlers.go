package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/trip-tracking/internal/hub"
	"github.com/example/trip-tracking/internal/ingest"
	"github.com/example/trip-tracking/internal/models"
	"github.com/example/trip-tracking/internal/positions"
	"github.com/example/trip-tracking/internal/storage"
)

// Server is the tracking backend: the booking-list API the monitor
// polls, the durable ingest endpoint, the websocket hub, and the
// latest-position read used by host displays.
type Server struct {
	Store     storage.BookingStore
	Positions positions.Store
	Kafka     *ingest.KafkaProducer // optional
	Hub       *hub.Hub

	logger *slog.Logger
	mux    *mux.Router
}

func NewServer(store storage.BookingStore, pos positions.Store, kafka *ingest.KafkaProducer, h *hub.Hub, logger *slog.Logger) *Server {
	s := &Server{
		Store:     store,
		Positions: pos,
		Kafka:     kafka,
		Hub:       h,
		logger:    logger,
		mux:       mux.NewRouter(),
	}
	// every accepted socket sample goes through the same sink as the
	// HTTP path, so storage and stream consumers see both channels
	h.SetLocationHandler(s.acceptLocation)
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/bookings/mine", s.handleListMine).Methods("GET")
	s.mux.HandleFunc("/api/bookings", s.handleCreateBooking).Methods("POST")
	s.mux.HandleFunc("/api/bookings/{id}/status", s.handleUpdateStatus).Methods("PATCH")
	s.mux.HandleFunc("/api/bookings/{id}/location", s.handleIngestLocation).Methods("POST")
	s.mux.HandleFunc("/api/bookings/{id}/location", s.handleLatestLocation).Methods("GET")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// Auth is terminated upstream; the bearer subject arrives as the
// customer id for scoping the booking list.
func customerID(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.Header.Get("X-Customer-ID")
}

func (s *Server) handleListMine(w http.ResponseWriter, r *http.Request) {
	bookings, err := s.Store.ListByCustomer(r.Context(), customerID(r))
	if err != nil {
		http.Error(w, "list failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"data": map[string]any{"items": bookings}})
}

func (s *Server) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var b models.Booking
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CustomerID == "" {
		b.CustomerID = customerID(r)
	}
	if b.Status == "" {
		b.Status = models.StatusPending
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now
	if err := s.Store.Create(r.Context(), &b); err != nil {
		http.Error(w, "create failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(b)
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body struct {
		Status models.BookingStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	switch body.Status {
	case models.StatusPending, models.StatusConfirmed, models.StatusOngoing, models.StatusCompleted, models.StatusCancelled:
	default:
		http.Error(w, "unknown status", http.StatusBadRequest)
		return
	}
	if err := s.Store.UpdateStatus(r.Context(), id, body.Status); err != nil {
		if err == storage.ErrNotFound {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "update failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleIngestLocation is the durable channel's target: one sample per
// request, fire-and-forget from the client's perspective.
func (s *Server) handleIngestLocation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var sample models.Sample
	if err := json.NewDecoder(r.Body).Decode(&sample); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if sample.CapturedAt.IsZero() {
		sample.CapturedAt = time.Now().UTC()
	}
	u := models.UpdateFromSample(id, sample)
	s.acceptLocation(u)
	s.Hub.Broadcast(u)
	w.WriteHeader(http.StatusNoContent)
}

// acceptLocation is the shared sink for both channels: persist the
// latest position and publish to the stream if configured. Failures are
// logged and swallowed; the next sample supersedes.
func (s *Server) acceptLocation(u models.LocationUpdate) {
	if err := s.Positions.Upsert(context.Background(), u); err != nil {
		s.logger.Warn("position upsert failed", "booking_id", u.BookingID, "error", err)
	}
	if s.Kafka != nil {
		if err := s.Kafka.PublishLocation(u); err != nil {
			s.logger.Warn("kafka publish failed", "booking_id", u.BookingID, "error", err)
		}
	}
}

func (s *Server) handleLatestLocation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	u, ok, err := s.Positions.Latest(r.Context(), id)
	if err != nil {
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "no position", http.StatusNotFound)
		return
	}
	writeJSON(w, u)
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	go s.Hub.HandleConn(conn)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
