package models

import "time"

// BookingStatus is the lifecycle state of a rental booking. The tracking
// core only ever reads it; transitions belong to the booking subsystem.
type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusConfirmed BookingStatus = "confirmed"
	StatusOngoing   BookingStatus = "ongoing"
	StatusCompleted BookingStatus = "completed"
	StatusCancelled BookingStatus = "cancelled"
)

type Booking struct {
	ID         string        `json:"id"`
	CustomerID string        `json:"customer_id"`
	CarID      string        `json:"car_id"`
	Status     BookingStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Sample is a single position fix. Produced by the sampler, consumed
// exactly once by whichever channel is active, then discarded.
type Sample struct {
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Heading    float64   `json:"heading"` // degrees, 0 if unknown
	Speed      float64   `json:"speed"`   // m/s, 0 if unknown
	CapturedAt time.Time `json:"timestamp"`
}

// LocationUpdate is the wire shape shared by the realtime events
// (send_location / receive_location) and the durable ingest endpoint.
type LocationUpdate struct {
	BookingID string    `json:"bookingId"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Heading   float64   `json:"heading"`
	Speed     float64   `json:"speed"`
	Timestamp time.Time `json:"timestamp"`
}

// UpdateFromSample stamps a sample with its booking for transport.
func UpdateFromSample(bookingID string, s Sample) LocationUpdate {
	return LocationUpdate{
		BookingID: bookingID,
		Lat:       s.Lat,
		Lng:       s.Lng,
		Heading:   s.Heading,
		Speed:     s.Speed,
		Timestamp: s.CapturedAt,
	}
}
