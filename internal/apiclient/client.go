package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/example/trip-tracking/internal/models"
)

// Client is the thin HTTP wrapper over the booking API: the booking
// list used for active-trip discovery and the per-booking location
// ingest endpoint used by the durable channel.
type Client struct {
	base  string
	token string
	httpc *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		base:  strings.TrimRight(baseURL, "/"),
		token: token,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

// ListMine fetches the caller's bookings. The backend has shipped three
// response shapes over time ({data:{items:[...]}}, {data:[...]}, and a
// bare array); all three are accepted.
func (c *Client) ListMine(ctx context.Context) ([]models.Booking, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/bookings/mine", nil)
	if err != nil {
		return nil, err
	}
	c.auth(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bookings/mine: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return decodeBookings(body)
}

func decodeBookings(body []byte) ([]models.Booking, error) {
	var bare []models.Booking
	if err := json.Unmarshal(body, &bare); err == nil {
		return bare, nil
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("bookings/mine: undecodable response: %w", err)
	}
	var list []models.Booking
	if err := json.Unmarshal(envelope.Data, &list); err == nil {
		return list, nil
	}
	var items struct {
		Items []models.Booking `json:"items"`
	}
	if err := json.Unmarshal(envelope.Data, &items); err != nil {
		return nil, fmt.Errorf("bookings/mine: undecodable response: %w", err)
	}
	return items.Items, nil
}

// SendPosition posts one sample to the per-booking ingest endpoint.
// Fire-and-forget from the caller's perspective: failures are returned
// for logging, but there is no retry queue. The next tick supersedes a
// lost sample.
func (c *Client) SendPosition(ctx context.Context, bookingID string, s models.Sample) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/bookings/%s/location", c.base, bookingID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.auth(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("location ingest: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) auth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
