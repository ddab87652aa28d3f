package positions

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/trip-tracking/internal/models"
)

// RedisStore keeps the latest sample per booking in a hash plus a GEO
// set, so ops tooling can query "where is every active rental" cheaply.
type RedisStore struct {
	client *redis.Client
	geoKey string
}

func NewRedisStore(addr, password, geoKey string) *RedisStore {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisStore{client: c, geoKey: geoKey}
}

// NewRedisStoreWithClient is used by the consumer, which owns its client.
func NewRedisStoreWithClient(client *redis.Client, geoKey string) *RedisStore {
	return &RedisStore{client: client, geoKey: geoKey}
}

func (r *RedisStore) Upsert(ctx context.Context, u models.LocationUpdate) error {
	// last-write-wins unless the stored sample is newer
	if ts, err := r.client.HGet(ctx, posKey(u.BookingID), "timestamp").Result(); err == nil {
		if cur, perr := time.Parse(time.RFC3339Nano, ts); perr == nil && cur.After(u.Timestamp) {
			return nil
		}
	}

	if _, err := r.client.GeoAdd(ctx, r.geoKey, &redis.GeoLocation{
		Longitude: u.Lng,
		Latitude:  u.Lat,
		Name:      u.BookingID,
	}).Result(); err != nil {
		return err
	}
	return r.client.HSet(ctx, posKey(u.BookingID), map[string]interface{}{
		"lat":       strconv.FormatFloat(u.Lat, 'f', -1, 64),
		"lng":       strconv.FormatFloat(u.Lng, 'f', -1, 64),
		"heading":   strconv.FormatFloat(u.Heading, 'f', -1, 64),
		"speed":     strconv.FormatFloat(u.Speed, 'f', -1, 64),
		"timestamp": u.Timestamp.Format(time.RFC3339Nano),
	}).Err()
}

func (r *RedisStore) Latest(ctx context.Context, bookingID string) (models.LocationUpdate, bool, error) {
	m, err := r.client.HGetAll(ctx, posKey(bookingID)).Result()
	if err != nil {
		return models.LocationUpdate{}, false, err
	}
	if len(m) == 0 {
		return models.LocationUpdate{}, false, nil
	}
	u := models.LocationUpdate{BookingID: bookingID}
	u.Lat, _ = strconv.ParseFloat(m["lat"], 64)
	u.Lng, _ = strconv.ParseFloat(m["lng"], 64)
	u.Heading, _ = strconv.ParseFloat(m["heading"], 64)
	u.Speed, _ = strconv.ParseFloat(m["speed"], 64)
	if ts, err := time.Parse(time.RFC3339Nano, m["timestamp"]); err == nil {
		u.Timestamp = ts
	}
	return u, true, nil
}

func posKey(bookingID string) string { return "booking:pos:" + bookingID }
