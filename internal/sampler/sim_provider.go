package sampler

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// SimProvider is a random-walk position source for local runs and demos:
// it drifts from a start coordinate at roughly city driving speed,
// reporting heading and speed derived from the walk.
type SimProvider struct {
	mu      sync.Mutex
	lat     float64
	lng     float64
	bearing float64 // radians
	speed   float64 // m/s
	last    time.Time
	rng     *rand.Rand
}

func NewSimProvider(lat, lng float64) *SimProvider {
	return &SimProvider{
		lat:     lat,
		lng:     lng,
		bearing: rand.Float64() * 2 * math.Pi,
		speed:   10,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (p *SimProvider) Current(ctx context.Context) (Fix, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	dt := 1.0
	if !p.last.IsZero() {
		dt = now.Sub(p.last).Seconds()
	}
	p.last = now

	// drift the bearing a little and jitter speed around ~10 m/s
	p.bearing += (p.rng.Float64() - 0.5) * 0.4
	p.speed = math.Max(0, p.speed+(p.rng.Float64()-0.5)*2)

	dist := p.speed * dt
	const metersPerDegLat = 111320.0
	p.lat += dist * math.Cos(p.bearing) / metersPerDegLat
	p.lng += dist * math.Sin(p.bearing) / (metersPerDegLat * math.Cos(p.lat*math.Pi/180))

	headingDeg := math.Mod(p.bearing*180/math.Pi+360, 360)
	return Fix{Lat: p.lat, Lng: p.lng, Heading: headingDeg, Speed: p.speed}, nil
}
