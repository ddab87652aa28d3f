package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/trip-tracking/internal/models"
	"github.com/example/trip-tracking/internal/observability"
)

// Wire events. The protocol is topic-free: one duplex connection carries
// every event type and rooms are joined by booking id.
const (
	EventJoinTracking    = "join_tracking"
	EventSendLocation    = "send_location"
	EventReceiveLocation = "receive_location"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// State of the process-wide connection.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

// Options bound the reconnect policy. After Attempts consecutive dial
// failures the channel reports a terminal error and goes Disconnected;
// an outer supervisor decides whether to call Connect again.
type Options struct {
	Attempts    int
	Delay       time.Duration
	DelayMax    time.Duration
	DialTimeout time.Duration
}

func (o *Options) fill() {
	if o.Attempts <= 0 {
		o.Attempts = 10
	}
	if o.Delay <= 0 {
		o.Delay = time.Second
	}
	if o.DelayMax <= 0 {
		o.DelayMax = 5 * time.Second
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 20 * time.Second
	}
}

// Channel is the process-wide realtime connection. It is established at
// startup, shared by every feature needing push delivery, and survives
// for the life of the process. It never rejoins rooms on its own after a
// reconnect; callers restore their subscriptions from the OnConnect hook.
type Channel struct {
	url    string
	opts   Options
	logger *slog.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	state      State
	closed     bool
	onConnect  []func()
	onLocation []func(models.LocationUpdate)

	writeMu sync.Mutex
}

func NewChannel(url string, opts Options, logger *slog.Logger) *Channel {
	opts.fill()
	return &Channel{url: url, opts: opts, logger: logger}
}

// Connect starts dialing in the background. It is idempotent: calling it
// while connected or already dialing is a no-op.
func (c *Channel) Connect() {
	c.mu.Lock()
	if c.closed || c.state != Disconnected {
		c.mu.Unlock()
		return
	}
	c.state = Connecting
	c.mu.Unlock()

	go c.dialLoop()
}

func (c *Channel) dialLoop() {
	delay := c.opts.Delay
	for attempt := 1; attempt <= c.opts.Attempts; attempt++ {
		c.mu.Lock()
		if c.closed {
			c.state = Disconnected
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		dialer := websocket.Dialer{HandshakeTimeout: c.opts.DialTimeout}
		conn, _, err := dialer.Dial(c.url, nil)
		if err == nil {
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				_ = conn.Close()
				return
			}
			c.conn = conn
			c.state = Connected
			hooks := append([]func(){}, c.onConnect...)
			c.mu.Unlock()

			observability.Reconnects.Inc()
			c.logger.Info("socket connected", "url", c.url)
			for _, fn := range hooks {
				fn()
			}
			go c.readLoop(conn)
			return
		}

		c.logger.Warn("socket connect failed", "attempt", attempt, "error", err)
		time.Sleep(delay)
		delay *= 2
		if delay > c.opts.DelayMax {
			delay = c.opts.DelayMax
		}
	}

	// Attempt budget exhausted. Terminal for this dial cycle only; the
	// supervisor may call Connect again.
	c.logger.Error("socket reconnection failed after max attempts", "attempts", c.opts.Attempts)
	c.mu.Lock()
	c.state = Disconnected
	c.mu.Unlock()
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			c.mu.Lock()
			closed := c.closed
			if c.conn == conn {
				c.conn = nil
				c.state = Disconnected
			}
			c.mu.Unlock()
			_ = conn.Close()
			if closed {
				return
			}
			c.logger.Warn("socket disconnected", "error", err)
			// automatic reconnect with the same bounded policy
			c.Connect()
			return
		}
		c.dispatch(f)
	}
}

func (c *Channel) dispatch(f frame) {
	switch f.Event {
	case EventReceiveLocation:
		var u models.LocationUpdate
		if err := json.Unmarshal(f.Data, &u); err != nil {
			c.logger.Warn("bad receive_location payload", "error", err)
			return
		}
		c.mu.Lock()
		handlers := append([]func(models.LocationUpdate){}, c.onLocation...)
		c.mu.Unlock()
		for _, fn := range handlers {
			fn(u)
		}
	default:
		// unknown events are ignored; other features share this connection
	}
}

// OnConnect registers a hook invoked after every successful (re)connect.
// Subscription restoration lives here, not in the channel.
func (c *Channel) OnConnect(fn func()) {
	c.mu.Lock()
	c.onConnect = append(c.onConnect, fn)
	c.mu.Unlock()
}

// OnLocation registers a handler for receive_location pushes. Used by
// host-side consumers after joining a tracking room.
func (c *Channel) OnLocation(fn func(models.LocationUpdate)) {
	c.mu.Lock()
	c.onLocation = append(c.onLocation, fn)
	c.mu.Unlock()
}

func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Connected
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SendPosition emits a send_location event. It reports false instead of
// erroring when the channel is down: samples sent while disconnected are
// dropped, the durable channel covers that gap.
func (c *Channel) SendPosition(u models.LocationUpdate) bool {
	if !c.send(EventSendLocation, u) {
		observability.RealtimeDrops.Inc()
		return false
	}
	observability.RealtimeSends.Inc()
	return true
}

// Join subscribes this connection to a booking's tracking room.
func (c *Channel) Join(bookingID string) bool {
	return c.send(EventJoinTracking, bookingID)
}

func (c *Channel) send(event string, data any) bool {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == Connected
	c.mu.Unlock()
	if !connected || conn == nil {
		return false
	}

	raw, err := json.Marshal(data)
	if err != nil {
		c.logger.Warn("marshal failed", "event", event, "error", err)
		return false
	}

	c.writeMu.Lock()
	err = conn.WriteJSON(frame{Event: event, Data: raw})
	c.writeMu.Unlock()
	if err != nil {
		c.logger.Warn("socket write failed", "event", event, "error", err)
		return false
	}
	return true
}

// Close tears the connection down for good, at process shutdown.
func (c *Channel) Close() {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.state = Disconnected
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}
