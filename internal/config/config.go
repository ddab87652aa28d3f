package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// AgentConfig captures all tunable parameters for the tracking agent.
// Values are primarily loaded from environment variables with sane defaults
// so the binary can run locally without excessive setup.
type AgentConfig struct {
	APIURL    string // base URL of the booking/ingest API, e.g. http://host:5000/api
	AuthToken string

	LocationInterval time.Duration // minimum time between samples
	LocationDistance float64       // minimum displacement between samples, meters

	PollInterval time.Duration // active-trip monitor cadence

	ReconnectAttempts int
	ReconnectDelay    time.Duration
	ReconnectDelayMax time.Duration

	MetricsAddr string
	LogLevel    string
}

func defaultAgentConfig() AgentConfig {
	return AgentConfig{
		APIURL:            "http://localhost:5000/api",
		LocationInterval:  10 * time.Second,
		LocationDistance:  20,
		PollInterval:      30 * time.Second,
		ReconnectAttempts: 10,
		ReconnectDelay:    time.Second,
		ReconnectDelayMax: 5 * time.Second,
		MetricsAddr:       ":2113",
		LogLevel:          "info",
	}
}

func LoadAgentConfig() (AgentConfig, error) {
	cfg := defaultAgentConfig()
	var errs []error

	setStringFromEnv(&cfg.APIURL, "API_URL")
	cfg.AuthToken = os.Getenv("AUTH_TOKEN")

	setMillisFromEnv(&cfg.LocationInterval, "LOCATION_INTERVAL_MS", &errs)
	setFloatFromEnv(&cfg.LocationDistance, "LOCATION_DISTANCE_M", &errs)
	setDurationFromEnv(&cfg.PollInterval, "BOOKING_POLL_INTERVAL", &errs)
	setIntFromEnv(&cfg.ReconnectAttempts, "SOCKET_RECONNECT_ATTEMPTS", &errs)
	setDurationFromEnv(&cfg.ReconnectDelay, "SOCKET_RECONNECT_DELAY", &errs)
	setDurationFromEnv(&cfg.ReconnectDelayMax, "SOCKET_RECONNECT_DELAY_MAX", &errs)
	setStringFromEnv(&cfg.MetricsAddr, "METRICS_ADDR")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if cfg.LocationInterval < time.Second {
		errs = append(errs, fmt.Errorf("LOCATION_INTERVAL_MS must be >= 1000"))
	}
	if cfg.LocationDistance < 0 {
		errs = append(errs, fmt.Errorf("LOCATION_DISTANCE_M must be >= 0"))
	}
	if cfg.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("BOOKING_POLL_INTERVAL must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

// SocketURL derives the websocket endpoint from the configured API URL by
// stripping the API path suffix: http://host:5000/api -> ws://host:5000/ws.
func (c AgentConfig) SocketURL() string {
	u, err := url.Parse(c.APIURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	u.RawQuery = ""
	return u.String()
}

// ServerConfig captures tunables for the tracking API/hub process.
type ServerConfig struct {
	HTTPAddr string
	// Only header-read and idle timeouts: a whole-request read or write
	// timeout would sever the long-lived websocket hub connections.
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration

	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string

	KafkaBrokers []string
	KafkaTopic   string

	PGDSN string

	LogLevel string
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:          ":5000",
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		ShutdownTimeout:   15 * time.Second,
		RedisGeoKey:     "bookings_geo",
		KafkaTopic:      "booking-locations",
		LogLevel:        "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadHeaderTimeout, "HTTP_READ_HEADER_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisGeoKey, "REDIS_GEO_KEY")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	cfg.PGDSN = os.Getenv("PG_DSN")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

// setMillisFromEnv parses an integer millisecond value, matching the
// LOCATION_INTERVAL_MS convention the mobile clients already use.
func setMillisFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = time.Duration(ms) * time.Millisecond
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
