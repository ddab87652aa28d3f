// The agent runs the customer-side tracking pipeline: it watches the
// booking list for an ongoing trip, then streams position samples to the
// backend over the realtime socket while foregrounded and through the
// durable HTTP channel in the background. SIGUSR1/SIGUSR2 simulate the
// platform backgrounding/foregrounding the app.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/trip-tracking/internal/apiclient"
	"github.com/example/trip-tracking/internal/config"
	"github.com/example/trip-tracking/internal/durable"
	"github.com/example/trip-tracking/internal/lifecycle"
	"github.com/example/trip-tracking/internal/logging"
	"github.com/example/trip-tracking/internal/monitor"
	"github.com/example/trip-tracking/internal/realtime"
	"github.com/example/trip-tracking/internal/sampler"
	"github.com/example/trip-tracking/internal/tracker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAgentConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := apiclient.New(cfg.APIURL, cfg.AuthToken)
	provider := sampler.NewSimProvider(envFloat("START_LAT", 12.9716), envFloat("START_LNG", 77.5946))
	perms := sampler.EnvPermissions{}

	// Process-wide realtime connection, established at startup and shared
	// by every push feature; torn down only at shutdown.
	channel := realtime.NewChannel(cfg.SocketURL(), realtime.Options{
		Attempts: cfg.ReconnectAttempts,
		Delay:    cfg.ReconnectDelay,
		DelayMax: cfg.ReconnectDelayMax,
	}, logger)
	channel.Connect()
	defer channel.Close()

	src := sampler.New(provider, perms, logger)
	registration := durable.NewRegistration(api, provider, perms, cfg.LocationInterval, logger)

	coord := tracker.NewCoordinator(src, channel, registration, sampler.Options{
		Interval: cfg.LocationInterval,
		Distance: cfg.LocationDistance,
	}, logger)
	channel.OnConnect(coord.OnRealtimeConnected)

	apps := lifecycle.NewNotifier()
	apps.Subscribe(coord.HandleAppState)
	go lifecycle.WatchSignals(ctx, apps, logger)

	mon := monitor.New(api, cfg.PollInterval, logger, coord.SetActiveTrip)
	mon.Start(ctx)
	defer mon.Stop()

	// Supervisory reconnect: the channel's own retry budget is bounded,
	// so while the app is foregrounded we keep re-arming it.
	go superviseConnection(ctx, channel, apps)

	go serveMetrics(cfg.MetricsAddr, logger)

	logger.Info("tracking agent running",
		"api_url", cfg.APIURL,
		"socket_url", cfg.SocketURL(),
		"interval", cfg.LocationInterval,
		"distance_m", cfg.LocationDistance,
	)

	<-ctx.Done()
	logger.Info("shutting down")
	coord.Stop()
}

func superviseConnection(ctx context.Context, channel *realtime.Channel, apps *lifecycle.Notifier) {
	tick := time.NewTicker(15 * time.Second)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if apps.State() == lifecycle.Foreground && channel.State() == realtime.Disconnected {
				channel.Connect()
			}
		}
	}
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", "error", err)
	}
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
