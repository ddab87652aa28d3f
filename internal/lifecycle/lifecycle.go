// Package lifecycle tracks whether the process is "foregrounded". On the
// mobile shells this follows the OS app-state events; the headless agent
// drives it from signals (SIGUSR1 backgrounds, SIGUSR2 foregrounds).
package lifecycle

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

type State int

const (
	Foreground State = iota
	Background
)

func (s State) String() string {
	if s == Background {
		return "background"
	}
	return "foreground"
}

// Notifier fans application-state transitions out to subscribers.
// Subscribers are invoked synchronously on the goroutine calling Set.
type Notifier struct {
	mu    sync.Mutex
	state State
	subs  []func(State)
}

func NewNotifier() *Notifier {
	return &Notifier{state: Foreground}
}

func (n *Notifier) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Subscribe registers a transition handler. No replay of the current
// state; callers read State() at subscription time if they need it.
func (n *Notifier) Subscribe(fn func(State)) {
	n.mu.Lock()
	n.subs = append(n.subs, fn)
	n.mu.Unlock()
}

// Set transitions the app state, notifying subscribers on change only.
func (n *Notifier) Set(s State) {
	n.mu.Lock()
	if n.state == s {
		n.mu.Unlock()
		return
	}
	n.state = s
	subs := append([]func(State){}, n.subs...)
	n.mu.Unlock()
	for _, fn := range subs {
		fn(s)
	}
}

// WatchSignals maps SIGUSR1/SIGUSR2 onto background/foreground until ctx
// is done. It blocks, so run it on its own goroutine.
func WatchSignals(ctx context.Context, n *Notifier, logger *slog.Logger) {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-ch:
			switch sig {
			case syscall.SIGUSR1:
				logger.Info("app state change", "state", "background")
				n.Set(Background)
			case syscall.SIGUSR2:
				logger.Info("app state change", "state", "foreground")
				n.Set(Foreground)
			}
		}
	}
}
