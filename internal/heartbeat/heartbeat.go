// Package heartbeat sends periodic pings on a connection while it is
// healthy.
package heartbeat

import (
	"context"
	"sync"
	"time"

	"github.com/1ureka/drawsync/internal/protocol"
	"github.com/1ureka/drawsync/internal/util"
)

// Pinger is the connection a Heartbeat pings.
type Pinger interface {
	IsHealthy() bool
	Send(msg string)
}

// Heartbeat owns at most one ticker at a time.
type Heartbeat struct {
	target   Pinger
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
}

func New(target Pinger, interval time.Duration) *Heartbeat {
	return &Heartbeat{target: target, interval: interval}
}

// Start begins ticking until Stop or ctx ends. Starting a running
// heartbeat only logs a warning.
func (h *Heartbeat) Start(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel != nil {
		util.LogWarning("heartbeat already running")
		return
	}
	if h.interval <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	go h.run(ctx)
}

// Stop cancels the ticker. It is a no-op when not running.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// Running reports whether a ticker is active.
func (h *Heartbeat) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancel != nil
}

func (h *Heartbeat) run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case t := <-ticker.C:
			// The ticking goroutine may outlive a Stop by one tick.
			if ctx.Err() != nil {
				return
			}
			if !h.target.IsHealthy() {
				continue
			}
			h.target.Send(protocol.EncodePing(t))
			util.Stats.AddPing()

		case <-ctx.Done():
			return
		}
	}
}
