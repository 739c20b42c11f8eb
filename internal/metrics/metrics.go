// Package metrics exposes the process-wide sync counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/1ureka/drawsync/internal/util"
)

const namespace = "drawsync"

// counters maps each exported counter onto its util.Stats field.
var counters = []struct {
	name string
	help string
	src  *atomic.Int64
}{
	{"messages_sent_total", "Frames written to a socket.", &util.Stats.MessagesSent},
	{"messages_queued_total", "Sends deferred to the outbound queue.", &util.Stats.MessagesQueued},
	{"messages_received_total", "Frames read from a socket.", &util.Stats.MessagesRecv},
	{"bytes_sent_total", "Payload bytes written.", &util.Stats.BytesSent},
	{"bytes_received_total", "Payload bytes read.", &util.Stats.BytesRecv},
	{"decode_errors_total", "Inbound messages dropped as undecodable.", &util.Stats.DecodeErrors},
	{"reconnects_total", "Reconnect loops that recovered.", &util.Stats.Reconnects},
	{"reconnect_failures_total", "Reconnect loops that exhausted their attempts.", &util.Stats.ReconnectFailures},
	{"pings_sent_total", "Heartbeat pings written.", &util.Stats.PingsSent},
}

// Register adds every sync counter to reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range counters {
		src := c.src
		fn := prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      c.name,
			Help:      c.help,
		}, func() float64 { return float64(src.Load()) })

		if err := reg.Register(fn); err != nil {
			return fmt.Errorf("failed to register %s_%s: %w", namespace, c.name, err)
		}
	}
	return nil
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return mux
}

// Serve listens on addr and serves /metrics until ctx ends. It returns
// once the listener is bound; serve errors are logged.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           Handler(g),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.LogError("metrics server error: %v", err)
		}
	}()

	util.LogInfo("metrics available at http://%s/metrics", ln.Addr())
	return ln.Addr(), nil
}
