package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide sync traffic counter.
var Stats = &stats{}

type stats struct {
	MessagesSent      atomic.Int64 // frames written to a socket
	MessagesQueued    atomic.Int64 // sends deferred to the outbound queue
	MessagesRecv      atomic.Int64 // frames read from a socket
	BytesSent         atomic.Int64 // cumulative payload bytes written
	BytesRecv         atomic.Int64 // cumulative payload bytes read
	DecodeErrors      atomic.Int64 // inbound frames dropped as undecodable
	Reconnects        atomic.Int64 // reconnect loops that recovered
	ReconnectFailures atomic.Int64 // reconnect loops that exhausted their attempts
	PingsSent         atomic.Int64 // heartbeat pings written
}

func (s *stats) AddSent(n int) {
	s.MessagesSent.Add(1)
	s.BytesSent.Add(int64(n))
}

func (s *stats) AddRecv(n int) {
	s.MessagesRecv.Add(1)
	s.BytesRecv.Add(int64(n))
}

func (s *stats) AddQueued()           { s.MessagesQueued.Add(1) }
func (s *stats) AddDecodeError()      { s.DecodeErrors.Add(1) }
func (s *stats) AddReconnect()        { s.Reconnects.Add(1) }
func (s *stats) AddReconnectFailure() { s.ReconnectFailures.Add(1) }
func (s *stats) AddPing()             { s.PingsSent.Add(1) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs sync statistics
// every 10 seconds. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		var prevSent, prevRecv, prevMsgOut, prevMsgIn, prevQueued int64
		for {
			select {
			case <-ticker.C:
				sent := Stats.BytesSent.Load()
				recv := Stats.BytesRecv.Load()
				msgOut := Stats.MessagesSent.Load()
				msgIn := Stats.MessagesRecv.Load()
				queued := Stats.MessagesQueued.Load()

				outS := float64(sent-prevSent) / 10.0
				inS := float64(recv-prevRecv) / 10.0
				outM := msgOut - prevMsgOut
				inM := msgIn - prevMsgIn
				q := queued - prevQueued

				if outM > 0 || inM > 0 || q > 0 {
					pterm.DefaultLogger.Info(formatStats(inS, outS, inM, outM, q))
				}

				prevSent = sent
				prevRecv = recv
				prevMsgOut = msgOut
				prevMsgIn = msgIn
				prevQueued = queued

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(inS, outS float64, inM, outM, queued int64) string {
	return fmt.Sprintf("In: %s/s | Out: %s/s | Msg: %3d↓ %3d↑ | Queued: %3d",
		formatBytes(inS),
		formatBytes(outS),
		inM,
		outM,
		queued,
	)
}
