// Package transport defines the socket primitive the connection layer runs
// on, and a WebSocket implementation of it.
//
// A Socket mirrors a browser WebSocket: it is created already dialing,
// reports a live ReadyState, and announces its lifecycle through the Events
// it was created with.
package transport

import (
	"context"
	"errors"
)

// ReadyState is the socket's live status.
type ReadyState int32

const (
	StateConnecting ReadyState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s ReadyState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrNotOpen is returned by Send when the socket is not open.
var ErrNotOpen = errors.New("transport: socket not open")

// Frame is one inbound message. Binary reports whether it arrived as a
// binary frame; Data holds the payload either way.
type Frame struct {
	Data   []byte
	Binary bool
}

// CloseInfo describes why a socket closed. Requested is true when the
// close was initiated locally via Close.
type CloseInfo struct {
	Code      int
	Reason    string
	Requested bool
}

// Events are the lifecycle callbacks of one socket. A socket invokes
// OnOpen at most once, and OnClose exactly once after it leaves Connecting
// or Open. OnError, when reported, precedes OnClose. Nil callbacks are
// skipped.
type Events struct {
	OnOpen    func()
	OnMessage func(Frame)
	OnError   func(error)
	OnClose   func(CloseInfo)
}

// EmitOpen invokes OnOpen if set.
func (e Events) EmitOpen() {
	if e.OnOpen != nil {
		e.OnOpen()
	}
}

// EmitMessage invokes OnMessage if set.
func (e Events) EmitMessage(f Frame) {
	if e.OnMessage != nil {
		e.OnMessage(f)
	}
}

// EmitError invokes OnError if set.
func (e Events) EmitError(err error) {
	if e.OnError != nil {
		e.OnError(err)
	}
}

// EmitClose invokes OnClose if set.
func (e Events) EmitClose(info CloseInfo) {
	if e.OnClose != nil {
		e.OnClose(info)
	}
}

// Socket is one underlying bidirectional channel.
type Socket interface {
	// Send transmits a text frame.
	Send(text string) error

	// ReadyState reports the live status of the socket.
	ReadyState() ReadyState

	// Close starts a graceful close. OnClose follows with Requested set.
	Close() error
}

// Dialer opens sockets. Dial must return immediately with a socket in
// StateConnecting and must never invoke ev from within Dial itself; the
// outcome is reported later through ev.
type Dialer interface {
	Dial(ctx context.Context, ev Events) Socket
}
