// Package transporttest provides an in-memory Dialer and Socket for tests
// of the layers above transport.
package transporttest

import (
	"context"
	"errors"
	"sync"

	"github.com/1ureka/drawsync/internal/transport"
)

// ErrDialFailed is what a socket from a failing Dialer reports.
var ErrDialFailed = errors.New("transporttest: dial failed")

// Dialer records every Dial call and hands out fake sockets.
type Dialer struct {
	// AutoOpen opens each new socket asynchronously.
	AutoOpen bool

	mu      sync.Mutex
	sockets []*Socket
	fails   int
}

// FailNext makes the next n dials fail asynchronously with ErrDialFailed.
func (d *Dialer) FailNext(n int) {
	d.mu.Lock()
	d.fails = n
	d.mu.Unlock()
}

// Dial implements transport.Dialer.
func (d *Dialer) Dial(_ context.Context, ev transport.Events) transport.Socket {
	s := &Socket{ev: ev, state: transport.StateConnecting}

	d.mu.Lock()
	d.sockets = append(d.sockets, s)
	fail := d.fails > 0
	if fail {
		d.fails--
	}
	autoOpen := d.AutoOpen
	d.mu.Unlock()

	switch {
	case fail:
		go s.Drop(ErrDialFailed)
	case autoOpen:
		go s.Open()
	}
	return s
}

// Dials returns how many sockets have been dialed.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sockets)
}

// Socket returns the i-th dialed socket, or nil.
func (d *Dialer) Socket(i int) *Socket {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.sockets) {
		return nil
	}
	return d.sockets[i]
}

// Last returns the most recently dialed socket, or nil.
func (d *Dialer) Last() *Socket {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sockets) == 0 {
		return nil
	}
	return d.sockets[len(d.sockets)-1]
}

// Socket is a scriptable transport.Socket. Tests drive its lifecycle with
// Open, Deliver and Drop; everything written through Send is kept.
type Socket struct {
	ev transport.Events

	mu      sync.Mutex
	state   transport.ReadyState
	sent    []string
	sendErr error
	closed  bool
}

// Open moves the socket to open and fires OnOpen.
func (s *Socket) Open() {
	s.mu.Lock()
	if s.state != transport.StateConnecting {
		s.mu.Unlock()
		return
	}
	s.state = transport.StateOpen
	s.mu.Unlock()

	s.ev.EmitOpen()
}

// Deliver fires OnMessage with a text frame.
func (s *Socket) Deliver(text string) {
	s.ev.EmitMessage(transport.Frame{Data: []byte(text)})
}

// DeliverBinary fires OnMessage with a binary frame.
func (s *Socket) DeliverBinary(data []byte) {
	s.ev.EmitMessage(transport.Frame{Data: data, Binary: true})
}

// Drop simulates an unrequested failure: OnError (when err is non-nil)
// followed by OnClose with code 1006.
func (s *Socket) Drop(err error) {
	if !s.markClosed() {
		return
	}
	if err != nil {
		s.ev.EmitError(err)
	}
	s.ev.EmitClose(transport.CloseInfo{Code: 1006})
}

// SetState overrides the reported ReadyState without firing events, which
// lets tests model a socket that died silently.
func (s *Socket) SetState(st transport.ReadyState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// FailSends makes every later Send return err.
func (s *Socket) FailSends(err error) {
	s.mu.Lock()
	s.sendErr = err
	s.mu.Unlock()
}

// Sent returns a copy of every frame written so far.
func (s *Socket) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

// Closed reports whether OnClose has fired.
func (s *Socket) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Send implements transport.Socket.
func (s *Socket) Send(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != transport.StateOpen {
		return transport.ErrNotOpen
	}
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, text)
	return nil
}

// ReadyState implements transport.Socket.
func (s *Socket) ReadyState() transport.ReadyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close implements transport.Socket. OnClose fires synchronously with
// Requested set.
func (s *Socket) Close() error {
	if !s.markClosed() {
		return nil
	}
	s.ev.EmitClose(transport.CloseInfo{Code: 1000, Requested: true})
	return nil
}

func (s *Socket) markClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	s.state = transport.StateClosed
	return true
}
