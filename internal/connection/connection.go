// Package connection owns one logical sync connection: a transport socket
// that can be redialed, an outbound queue that survives drops, and ordered
// subscription lists for every lifecycle event.
//
// Socket events are handled on whatever goroutine the transport delivers
// them. Hooks never run while the connection's lock is held, so a hook may
// call back into the Connection freely.
package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/1ureka/drawsync/internal/transport"
	"github.com/1ureka/drawsync/internal/util"
)

var (
	// ErrClosed is reported to a pending dial when Close interrupts it.
	ErrClosed = errors.New("connection: closed")

	// ErrUnhealthy is reported through OnError when a send finds the
	// connection marked connected but its socket no longer open.
	ErrUnhealthy = errors.New("connection: transport no longer open")
)

// Connection is a redialable socket bound to one session id.
type Connection struct {
	id     string
	dialer transport.Dialer

	mu          sync.Mutex
	sock        transport.Socket
	cancelSock  context.CancelFunc
	gen         uint64 // events from sockets of older generations are ignored
	state       State
	connected   bool
	closed      bool
	lastErr     error
	lastHealthy time.Time
	pending     queue
	attempt     *attempt

	openHooks    hookList[func()]
	messageHooks hookList[func(string)]
	errorHooks   hookList[func(error)]
	closeHooks   hookList[func(transport.CloseInfo)]
	stateHooks   hookList[func(from, to State)]
}

// attempt is one in-flight dial. done is closed once the outcome is known.
type attempt struct {
	done    chan struct{}
	err     error
	waiters []func()
}

func (a *attempt) finish(err error) {
	a.err = err
	close(a.done)
}

// New returns a disconnected Connection for id. Nothing is dialed until
// Connect or Dial.
func New(id string, dialer transport.Dialer) *Connection {
	return &Connection{
		id:          id,
		dialer:      dialer,
		lastHealthy: time.Now(),
	}
}

func (c *Connection) ID() string { return c.id }

// ──────────────────────────────────────────────────────────────────────────────
// Subscriptions
// ──────────────────────────────────────────────────────────────────────────────

// OnOpen registers fn to run each time a socket opens, after the queue has
// been flushed. The returned func unregisters it.
func (c *Connection) OnOpen(fn func()) func() { return c.openHooks.add(fn) }

// OnMessage registers fn for every inbound frame, delivered as text.
func (c *Connection) OnMessage(fn func(string)) func() { return c.messageHooks.add(fn) }

// OnError registers fn for socket errors and failed sends.
func (c *Connection) OnError(fn func(error)) func() { return c.errorHooks.add(fn) }

// OnClose registers fn for socket closes. CloseInfo.Requested is set when
// the close came from Close.
func (c *Connection) OnClose(fn func(transport.CloseInfo)) func() { return c.closeHooks.add(fn) }

// OnStateChange registers fn for every State transition.
func (c *Connection) OnStateChange(fn func(from, to State)) func() { return c.stateHooks.add(fn) }

// ──────────────────────────────────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────────────────────────────────

// Connect opens the transport unless it is already healthy. When a dial is
// already in flight no second socket is created; onReady, if non-nil, is
// attached to that attempt instead. onReady runs once, after the OnOpen
// hooks, and is dropped if the attempt fails.
func (c *Connection) Connect(onReady func()) {
	c.connect(onReady)
}

// Dial is Connect followed by waiting for the attempt's outcome. When ctx
// ends first the attempt is abandoned.
func (c *Connection) Dial(ctx context.Context) error {
	a := c.connect(nil)
	if a == nil {
		return nil
	}

	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		c.abort(a, fmt.Errorf("dial %s: %w", c.id, ctx.Err()))
		<-a.done
		return a.err
	}
}

// connect returns the attempt the caller should wait on, or nil when the
// connection is already healthy.
func (c *Connection) connect(onReady func()) *attempt {
	c.mu.Lock()
	if c.healthyLocked() {
		c.mu.Unlock()
		return nil
	}
	if a := c.attempt; a != nil {
		if onReady != nil {
			a.waiters = append(a.waiters, onReady)
		}
		c.mu.Unlock()
		return a
	}

	stale := c.abandonLocked()
	c.closed = false
	c.connected = false

	var trs []transition
	if c.state != Reconnecting {
		trs = c.setStateLocked(Connecting, trs)
	}

	a := &attempt{done: make(chan struct{})}
	if onReady != nil {
		a.waiters = []func(){onReady}
	}
	c.attempt = a

	// Dial never emits synchronously, so holding the lock here only makes
	// early events wait until c.sock is assigned.
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelSock = cancel
	c.sock = c.dialer.Dial(ctx, c.events(c.gen))
	c.mu.Unlock()

	if stale != nil {
		stale.Close()
	}
	c.emit(trs)
	return a
}

// abort gives up on attempt a if it is still the pending one.
func (c *Connection) abort(a *attempt, err error) {
	c.mu.Lock()
	if c.attempt != a {
		c.mu.Unlock()
		return
	}
	sock := c.abandonLocked()
	c.attempt = nil
	a.finish(err)
	trs := c.dropLocked(nil)
	c.mu.Unlock()

	if sock != nil {
		sock.Close()
	}
	c.emit(trs)
}

// Close closes the current socket and marks the connection idle. Queued
// messages are kept. A later Connect reopens it.
func (c *Connection) Close() error {
	c.mu.Lock()
	c.closed = true
	c.connected = false
	sock := c.sock
	trs := c.setStateLocked(Disconnected, nil)
	c.mu.Unlock()

	c.emit(trs)
	if sock == nil {
		return nil
	}
	return sock.Close()
}

// BeginReconnect moves an unhealthy connection to Reconnecting. Dials made
// while reconnecting keep that state until a socket opens.
func (c *Connection) BeginReconnect() {
	c.mu.Lock()
	if c.healthyLocked() && c.connected {
		c.mu.Unlock()
		return
	}
	trs := c.setStateLocked(Reconnecting, nil)
	c.mu.Unlock()
	c.emit(trs)
}

// Fail moves the connection to the terminal Failed state.
func (c *Connection) Fail(err error) {
	c.mu.Lock()
	c.connected = false
	c.lastErr = err
	trs := c.setStateLocked(Failed, nil)
	c.mu.Unlock()
	c.emit(trs)
}

// ──────────────────────────────────────────────────────────────────────────────
// Sending
// ──────────────────────────────────────────────────────────────────────────────

// Send transmits msg when the connection is healthy and connected, and
// queues it otherwise. It never reports an error to the caller: a failed
// write requeues msg, abandons the socket and is surfaced through OnError.
func (c *Connection) Send(msg string) {
	c.mu.Lock()

	var trs []transition
	var sendErr error
	var stale transport.Socket

	if c.connected && !c.healthyLocked() {
		trs = c.dropLocked(trs)
		sendErr = ErrUnhealthy
	}

	if c.connected {
		err := c.sock.Send(msg)
		if err == nil {
			c.mu.Unlock()
			util.Stats.AddSent(len(msg))
			return
		}
		stale = c.abandonLocked()
		trs = c.dropLocked(trs)
		sendErr = fmt.Errorf("failed to send on %s: %w", c.id, err)
	}

	c.pending.push(msg)
	c.mu.Unlock()
	util.Stats.AddQueued()

	if stale != nil {
		stale.Close()
	}
	c.emit(trs)
	if sendErr != nil {
		c.reportError(sendErr)
	}
}

// flushLocked drains the queue in order. On failure the unsent remainder
// stays queued.
func (c *Connection) flushLocked() error {
	n := 0
	for c.pending.len() > 0 {
		msg := c.pending.peek()
		if err := c.sock.Send(msg); err != nil {
			return fmt.Errorf("failed to flush queued message on %s: %w", c.id, err)
		}
		c.pending.pop()
		util.Stats.AddSent(len(msg))
		n++
	}
	if n > 0 {
		util.LogDebug("[%s] flushed %d queued message(s)", c.id, n)
	}
	return nil
}

// Pending returns the number of queued messages.
func (c *Connection) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.len()
}

// PendingMessages returns a copy of the queue.
func (c *Connection) PendingMessages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.snapshot()
}

// TakePending empties the queue and returns what it held.
func (c *Connection) TakePending() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.drain()
}

// Adopt puts msgs ahead of anything already queued, flushing at once when
// the connection is live.
func (c *Connection) Adopt(msgs []string) {
	if len(msgs) == 0 {
		return
	}

	c.mu.Lock()
	c.pending.prepend(msgs)
	if !c.connected || !c.healthyLocked() {
		c.mu.Unlock()
		return
	}

	err := c.flushLocked()
	if err == nil {
		c.mu.Unlock()
		return
	}
	stale := c.abandonLocked()
	trs := c.dropLocked(nil)
	c.mu.Unlock()

	if stale != nil {
		stale.Close()
	}
	c.emit(trs)
	c.reportError(err)
}

// ──────────────────────────────────────────────────────────────────────────────
// Status
// ──────────────────────────────────────────────────────────────────────────────

// IsHealthy reports whether the current socket is open. It queries the
// socket every time.
func (c *Connection) IsHealthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.healthyLocked()
}

func (c *Connection) healthyLocked() bool {
	return c.sock != nil && c.sock.ReadyState() == transport.StateOpen
}

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the most recent error the connection saw, if any.
func (c *Connection) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// LastHealthy returns the current time while healthy, otherwise the time
// the connection last stopped being connected (or was created).
func (c *Connection) LastHealthy() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.healthyLocked() {
		return time.Now()
	}
	return c.lastHealthy
}

// Retired reports whether the connection was closed on purpose or has
// failed, with no dial in flight. A registry replaces retired entries.
func (c *Connection) Retired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt == nil && (c.closed || c.state == Failed)
}

// ──────────────────────────────────────────────────────────────────────────────
// Socket events
// ──────────────────────────────────────────────────────────────────────────────

func (c *Connection) events(gen uint64) transport.Events {
	return transport.Events{
		OnOpen:    func() { c.handleOpen(gen) },
		OnMessage: func(f transport.Frame) { c.handleMessage(gen, f) },
		OnError:   func(err error) { c.handleError(gen, err) },
		OnClose:   func(info transport.CloseInfo) { c.handleClose(gen, info) },
	}
}

func (c *Connection) handleOpen(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}

	if err := c.flushLocked(); err != nil {
		stale := c.abandonLocked()
		trs := c.dropLocked(nil)
		if a := c.attempt; a != nil {
			c.attempt = nil
			a.finish(err)
		}
		c.mu.Unlock()

		if stale != nil {
			stale.Close()
		}
		c.emit(trs)
		c.reportError(err)
		return
	}

	c.connected = true
	trs := c.setStateLocked(Connected, nil)

	var waiters []func()
	if a := c.attempt; a != nil {
		c.attempt = nil
		waiters = a.waiters
		a.finish(nil)
	}
	c.mu.Unlock()

	c.emit(trs)
	c.openHooks.each("open", func(fn func()) { fn() })
	for _, fn := range waiters {
		invoke("ready", fn, func(fn func()) { fn() })
	}
}

// handleMessage delivers text and binary frames alike as text.
func (c *Connection) handleMessage(gen uint64, f transport.Frame) {
	c.mu.Lock()
	stale := gen != c.gen
	c.mu.Unlock()
	if stale {
		return
	}

	util.Stats.AddRecv(len(f.Data))
	text := string(f.Data)
	c.messageHooks.each("message", func(fn func(string)) { fn(text) })
}

func (c *Connection) handleError(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	trs := c.dropLocked(nil)
	c.mu.Unlock()

	c.emit(trs)
	c.reportError(err)
}

func (c *Connection) handleClose(gen uint64, info transport.CloseInfo) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	trs := c.dropLocked(nil)
	if c.cancelSock != nil {
		c.cancelSock()
		c.cancelSock = nil
	}
	if a := c.attempt; a != nil {
		c.attempt = nil
		if info.Requested {
			a.finish(ErrClosed)
		} else {
			a.finish(fmt.Errorf("%s closed before open (code %d)", c.id, info.Code))
		}
	}
	c.mu.Unlock()

	if info.Requested {
		util.LogDebug("[%s] socket closed", c.id)
	} else {
		util.LogWarning("[%s] socket closed (code %d): %s", c.id, info.Code, info.Reason)
	}

	c.emit(trs)
	c.closeHooks.each("close", func(fn func(transport.CloseInfo)) { fn(info) })
}

// ──────────────────────────────────────────────────────────────────────────────
// Helpers (callers hold c.mu unless noted)
// ──────────────────────────────────────────────────────────────────────────────

func (c *Connection) setStateLocked(to State, trs []transition) []transition {
	if c.state == to {
		return trs
	}
	if c.state == Connected || to == Connected {
		c.lastHealthy = time.Now()
	}
	trs = append(trs, transition{from: c.state, to: to})
	c.state = to
	return trs
}

// dropLocked clears the connected flag. A connection that was trying to
// reconnect, or has failed, keeps that state.
func (c *Connection) dropLocked(trs []transition) []transition {
	c.connected = false
	if c.state == Connected || c.state == Connecting {
		trs = c.setStateLocked(Disconnected, trs)
	}
	return trs
}

// abandonLocked detaches the current socket so its later events are
// ignored. The caller closes the returned socket after unlocking.
func (c *Connection) abandonLocked() transport.Socket {
	sock := c.sock
	c.sock = nil
	c.gen++
	if c.cancelSock != nil {
		c.cancelSock()
		c.cancelSock = nil
	}
	return sock
}

// emit delivers queued transitions. Called without c.mu.
func (c *Connection) emit(trs []transition) {
	for _, tr := range trs {
		util.LogDebug("[%s] %s → %s", c.id, tr.from, tr.to)
		c.stateHooks.each("state", func(fn func(from, to State)) { fn(tr.from, tr.to) })
	}
}

// reportError records err and fans it out. Called without c.mu.
func (c *Connection) reportError(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()

	util.LogWarning("[%s] %v", c.id, err)
	c.errorHooks.each("error", func(fn func(error)) { fn(err) })
}
