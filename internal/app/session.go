package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/1ureka/drawsync/internal/config"
	"github.com/1ureka/drawsync/internal/connection"
	"github.com/1ureka/drawsync/internal/dispatch"
	"github.com/1ureka/drawsync/internal/eventbus"
	"github.com/1ureka/drawsync/internal/heartbeat"
	"github.com/1ureka/drawsync/internal/protocol"
	"github.com/1ureka/drawsync/internal/reconnect"
	"github.com/1ureka/drawsync/internal/transport"
	"github.com/1ureka/drawsync/internal/util"
)

// ErrUnknownShape is returned when a local edit names a shape that is not
// on the board.
var ErrUnknownShape = errors.New("unknown shape")

// Session ties one registry connection to its bus, heartbeat, reconnect
// supervisor, dispatcher and board.
//
// Wiring:
//   - socket open    → heartbeat start, ready notify (handshake)
//   - message        → bus → handler → board
//   - drop or error  → heartbeat stop, ready reset, disconnect notify,
//     supervisor trigger
//   - recovered      → reconnect notify
//   - exhausted      → failed notify
type Session struct {
	id   string
	conn *connection.Connection

	bus         *eventbus.Bus
	board       *Board
	dispatcher  *dispatch.Dispatcher
	coordinator *dispatch.Coordinator
	handler     *dispatch.Handler
	throttle    *dispatch.Throttle
	heartbeat   *heartbeat.Heartbeat
	supervisor  *reconnect.Supervisor

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	live     bool
	released bool
	unhooks  []func()
}

// Status is a point-in-time view of a session.
type Status struct {
	Identity   protocol.Identity
	State      connection.State
	Healthy    bool
	Heartbeat  bool
	Pending    int
	Retrying   bool
	Attempts   int
	Handshakes int
	Shapes     int
	Offset     protocol.Point
}

func newSession(ctx context.Context, conn *connection.Connection, identity protocol.Identity, cfg config.Config) *Session {
	ctx, cancel := context.WithCancel(ctx)

	s := &Session{
		id:     conn.ID(),
		conn:   conn,
		bus:    eventbus.New(),
		board:  NewBoard(),
		ctx:    ctx,
		cancel: cancel,
	}

	s.dispatcher = dispatch.NewDispatcher(conn, identity)
	s.coordinator = dispatch.NewCoordinator(s.dispatcher, s.id)
	s.handler = dispatch.NewHandler(s.board, s.dispatcher)
	s.throttle = dispatch.NewThrottle(s.dispatcher, cfg.Throttle.Interval)
	s.heartbeat = heartbeat.New(conn, cfg.Heartbeat.Interval)

	state := s.bus.State()
	s.supervisor = reconnect.New(s.id, conn, reconnect.Config{
		Backoff: reconnect.Backoff{
			Base:   cfg.Reconnect.BaseDelay,
			Max:    cfg.Reconnect.MaxDelay,
			Jitter: cfg.Reconnect.Jitter,
		},
		MaxAttempts: cfg.Reconnect.MaxAttempts,
		DialTimeout: cfg.Reconnect.DialTimeout,
		OnAttempt: func(n int, delay time.Duration) {
			util.LogWarning("[%s] reconnecting in %s (attempt %d/%d)", s.id, delay.Round(time.Millisecond), n, cfg.Reconnect.MaxAttempts)
		},
		OnRecovered: state.NotifyReconnect,
		OnExhausted: state.NotifyFailed,
	})

	s.bus.Messages().Subscribe(s.handler)
	s.bus.Ready().Subscribe(s.coordinator)
	state.Subscribe(s.coordinator)

	s.unhooks = []func(){
		conn.OnMessage(s.bus.Messages().Notify),
		conn.OnOpen(s.handleOpen),
		conn.OnError(func(err error) {
			util.LogDebug("[%s] transport error: %v", s.id, err)
			s.handleLost()
		}),
		conn.OnClose(func(info transport.CloseInfo) {
			if info.Requested {
				s.handleClosed()
				return
			}
			util.LogDebug("[%s] socket closed (code %d %s)", s.id, info.Code, info.Reason)
			s.handleLost()
		}),
		conn.OnStateChange(func(from, to connection.State) {
			util.LogDebug("[%s] %s → %s", s.id, from, to)
		}),
	}
	return s
}

func (s *Session) handleOpen() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.live = true
	s.mu.Unlock()

	s.heartbeat.Start(s.ctx)
	s.bus.Ready().Notify()
}

// handleLost runs for every unrequested close and every error, including
// those of failed reconnect dials. Only the first one after an open
// announces the disconnect. Events that arrive once the supervisor owns
// the connection (Reconnecting, Failed) never start a second loop.
func (s *Session) handleLost() {
	if s.conn.IsHealthy() {
		return
	}

	s.mu.Lock()
	wasLive := s.live
	s.live = false
	released := s.released
	s.mu.Unlock()

	s.heartbeat.Stop()
	if wasLive {
		s.bus.Ready().Reset()
		s.bus.State().NotifyDisconnect()
	}
	if released {
		return
	}
	switch s.conn.State() {
	case connection.Reconnecting, connection.Failed:
		return
	}
	s.supervisor.Trigger()
}

func (s *Session) handleClosed() {
	s.mu.Lock()
	s.live = false
	s.mu.Unlock()

	s.heartbeat.Stop()
	s.bus.Ready().Reset()
}

// Connect opens the connection unless it is healthy or already dialing.
func (s *Session) Connect() {
	s.conn.Connect(nil)
}

// ID is the registry key of the session's connection.
func (s *Session) ID() string { return s.id }

func (s *Session) Identity() protocol.Identity { return s.dispatcher.Identity() }

func (s *Session) Bus() *eventbus.Bus { return s.bus }

func (s *Session) Board() *Board { return s.board }

func (s *Session) Conn() *connection.Connection { return s.conn }

// ──────────────────────────────────────────────────────────────────────────────
// Local edits
// ──────────────────────────────────────────────────────────────────────────────

// AddShape puts shape on the board and sends it. A zero id is replaced with
// a fresh one; the stored shape is returned.
func (s *Session) AddShape(shape protocol.Shape) protocol.Shape {
	if shape.ShapeID() == 0 {
		shape = protocol.WithID(shape, protocol.NewShapeID())
	}
	s.board.MergeShape(shape)
	s.dispatcher.AddShape(shape)
	return shape
}

// UpdateShape replaces shape id locally and sends the change through the
// update throttle.
func (s *Session) UpdateShape(id int64, shape protocol.Shape) error {
	if _, ok := s.board.Shape(id); !ok {
		return fmt.Errorf("%w: %d", ErrUnknownShape, id)
	}
	shape = protocol.WithID(shape, id)
	s.board.MergeShape(shape)
	s.throttle.UpdateShape(id, shape)
	return nil
}

// Move translates shape id by (dx, dy).
func (s *Session) Move(id int64, dx, dy float64) error {
	shape, ok := s.board.Shape(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownShape, id)
	}
	return s.UpdateShape(id, protocol.Translate(shape, dx, dy))
}

func (s *Session) DeleteShapes(ids []int64) {
	s.throttle.Flush()
	s.board.RemoveShapes(ids)
	s.dispatcher.DeleteShapes(ids)
}

func (s *Session) Pan(offset protocol.Point) error {
	if err := s.dispatcher.Pan(offset); err != nil {
		return err
	}
	s.board.Pan(offset)
	return nil
}

// FinalizeShape flushes pending updates, then marks id finalized.
func (s *Session) FinalizeShape(id int64) error {
	if _, ok := s.board.Shape(id); !ok {
		return fmt.Errorf("%w: %d", ErrUnknownShape, id)
	}
	s.throttle.Flush()
	s.board.FinalizeShape(id)
	s.dispatcher.FinalizeShape(id)
	return nil
}

// SetDraft switches the session to another draft on the same connection.
// The board is cleared until the new draft's shapes arrive.
func (s *Session) SetDraft(identity protocol.Identity) {
	s.throttle.Flush()
	s.board.InitShapes(nil)
	s.dispatcher.SetDraft(identity)
}

// Apply runs a mutating REPL command.
func (s *Session) Apply(cmd Command) error {
	switch cmd.Verb {
	case VerbAdd:
		shape := s.AddShape(cmd.Shape)
		util.LogSuccess("added %s %d", shape.Kind(), shape.ShapeID())
	case VerbMove:
		return s.Move(cmd.IDs[0], cmd.Offset.X, cmd.Offset.Y)
	case VerbDelete:
		s.DeleteShapes(cmd.IDs)
	case VerbPan:
		return s.Pan(cmd.Offset)
	case VerbFinal:
		return s.FinalizeShape(cmd.IDs[0])
	case VerbDraft:
		s.SetDraft(cmd.Draft)
	default:
		return fmt.Errorf("%w: %q does not change the board", ErrUsage, cmd.Verb)
	}
	return nil
}

// Status reports the session's current state.
func (s *Session) Status() Status {
	return Status{
		Identity:   s.Identity(),
		State:      s.conn.State(),
		Healthy:    s.conn.IsHealthy(),
		Heartbeat:  s.heartbeat.Running(),
		Pending:    s.conn.Pending(),
		Retrying:   s.supervisor.Retrying(),
		Attempts:   s.supervisor.Attempts(),
		Handshakes: s.coordinator.Handshakes(),
		Shapes:     s.board.Len(),
		Offset:     s.board.Offset(),
	}
}

// release detaches the session from its connection. The connection itself
// is closed by the registry.
func (s *Session) release() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	s.live = false
	unhooks := s.unhooks
	s.unhooks = nil
	s.mu.Unlock()

	s.supervisor.Stop()
	s.heartbeat.Stop()
	s.throttle.Stop()
	for _, unhook := range unhooks {
		unhook()
	}
	s.cancel()
	util.LogDebug("[%s] session released", s.id)
}
