package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	writeWait               = 10 * time.Second
	closeGracePeriod        = time.Second
)

// WebSocketDialer dials gorilla/websocket connections to a fixed URL.
type WebSocketDialer struct {
	URL    string
	Header http.Header

	// Dialer defaults to a copy of websocket.DefaultDialer with a 10s
	// handshake timeout.
	Dialer *websocket.Dialer
}

// NewWebSocketDialer returns a dialer for the given ws:// or wss:// URL.
func NewWebSocketDialer(url string) *WebSocketDialer {
	d := *websocket.DefaultDialer
	d.HandshakeTimeout = defaultHandshakeTimeout
	return &WebSocketDialer{URL: url, Dialer: &d}
}

// Dial starts connecting in the background and returns at once.
func (d *WebSocketDialer) Dial(ctx context.Context, ev Events) Socket {
	ctx, cancel := context.WithCancel(ctx)
	s := &wsSocket{ev: ev, cancel: cancel}
	s.state.Store(int32(StateConnecting))

	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	go s.run(ctx, dialer, d.URL, d.Header)
	return s
}

// wsSocket adapts one *websocket.Conn to Socket. Writes are serialized by
// mu; a single goroutine owns reads.
type wsSocket struct {
	ev     Events
	cancel context.CancelFunc

	state     atomic.Int32
	requested atomic.Bool

	mu   sync.Mutex
	conn *websocket.Conn

	closeOnce sync.Once
}

func (s *wsSocket) run(ctx context.Context, dialer *websocket.Dialer, url string, header http.Header) {
	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		s.state.Store(int32(StateClosed))
		if s.requested.Load() {
			s.finish(CloseInfo{Code: websocket.CloseNormalClosure, Requested: true})
			return
		}
		s.ev.EmitError(fmt.Errorf("failed to connect to WS server: %w", err))
		s.finish(CloseInfo{Code: websocket.CloseAbnormalClosure, Reason: err.Error()})
		return
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	// Close may have been requested while the handshake was in flight.
	if !s.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen)) {
		conn.Close()
		s.state.Store(int32(StateClosed))
		s.finish(CloseInfo{Code: websocket.CloseNormalClosure, Requested: true})
		return
	}

	s.ev.EmitOpen()
	s.readLoop(conn)
}

// readLoop delivers frames until the connection fails or closes.
func (s *wsSocket) readLoop(conn *websocket.Conn) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			s.state.Store(int32(StateClosed))
			conn.Close()

			info := CloseInfo{Code: websocket.CloseAbnormalClosure, Requested: s.requested.Load()}
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				info.Code = ce.Code
				info.Reason = ce.Text
			}

			if !info.Requested && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.ev.EmitError(fmt.Errorf("failed to read WS message: %w", err))
			}
			s.finish(info)
			return
		}

		switch mt {
		case websocket.TextMessage:
			s.ev.EmitMessage(Frame{Data: data})
		case websocket.BinaryMessage:
			s.ev.EmitMessage(Frame{Data: data, Binary: true})
		}
	}
}

func (s *wsSocket) finish(info CloseInfo) {
	s.closeOnce.Do(func() {
		s.cancel()
		s.ev.EmitClose(info)
	})
}

// Send writes a text frame, guarded by a mutex.
func (s *wsSocket) Send(text string) error {
	if s.ReadyState() != StateOpen {
		return ErrNotOpen
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return ErrNotOpen
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

func (s *wsSocket) ReadyState() ReadyState {
	return ReadyState(s.state.Load())
}

// Close sends a close frame and lets the read loop observe the peer's
// reply. A socket still handshaking is cancelled instead.
func (s *wsSocket) Close() error {
	s.requested.Store(true)

	if s.state.CompareAndSwap(int32(StateConnecting), int32(StateClosing)) {
		s.cancel()
		return nil
	}
	if !s.state.CompareAndSwap(int32(StateOpen), int32(StateClosing)) {
		return nil
	}

	s.mu.Lock()
	conn := s.conn
	err := conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	s.mu.Unlock()

	// Force the read loop out if the peer never answers the close frame.
	time.AfterFunc(closeGracePeriod, func() { conn.Close() })

	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		conn.Close()
		return fmt.Errorf("failed to send WS close frame: %w", err)
	}
	return nil
}
