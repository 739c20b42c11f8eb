// Package peer provides a transport.Dialer over a WebRTC DataChannel.
//
// Each Dial connects to a signaling WebSocket, exchanges SDP and trickled
// ICE candidates with the remote peer, and waits for a pre-negotiated
// DataChannel to open. The signaling socket is closed as soon as the
// channel is up; from then on the DataChannel is the Socket.
package peer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/drawsync/internal/transport"
	"github.com/1ureka/drawsync/internal/util"
)

const (
	channelLabel = "drawsync"
	channelID    = uint16(0)

	defaultHandshakeTimeout = 10 * time.Second
)

// Dialer opens DataChannel sockets through a signaling server.
type Dialer struct {
	SignalingURL string
	Header       http.Header
	ICEServers   []string

	// Offerer makes this side create the SDP offer. By default the remote
	// peer offers and this side answers.
	Offerer bool
}

// NewDialer returns a dialer that signals through url.
func NewDialer(url string, iceServers []string) *Dialer {
	return &Dialer{SignalingURL: url, ICEServers: iceServers}
}

// Dial starts signaling in the background and returns at once.
func (d *Dialer) Dial(ctx context.Context, ev transport.Events) transport.Socket {
	ctx, cancel := context.WithCancel(ctx)
	s := &socket{ev: ev, cancel: cancel, open: make(chan struct{})}
	s.state.Store(int32(transport.StateConnecting))
	go s.run(ctx, d)
	return s
}

// configuration builds the PeerConnection configuration for the given
// ICE server URLs.
func configuration(iceServers []string) webrtc.Configuration {
	if len(iceServers) == 0 {
		return webrtc.Configuration{}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: iceServers}},
	}
}

// newDataChannel creates a pre-negotiated, ordered DataChannel. Negotiated
// mode (ID 0) lets both sides create the channel independently without
// OnDataChannel. Ordered delivery keeps wire messages in send order.
func newDataChannel(pc *webrtc.PeerConnection) (*webrtc.DataChannel, error) {
	ordered := true
	negotiated := true
	id := channelID

	return pc.CreateDataChannel(channelLabel, &webrtc.DataChannelInit{
		Ordered:    &ordered,
		Negotiated: &negotiated,
		ID:         &id,
	})
}

// frameOf maps a DataChannel message onto a transport frame.
func frameOf(msg webrtc.DataChannelMessage) transport.Frame {
	return transport.Frame{Data: msg.Data, Binary: !msg.IsString}
}

// ──────────────────────────────────────────────────────────────────────────────
// Socket
// ──────────────────────────────────────────────────────────────────────────────

type socket struct {
	ev     transport.Events
	cancel context.CancelFunc

	state     atomic.Int32
	requested atomic.Bool
	open      chan struct{}

	mu sync.Mutex
	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	openOnce  sync.Once
	closeOnce sync.Once
}

func (s *socket) run(ctx context.Context, d *Dialer) {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = defaultHandshakeTimeout

	wsConn, _, err := dialer.DialContext(ctx, d.SignalingURL, d.Header)
	if err != nil {
		s.fail(fmt.Errorf("failed to connect to signaling server: %w", err))
		return
	}
	defer wsConn.Close()
	util.LogDebug("signaling connected: %s", d.SignalingURL)

	pc, err := webrtc.NewPeerConnection(configuration(d.ICEServers))
	if err != nil {
		s.fail(fmt.Errorf("failed to create PeerConnection: %w", err))
		return
	}
	dc, err := newDataChannel(pc)
	if err != nil {
		pc.Close()
		s.fail(fmt.Errorf("failed to create DataChannel: %w", err))
		return
	}

	s.mu.Lock()
	s.pc, s.dc = pc, dc
	s.mu.Unlock()

	dc.OnOpen(func() {
		s.openOnce.Do(func() { close(s.open) })
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		s.ev.EmitMessage(frameOf(msg))
	})
	dc.OnClose(func() {
		util.LogDebug("DataChannel closed")
		s.finish(nil)
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("PeerConnection state: %s", state.String())
		if state == webrtc.PeerConnectionStateFailed && s.ReadyState() == transport.StateOpen {
			s.finish(errors.New("peer connection failed"))
		}
	})

	sig := &signaler{conn: wsConn, pc: pc}
	pc.OnICECandidate(sig.trickle)

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	errCh := make(chan error, 1)
	go func() { errCh <- sig.watch(watchCtx) }()

	if d.Offerer {
		if err := sig.sendOffer(); err != nil {
			s.fail(fmt.Errorf("failed to send offer: %w", err))
			return
		}
	}

	select {
	case <-s.open:
		if !s.state.CompareAndSwap(int32(transport.StateConnecting), int32(transport.StateOpen)) {
			s.fail(ctx.Err())
			return
		}
		util.LogDebug("WebRTC DataChannel established, closing signaling")
		s.ev.EmitOpen()

	case err := <-errCh:
		// The channel may have opened just as the WebSocket went away.
		select {
		case <-s.open:
			if s.state.CompareAndSwap(int32(transport.StateConnecting), int32(transport.StateOpen)) {
				s.ev.EmitOpen()
				return
			}
		default:
		}
		s.fail(fmt.Errorf("signaling failed: %w", err))

	case <-ctx.Done():
		s.fail(ctx.Err())
	}
}

// fail tears down a socket that never opened.
func (s *socket) fail(err error) {
	s.state.Store(int32(transport.StateClosed))
	s.closePeer()
	if s.requested.Load() {
		s.finish(nil)
		return
	}
	s.finish(err)
}

// finish reports the close exactly once. err, when set, is reported first
// unless the close was requested.
func (s *socket) finish(err error) {
	s.closeOnce.Do(func() {
		s.state.Store(int32(transport.StateClosed))
		s.cancel()

		requested := s.requested.Load()
		info := transport.CloseInfo{Code: 1000, Requested: requested}
		if err != nil && !requested {
			s.ev.EmitError(err)
			info.Code = 1006
			info.Reason = err.Error()
		}
		s.ev.EmitClose(info)
	})

	// Outside the Once: closing may re-enter finish through dc.OnClose.
	s.closePeer()
}

func (s *socket) closePeer() {
	s.mu.Lock()
	pc, dc := s.pc, s.dc
	s.mu.Unlock()

	if dc != nil {
		dc.Close()
	}
	if pc != nil {
		pc.Close()
	}
}

// Send writes a text message to the DataChannel.
func (s *socket) Send(text string) error {
	if s.ReadyState() != transport.StateOpen {
		return transport.ErrNotOpen
	}

	s.mu.Lock()
	dc := s.dc
	s.mu.Unlock()

	if dc == nil {
		return transport.ErrNotOpen
	}
	return dc.SendText(text)
}

func (s *socket) ReadyState() transport.ReadyState {
	return transport.ReadyState(s.state.Load())
}

// Close aborts signaling or closes an open channel. OnClose follows with
// Requested set.
func (s *socket) Close() error {
	s.requested.Store(true)

	if s.state.CompareAndSwap(int32(transport.StateConnecting), int32(transport.StateClosing)) {
		s.cancel()
		return nil
	}
	if s.state.CompareAndSwap(int32(transport.StateOpen), int32(transport.StateClosing)) {
		s.finish(nil)
	}
	return nil
}
