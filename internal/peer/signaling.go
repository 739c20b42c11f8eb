package peer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/drawsync/internal/util"
)

// messageType identifies the kind of signaling message.
type messageType string

const (
	msgTypeOffer     messageType = "offer"
	msgTypeAnswer    messageType = "answer"
	msgTypeCandidate messageType = "candidate"
)

// message is the JSON structure exchanged over the signaling WebSocket.
type message struct {
	Type      messageType `json:"type"`
	SDP       string      `json:"sdp,omitempty"`
	Candidate string      `json:"candidate,omitempty"` // JSON-encoded ICECandidateInit
}

// signaler serializes outgoing signaling messages to the WebSocket.
type signaler struct {
	conn *websocket.Conn
	pc   *webrtc.PeerConnection
	mu   sync.Mutex
}

func (s *signaler) send(msg message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(msg)
}

// sendOffer creates an SDP offer, sets it as local description, and sends it.
func (s *signaler) sendOffer() error {
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("CreateOffer: %w", err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("SetLocalDescription: %w", err)
	}
	return s.send(message{Type: msgTypeOffer, SDP: offer.SDP})
}

// sendAnswer creates an SDP answer, sets it as local description, and sends it.
func (s *signaler) sendAnswer() error {
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("CreateAnswer: %w", err)
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("SetLocalDescription: %w", err)
	}
	return s.send(message{Type: msgTypeAnswer, SDP: answer.SDP})
}

// trickle forwards local ICE candidates. Failures are best-effort: once the
// channel opens the WebSocket is closed on purpose.
func (s *signaler) trickle(c *webrtc.ICECandidate) {
	if c == nil {
		return
	}
	data, err := json.Marshal(c.ToJSON())
	if err != nil {
		return
	}
	if err := s.send(message{Type: msgTypeCandidate, Candidate: string(data)}); err != nil {
		util.LogDebug("failed to send ICE candidate: %v", err)
	}
}

// watch applies remote signaling messages until the WebSocket fails or
// ctx ends.
func (s *signaler) watch(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stop()

	for {
		var msg message
		if err := s.conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to read signaling message: %w", err)
		}
		if err := s.apply(msg); err != nil {
			return err
		}
	}
}

func (s *signaler) apply(msg message) error {
	switch msg.Type {
	case msgTypeOffer:
		if err := s.pc.SetRemoteDescription(webrtc.SessionDescription{
			Type: webrtc.SDPTypeOffer, SDP: msg.SDP,
		}); err != nil {
			return fmt.Errorf("SetRemoteDescription: %w", err)
		}
		return s.sendAnswer()

	case msgTypeAnswer:
		if err := s.pc.SetRemoteDescription(webrtc.SessionDescription{
			Type: webrtc.SDPTypeAnswer, SDP: msg.SDP,
		}); err != nil {
			return fmt.Errorf("SetRemoteDescription: %w", err)
		}

	case msgTypeCandidate:
		var init webrtc.ICECandidateInit
		if err := json.Unmarshal([]byte(msg.Candidate), &init); err != nil {
			return fmt.Errorf("failed to parse ICE candidate: %w", err)
		}
		if err := s.pc.AddICECandidate(init); err != nil {
			return fmt.Errorf("AddICECandidate: %w", err)
		}

	default:
		util.LogDebug("ignoring signaling message of type %q", msg.Type)
	}
	return nil
}
