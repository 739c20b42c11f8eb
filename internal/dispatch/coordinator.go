package dispatch

import (
	"sync"

	"github.com/1ureka/drawsync/internal/util"
)

// Coordinator sends the session handshake once per connection lifetime.
// It observes the bus's ready subject (ConnectionReady) and state subject
// (ConnectionLost re-arms it).
type Coordinator struct {
	dispatcher *Dispatcher
	sessionID  string

	mu         sync.Mutex
	sent       bool
	handshakes int
}

func NewCoordinator(d *Dispatcher, sessionID string) *Coordinator {
	return &Coordinator{dispatcher: d, sessionID: sessionID}
}

// ConnectionReady sends the handshake unless it was already sent in this
// lifetime.
func (c *Coordinator) ConnectionReady() {
	c.mu.Lock()
	if c.sent {
		c.mu.Unlock()
		return
	}
	c.sent = true
	c.handshakes++
	c.mu.Unlock()

	util.LogDebug("[%s] sending handshake", c.sessionID)
	c.dispatcher.Connect()
}

// ConnectionLost re-arms the handshake for the next lifetime.
func (c *Coordinator) ConnectionLost() { c.Reset() }

func (c *Coordinator) ConnectionRestored() {}

func (c *Coordinator) Reset() {
	c.mu.Lock()
	c.sent = false
	c.mu.Unlock()
}

// Sent reports whether the handshake went out in the current lifetime.
func (c *Coordinator) Sent() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent
}

// Handshakes returns how many handshakes have been sent in total.
func (c *Coordinator) Handshakes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handshakes
}
