// Package dispatch turns local drawing actions into wire messages and
// remote wire messages into canvas mutations.
package dispatch

import (
	"sync"

	"github.com/1ureka/drawsync/internal/protocol"
	"github.com/1ureka/drawsync/internal/util"
)

// Sender is the connection messages are handed to. Send never blocks on
// delivery.
type Sender interface {
	Send(msg string)
}

// Dispatcher stamps operations with the current session identity and sends
// each as exactly one wire message.
type Dispatcher struct {
	conn Sender

	mu       sync.Mutex
	identity protocol.Identity
}

func NewDispatcher(conn Sender, identity protocol.Identity) *Dispatcher {
	return &Dispatcher{conn: conn, identity: identity}
}

// Identity returns the session the dispatcher currently targets.
func (d *Dispatcher) Identity() protocol.Identity {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.identity
}

// SetDraft retargets the dispatcher and announces the new session with a
// connect operation.
func (d *Dispatcher) SetDraft(identity protocol.Identity) {
	d.mu.Lock()
	d.identity = identity
	d.sendLocked(protocol.Connect{})
	d.mu.Unlock()
}

// Connect sends the session handshake.
func (d *Dispatcher) Connect() {
	d.send(protocol.Connect{})
}

func (d *Dispatcher) AddShape(s protocol.Shape) {
	d.send(protocol.Add{Shapes: []protocol.Shape{s}})
}

// UpdateShape sends s as the new state of shape id.
func (d *Dispatcher) UpdateShape(id int64, s protocol.Shape) {
	d.send(protocol.Update{Shapes: []protocol.Shape{protocol.WithID(s, id)}})
}

func (d *Dispatcher) DeleteShapes(ids []int64) {
	d.send(protocol.Delete{IDs: ids})
}

// Pan sends a viewport offset. A non-finite offset cannot be encoded and
// is dropped with an error.
func (d *Dispatcher) Pan(offset protocol.Point) error {
	return d.send(protocol.Pan{Offset: offset})
}

func (d *Dispatcher) FinalizeShape(id int64) {
	d.send(protocol.Finalize{ID: id})
}

func (d *Dispatcher) send(op protocol.Operation) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sendLocked(op)
}

// sendLocked holds d.mu across Send so messages leave in the order their
// identity was stamped.
func (d *Dispatcher) sendLocked(op protocol.Operation) error {
	text, err := protocol.Encode(protocol.Message{Identity: d.identity, Op: op})
	if err != nil {
		util.LogError("failed to encode %s: %v", op.RequestType(), err)
		return err
	}
	d.conn.Send(text)
	return nil
}
