// Package eventbus fans connection events out to in-process observers.
//
// A Bus has three independent subjects: raw inbound messages, connection
// readiness (delivered exactly once per connection lifetime), and
// connection state changes. Observers are compared by identity, so they
// should be pointers. Every observer call is isolated: a panic is logged
// and delivery continues with the next observer.
package eventbus

import (
	"slices"
	"sync"

	"github.com/1ureka/drawsync/internal/util"
)

// MessageObserver receives every raw inbound message.
type MessageObserver interface {
	HandleMessage(raw string)
}

// ReadyObserver is told when the connection is ready for the session
// handshake.
type ReadyObserver interface {
	ConnectionReady()
}

// StateObserver is told when the connection drops and when it recovers.
type StateObserver interface {
	ConnectionLost()
	ConnectionRestored()
}

// FailureObserver is an optional extension of StateObserver for the
// terminal failure after reconnecting gave up.
type FailureObserver interface {
	ConnectionFailed(err error)
}

// Bus groups the three subjects of one connection.
type Bus struct {
	messages MessageSubject
	ready    ReadySubject
	state    StateSubject
}

func New() *Bus {
	return &Bus{}
}

func (b *Bus) Messages() *MessageSubject { return &b.messages }
func (b *Bus) Ready() *ReadySubject       { return &b.ready }
func (b *Bus) State() *StateSubject       { return &b.state }

// ──────────────────────────────────────────────────────────────────────────────
// Observer list
// ──────────────────────────────────────────────────────────────────────────────

// observers is an ordered set keyed by identity.
type observers[T comparable] struct {
	list []T
}

func (o *observers[T]) add(obs T) bool {
	if slices.Contains(o.list, obs) {
		return false
	}
	o.list = append(o.list, obs)
	return true
}

func (o *observers[T]) remove(obs T) bool {
	i := slices.Index(o.list, obs)
	if i < 0 {
		return false
	}
	o.list = slices.Delete(o.list, i, i+1)
	return true
}

func (o *observers[T]) snapshot() []T {
	return slices.Clone(o.list)
}

// safeCall runs fn, logging instead of propagating a panic.
func safeCall(subject string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			util.LogError("%s observer panicked: %v", subject, r)
		}
	}()
	fn()
}

// ──────────────────────────────────────────────────────────────────────────────
// Message subject
// ──────────────────────────────────────────────────────────────────────────────

// MessageSubject delivers raw messages synchronously in registration order.
type MessageSubject struct {
	mu  sync.Mutex
	obs observers[MessageObserver]
}

// Subscribe adds o. It returns false when o is already subscribed.
func (s *MessageSubject) Subscribe(o MessageObserver) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.obs.add(o)
}

// Unsubscribe removes o. It returns false when o was not subscribed.
func (s *MessageSubject) Unsubscribe(o MessageObserver) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.obs.remove(o)
}

func (s *MessageSubject) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.obs.list)
}

func (s *MessageSubject) Notify(raw string) {
	s.mu.Lock()
	list := s.obs.snapshot()
	s.mu.Unlock()

	for _, o := range list {
		safeCall("message", func() { o.HandleMessage(raw) })
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Ready subject
// ──────────────────────────────────────────────────────────────────────────────

// ReadySubject notifies each observer at most once per connection
// lifetime. An observer subscribing after readiness was announced is
// notified immediately. Reset re-arms delivery for everyone.
type ReadySubject struct {
	mu       sync.Mutex
	obs      observers[ReadyObserver]
	ready    bool
	notified map[ReadyObserver]bool
}

// Subscribe adds o, replaying readiness to it when already announced. It
// returns false when o is already subscribed.
func (s *ReadySubject) Subscribe(o ReadyObserver) bool {
	s.mu.Lock()
	if !s.obs.add(o) {
		s.mu.Unlock()
		return false
	}
	replay := s.ready && !s.notified[o]
	if replay {
		s.markLocked(o)
	}
	s.mu.Unlock()

	if replay {
		safeCall("ready", o.ConnectionReady)
	}
	return true
}

// Unsubscribe removes o. It returns false when o was not subscribed.
func (s *ReadySubject) Unsubscribe(o ReadyObserver) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.obs.remove(o) {
		return false
	}
	delete(s.notified, o)
	return true
}

// Notify announces readiness. Observers already notified in this lifetime
// are skipped, so repeated calls are harmless.
func (s *ReadySubject) Notify() {
	s.mu.Lock()
	s.ready = true
	var due []ReadyObserver
	for _, o := range s.obs.list {
		if !s.notified[o] {
			s.markLocked(o)
			due = append(due, o)
		}
	}
	s.mu.Unlock()

	for _, o := range due {
		safeCall("ready", o.ConnectionReady)
	}
}

// Reset marks the connection not ready and forgets who was notified.
func (s *ReadySubject) Reset() {
	s.mu.Lock()
	s.ready = false
	s.notified = nil
	s.mu.Unlock()
}

// Notified reports whether readiness has been announced since the last Reset.
func (s *ReadySubject) Notified() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *ReadySubject) markLocked(o ReadyObserver) {
	if s.notified == nil {
		s.notified = make(map[ReadyObserver]bool)
	}
	s.notified[o] = true
}

// ──────────────────────────────────────────────────────────────────────────────
// State subject
// ──────────────────────────────────────────────────────────────────────────────

// StateSubject fans out disconnect, reconnect and terminal failure.
type StateSubject struct {
	mu  sync.Mutex
	obs observers[StateObserver]
}

// Subscribe adds o. It returns false when o is already subscribed.
func (s *StateSubject) Subscribe(o StateObserver) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.obs.add(o)
}

// Unsubscribe removes o. It returns false when o was not subscribed.
func (s *StateSubject) Unsubscribe(o StateObserver) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.obs.remove(o)
}

func (s *StateSubject) NotifyDisconnect() {
	for _, o := range s.snapshot() {
		safeCall("state", o.ConnectionLost)
	}
}

func (s *StateSubject) NotifyReconnect() {
	for _, o := range s.snapshot() {
		safeCall("state", o.ConnectionRestored)
	}
}

// NotifyFailed reaches only observers that implement FailureObserver.
func (s *StateSubject) NotifyFailed(err error) {
	for _, o := range s.snapshot() {
		if f, ok := o.(FailureObserver); ok {
			safeCall("state", func() { f.ConnectionFailed(err) })
		}
	}
}

func (s *StateSubject) snapshot() []StateObserver {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.obs.snapshot()
}
