// Package app composes the sync core: a Client owns the connection
// registry and one Session per draft.
package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/1ureka/drawsync/internal/config"
	"github.com/1ureka/drawsync/internal/connection"
	"github.com/1ureka/drawsync/internal/peer"
	"github.com/1ureka/drawsync/internal/protocol"
	"github.com/1ureka/drawsync/internal/transport"
	"github.com/1ureka/drawsync/internal/util"
)

// ErrClientClosed is returned by Open after Close.
var ErrClientClosed = errors.New("client closed")

// NewDialer builds the transport selected by cfg.
func NewDialer(cfg config.Config) (transport.Dialer, error) {
	switch cfg.Transport {
	case config.TransportWebSocket, "":
		return transport.NewWebSocketDialer(cfg.ServerURL), nil
	case config.TransportPeer:
		return peer.NewDialer(cfg.ServerURL, cfg.Peer.ICEServers), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// Client owns the connection registry. Sessions are keyed by draft id and
// share a connection with every caller that opens the same draft.
type Client struct {
	cfg      config.Config
	registry *connection.Registry

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewClient returns a client dialing through dialer. Sessions stop when
// ctx ends or Close is called.
func NewClient(ctx context.Context, cfg config.Config, dialer transport.Dialer) *Client {
	ctx, cancel := context.WithCancel(ctx)
	c := &Client{
		cfg:      cfg,
		registry: connection.NewRegistry(dialer, cfg.Registry.MaxConnections),
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
	c.registry.OnEvict(c.evicted)
	return c
}

// Open returns the session for identity's draft and starts connecting it.
// An empty draft id gets a fresh one.
func (c *Client) Open(identity protocol.Identity) (*Session, error) {
	if identity.DraftID == "" {
		identity.DraftID = protocol.NewDraftID()
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	c.mu.Unlock()

	// Resolve may fire evicted, which takes c.mu.
	conn, created := c.registry.Resolve(identity.DraftID)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.registry.Evict(identity.DraftID)
		return nil, ErrClientClosed
	}
	s, ok := c.sessions[identity.DraftID]
	if ok && s.conn == conn {
		c.mu.Unlock()
		s.Connect()
		return s, nil
	}
	s = newSession(c.ctx, conn, identity, c.cfg)
	c.sessions[identity.DraftID] = s
	c.mu.Unlock()

	if created {
		util.LogInfo("opening draft %s", identity.DraftID)
	}
	s.Connect()
	return s, nil
}

// Session returns the open session for a draft id.
func (c *Client) Session(draftID string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[draftID]
	return s, ok
}

// Drafts lists the draft ids with an open session, sorted.
func (c *Client) Drafts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Leave closes the draft's connection and releases its session.
func (c *Client) Leave(draftID string) bool {
	return c.registry.Evict(draftID)
}

// Close closes every connection. Queued messages are dropped with them.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.registry.CloseAll()
	c.cancel()
}

func (c *Client) evicted(id string, conn *connection.Connection) {
	c.mu.Lock()
	s, ok := c.sessions[id]
	if ok && s.conn == conn {
		delete(c.sessions, id)
	} else {
		ok = false
	}
	c.mu.Unlock()

	if ok {
		if n := conn.Pending(); n > 0 {
			util.LogWarning("draft %s left with %d unsent message(s)", id, n)
		}
		s.release()
	}
}
