package connection_test

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/1ureka/drawsync/internal/connection"
	"github.com/1ureka/drawsync/internal/transport"
	"github.com/1ureka/drawsync/internal/transport/transporttest"
)

// openConn dials c and opens the resulting fake socket.
func openConn(t *testing.T, c *connection.Connection, d *transporttest.Dialer) *transporttest.Socket {
	t.Helper()
	c.Connect(nil)
	sock := d.Last()
	if sock == nil {
		t.Fatal("Connect did not dial")
	}
	sock.Open()
	if !c.IsHealthy() {
		t.Fatal("connection not healthy after open")
	}
	return sock
}

// TestFIFOFlush verifies queued messages go out in order before anything
// sent from an open hook.
func TestFIFOFlush(t *testing.T) {
	d := &transporttest.Dialer{}
	c := connection.New("draft-1", d)

	c.Send("m1")
	c.Send("m2")
	c.Send("m3")
	if c.Pending() != 3 {
		t.Fatalf("Pending = %d, want 3", c.Pending())
	}

	c.OnOpen(func() { c.Send("post-open") })
	sock := openConn(t, c, d)

	want := []string{"m1", "m2", "m3", "post-open"}
	if got := sock.Sent(); !reflect.DeepEqual(got, want) {
		t.Errorf("sent mismatch: got %v, want %v", got, want)
	}
	if c.Pending() != 0 {
		t.Errorf("Pending = %d after flush", c.Pending())
	}
	if c.State() != connection.Connected {
		t.Errorf("State = %s, want connected", c.State())
	}
}

// TestQueuedSendSurvivesDisconnect covers a send made between a drop and
// the next successful open.
func TestQueuedSendSurvivesDisconnect(t *testing.T) {
	d := &transporttest.Dialer{}
	c := connection.New("draft-1", d)

	first := openConn(t, c, d)
	first.Drop(errors.New("network down"))

	if c.State() != connection.Disconnected {
		t.Fatalf("State = %s, want disconnected", c.State())
	}

	c.Send("X")
	if got := c.PendingMessages(); !reflect.DeepEqual(got, []string{"X"}) {
		t.Fatalf("queue = %v, want [X]", got)
	}

	second := openConn(t, c, d)

	if got := first.Sent(); len(got) != 0 {
		t.Errorf("dropped socket received %v", got)
	}
	if got := second.Sent(); !reflect.DeepEqual(got, []string{"X"}) {
		t.Errorf("sent mismatch: got %v, want [X]", got)
	}
}

// TestConnectIdempotent verifies repeated Connect calls share one dial and
// every onReady runs exactly once.
func TestConnectIdempotent(t *testing.T) {
	d := &transporttest.Dialer{}
	c := connection.New("draft-1", d)

	var calls []string
	c.Connect(func() { calls = append(calls, "a") })
	c.Connect(func() { calls = append(calls, "b") })
	c.Connect(nil)

	if d.Dials() != 1 {
		t.Fatalf("Dials = %d, want 1", d.Dials())
	}

	d.Last().Open()
	c.Connect(func() { calls = append(calls, "c") })

	if d.Dials() != 1 {
		t.Errorf("Connect on a healthy connection dialed again (%d dials)", d.Dials())
	}
	if want := []string{"a", "b"}; !reflect.DeepEqual(calls, want) {
		t.Errorf("onReady calls = %v, want %v", calls, want)
	}
}

// TestHooksCombine verifies hooks registered before and after Connect all
// run in registration order and can be removed individually.
func TestHooksCombine(t *testing.T) {
	d := &transporttest.Dialer{}
	c := connection.New("draft-1", d)

	var order []string
	c.OnOpen(func() { order = append(order, "infra") })
	removeApp := c.OnOpen(func() { order = append(order, "app") })

	first := openConn(t, c, d)
	c.OnOpen(func() { order = append(order, "late") })

	first.Drop(nil)
	removeApp()
	removeApp()
	openConn(t, c, d)

	want := []string{"infra", "app", "infra", "late"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("hook order = %v, want %v", order, want)
	}
}

// TestHookPanicIsolated verifies a panicking hook does not stop the rest.
func TestHookPanicIsolated(t *testing.T) {
	d := &transporttest.Dialer{}
	c := connection.New("draft-1", d)

	var got []string
	c.OnMessage(func(string) { panic("boom") })
	c.OnMessage(func(msg string) { got = append(got, msg) })

	sock := openConn(t, c, d)
	sock.Deliver("hello")

	if !reflect.DeepEqual(got, []string{"hello"}) {
		t.Errorf("got %v, want [hello]", got)
	}
}

// TestBinaryFramesAsText verifies callers only ever see text.
func TestBinaryFramesAsText(t *testing.T) {
	d := &transporttest.Dialer{}
	c := connection.New("draft-1", d)

	var got []string
	c.OnMessage(func(msg string) { got = append(got, msg) })

	sock := openConn(t, c, d)
	sock.Deliver(`{"requestType":5}`)
	sock.DeliverBinary([]byte(`{"requestType":1}`))

	want := []string{`{"requestType":5}`, `{"requestType":1}`}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

// TestUnhealthyConnectedCorrected covers a socket that died without
// firing events while the connection still claimed Connected.
func TestUnhealthyConnectedCorrected(t *testing.T) {
	d := &transporttest.Dialer{}
	c := connection.New("draft-1", d)

	var errs []error
	c.OnError(func(err error) { errs = append(errs, err) })

	sock := openConn(t, c, d)
	sock.SetState(transport.StateClosed)

	if c.IsHealthy() {
		t.Fatal("IsHealthy must follow the socket's live state")
	}
	if c.State() != connection.Connected {
		t.Fatalf("State = %s before send, want connected", c.State())
	}

	c.Send("x")

	if c.State() != connection.Disconnected {
		t.Errorf("State = %s, want disconnected", c.State())
	}
	if c.Pending() != 1 {
		t.Errorf("Pending = %d, want 1", c.Pending())
	}
	if len(errs) != 1 || !errors.Is(errs[0], connection.ErrUnhealthy) {
		t.Errorf("errors = %v, want [ErrUnhealthy]", errs)
	}
}

// TestSendFailureRequeues verifies a failed write keeps the message.
func TestSendFailureRequeues(t *testing.T) {
	d := &transporttest.Dialer{}
	c := connection.New("draft-1", d)

	var errs int
	c.OnError(func(error) { errs++ })

	sock := openConn(t, c, d)
	sock.FailSends(errors.New("broken pipe"))
	c.Send("a")

	if c.Pending() != 1 {
		t.Errorf("Pending = %d, want 1", c.Pending())
	}
	if c.IsHealthy() {
		t.Error("connection still healthy after a failed write")
	}
	if errs != 1 {
		t.Errorf("error hooks fired %d times, want 1", errs)
	}
	if !sock.Closed() {
		t.Error("failed socket was not closed")
	}

	next := openConn(t, c, d)
	if got := next.Sent(); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("sent mismatch: got %v, want [a]", got)
	}
}

// TestStaleSocketIgnored verifies events from a replaced socket are dropped.
func TestStaleSocketIgnored(t *testing.T) {
	d := &transporttest.Dialer{}
	c := connection.New("draft-1", d)

	var msgs, closes int
	c.OnMessage(func(string) { msgs++ })
	c.OnClose(func(transport.CloseInfo) { closes++ })

	old := openConn(t, c, d)
	old.SetState(transport.StateClosed)
	openConn(t, c, d)

	old.Deliver("late")
	old.Drop(nil)

	if msgs != 0 {
		t.Errorf("stale socket delivered %d message(s)", msgs)
	}
	if closes != 0 {
		t.Errorf("stale socket fired %d close(s)", closes)
	}
	if !c.IsHealthy() {
		t.Error("stale close affected the current socket")
	}
}

// TestCloseRequested verifies Close reports a requested close and keeps
// the queue.
func TestCloseRequested(t *testing.T) {
	d := &transporttest.Dialer{}
	c := connection.New("draft-1", d)

	var infos []transport.CloseInfo
	c.OnClose(func(info transport.CloseInfo) { infos = append(infos, info) })

	openConn(t, c, d)
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	c.Send("kept")

	if len(infos) != 1 || !infos[0].Requested {
		t.Errorf("close infos = %+v, want one requested close", infos)
	}
	if !c.Retired() {
		t.Error("closed connection not retired")
	}
	if c.Pending() != 1 {
		t.Errorf("Pending = %d, want 1", c.Pending())
	}
}

// TestDial covers the blocking variant of Connect.
func TestDial(t *testing.T) {
	t.Run("opens", func(t *testing.T) {
		d := &transporttest.Dialer{AutoOpen: true}
		c := connection.New("draft-1", d)

		if err := c.Dial(context.Background()); err != nil {
			t.Fatalf("Dial: %v", err)
		}
		if !c.IsHealthy() {
			t.Error("not healthy after Dial")
		}
		if err := c.Dial(context.Background()); err != nil || d.Dials() != 1 {
			t.Errorf("second Dial = %v with %d dials, want nil with 1", err, d.Dials())
		}
	})

	t.Run("fails", func(t *testing.T) {
		d := &transporttest.Dialer{AutoOpen: true}
		d.FailNext(1)
		c := connection.New("draft-1", d)

		if err := c.Dial(context.Background()); err == nil {
			t.Fatal("Dial succeeded against a failing dialer")
		}
		if c.State() != connection.Disconnected {
			t.Errorf("State = %s, want disconnected", c.State())
		}
	})

	t.Run("times out", func(t *testing.T) {
		d := &transporttest.Dialer{}
		c := connection.New("draft-1", d)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := c.Dial(ctx)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("Dial = %v, want deadline exceeded", err)
		}
		if !d.Last().Closed() {
			t.Error("abandoned socket was not closed")
		}

		// A late open from the abandoned socket must be ignored.
		d.Last().Open()
		if c.IsHealthy() {
			t.Error("abandoned socket made the connection healthy")
		}
	})
}

// TestStateTransitions records the lifecycle as seen by OnStateChange.
func TestStateTransitions(t *testing.T) {
	d := &transporttest.Dialer{}
	c := connection.New("draft-1", d)

	var mu sync.Mutex
	var seen []connection.State
	c.OnStateChange(func(_, to connection.State) {
		mu.Lock()
		seen = append(seen, to)
		mu.Unlock()
	})

	sock := openConn(t, c, d)
	sock.Drop(errors.New("reset"))

	c.BeginReconnect()
	c.Connect(nil)
	if c.State() != connection.Reconnecting {
		t.Errorf("State while redialing = %s, want reconnecting", c.State())
	}
	d.Last().Drop(nil)
	c.Fail(errors.New("gave up"))

	want := []connection.State{
		connection.Connecting,
		connection.Connected,
		connection.Disconnected,
		connection.Reconnecting,
		connection.Failed,
	}
	mu.Lock()
	defer mu.Unlock()
	if !reflect.DeepEqual(seen, want) {
		t.Errorf("transitions = %v, want %v", seen, want)
	}
	if c.Err() == nil || c.Err().Error() != "gave up" {
		t.Errorf("Err = %v, want gave up", c.Err())
	}
}
