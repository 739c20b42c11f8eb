package reconnect_test

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/1ureka/drawsync/internal/config"
	"github.com/1ureka/drawsync/internal/connection"
	"github.com/1ureka/drawsync/internal/reconnect"
	"github.com/1ureka/drawsync/internal/transport"
	"github.com/1ureka/drawsync/internal/transport/transporttest"
)

// ----------------------------------------------------------------------------
// Backoff
// ----------------------------------------------------------------------------

// TestBackoffMonotonic checks that delays without jitter strictly increase
// and never fall below base·2^(n-1).
func TestBackoffMonotonic(t *testing.T) {
	b := reconnect.Backoff{Base: 100 * time.Millisecond, Jitter: 50 * time.Millisecond}

	prev := time.Duration(0)
	for n := 1; n <= 10; n++ {
		nominal := b.Nominal(n)
		floor := b.Base * time.Duration(1<<(n-1))

		if nominal <= prev {
			t.Errorf("Nominal(%d) = %s, not greater than %s", n, nominal, prev)
		}
		if nominal < floor {
			t.Errorf("Nominal(%d) = %s, below %s", n, nominal, floor)
		}
		for range 20 {
			if d := b.Delay(n); d < nominal || d >= nominal+b.Jitter {
				t.Errorf("Delay(%d) = %s, want in [%s, %s)", n, d, nominal, nominal+b.Jitter)
			}
		}
		prev = nominal
	}
}

// TestBackoffMonotonicDefaults runs the same check on the shipped reconnect
// settings and on the tightest cap Validate accepts.
func TestBackoffMonotonicDefaults(t *testing.T) {
	def := config.Default().Reconnect
	capped := def
	capped.MaxDelay = def.LastDelay()

	for name, rc := range map[string]config.ReconnectConfig{"default": def, "capped": capped} {
		t.Run(name, func(t *testing.T) {
			b := reconnect.Backoff{Base: rc.BaseDelay, Max: rc.MaxDelay, Jitter: rc.Jitter}

			prev := time.Duration(0)
			for n := 1; n <= rc.MaxAttempts; n++ {
				nominal := b.Nominal(n)
				floor := rc.BaseDelay * time.Duration(1<<(n-1))
				if nominal <= prev {
					t.Errorf("attempt %d: nominal %s not greater than %s", n, nominal, prev)
				}
				if nominal < floor {
					t.Errorf("attempt %d: nominal %s below %s", n, nominal, floor)
				}
				prev = nominal
			}
		})
	}
}

// TestBackoffBounds covers the cap and overflow guard.
func TestBackoffBounds(t *testing.T) {
	testCases := []struct {
		name string
		b    reconnect.Backoff
		n    int
		want time.Duration
	}{
		{"first attempt", reconnect.Backoff{Base: time.Second}, 1, time.Second},
		{"zero treated as first", reconnect.Backoff{Base: time.Second}, 0, time.Second},
		{"capped", reconnect.Backoff{Base: time.Second, Max: 5 * time.Second}, 10, 5 * time.Second},
		{"below cap", reconnect.Backoff{Base: time.Second, Max: 5 * time.Second}, 3, 4 * time.Second},
		{"overflow", reconnect.Backoff{Base: time.Second}, 200, time.Duration(1<<63 - 1)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.b.Nominal(tc.n); got != tc.want {
				t.Errorf("Nominal(%d) = %s, want %s", tc.n, got, tc.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// Supervisor
// ----------------------------------------------------------------------------

// fakeTarget succeeds after failFirst failed dials; failFirst < 0 fails forever.
type fakeTarget struct {
	mu           sync.Mutex
	healthy      bool
	failFirst    int
	dials        int
	reconnecting int
	failed       error
}

func (f *fakeTarget) IsHealthy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.healthy
}

func (f *fakeTarget) Dial(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials++
	if f.failFirst < 0 || f.dials <= f.failFirst {
		return errors.New("refused")
	}
	f.healthy = true
	return nil
}

func (f *fakeTarget) BeginReconnect() {
	f.mu.Lock()
	f.reconnecting++
	f.mu.Unlock()
}

func (f *fakeTarget) Fail(err error) {
	f.mu.Lock()
	f.failed = err
	f.mu.Unlock()
}

func (f *fakeTarget) counts() (dials, reconnecting int, failed error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials, f.reconnecting, f.failed
}

var fastBackoff = reconnect.Backoff{Base: time.Millisecond, Max: 4 * time.Millisecond}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

// TestSupervisorRecovers verifies the counter resets after a successful dial.
func TestSupervisorRecovers(t *testing.T) {
	target := &fakeTarget{failFirst: 2}
	done := make(chan struct{})

	s := reconnect.New("draft-1", target, reconnect.Config{
		Backoff:     fastBackoff,
		MaxAttempts: 10,
		OnRecovered: func() { close(done) },
	})
	defer s.Stop()

	if !s.Trigger() {
		t.Fatal("Trigger on an unhealthy target returned false")
	}
	waitFor(t, done, "recovery")

	dials, reconnecting, failed := target.counts()
	if dials != 3 {
		t.Errorf("dials = %d, want 3", dials)
	}
	if reconnecting != 1 {
		t.Errorf("BeginReconnect calls = %d, want 1", reconnecting)
	}
	if failed != nil {
		t.Errorf("target failed: %v", failed)
	}
	if s.Attempts() != 0 {
		t.Errorf("Attempts = %d after recovery, want 0", s.Attempts())
	}
	if s.Retrying() {
		t.Error("still retrying after recovery")
	}
	if s.Trigger() {
		t.Error("Trigger on a healthy target returned true")
	}
}

// TestSupervisorExhausts verifies the terminal failure path.
func TestSupervisorExhausts(t *testing.T) {
	target := &fakeTarget{failFirst: -1}
	done := make(chan struct{})
	var gotErr error

	s := reconnect.New("draft-1", target, reconnect.Config{
		Backoff:     fastBackoff,
		MaxAttempts: 3,
		OnExhausted: func(err error) {
			gotErr = err
			close(done)
		},
	})
	defer s.Stop()

	s.Trigger()
	waitFor(t, done, "exhaustion")

	if !errors.Is(gotErr, reconnect.ErrExhausted) {
		t.Errorf("OnExhausted err = %v, want ErrExhausted", gotErr)
	}
	dials, _, failed := target.counts()
	if dials != 3 {
		t.Errorf("dials = %d, want 3", dials)
	}
	if !errors.Is(failed, reconnect.ErrExhausted) {
		t.Errorf("target.Fail got %v, want ErrExhausted", failed)
	}
	if s.Attempts() != 3 {
		t.Errorf("Attempts = %d, want 3", s.Attempts())
	}
}

// TestSupervisorSingleLoop verifies a second trigger during a loop is
// ignored and the counter advances once per attempt.
func TestSupervisorSingleLoop(t *testing.T) {
	target := &fakeTarget{failFirst: -1}
	done := make(chan struct{})

	var mu sync.Mutex
	var attempts []int

	s := reconnect.New("draft-1", target, reconnect.Config{
		Backoff:     fastBackoff,
		MaxAttempts: 4,
		OnAttempt: func(n int, _ time.Duration) {
			mu.Lock()
			attempts = append(attempts, n)
			mu.Unlock()
		},
		OnExhausted: func(error) { close(done) },
	})
	defer s.Stop()

	if !s.Trigger() {
		t.Fatal("first Trigger returned false")
	}
	if s.Trigger() {
		t.Error("second Trigger started another loop")
	}
	waitFor(t, done, "exhaustion")

	mu.Lock()
	defer mu.Unlock()
	if want := []int{1, 2, 3, 4}; !reflect.DeepEqual(attempts, want) {
		t.Errorf("attempts = %v, want %v", attempts, want)
	}
	if dials, _, _ := target.counts(); dials != 4 {
		t.Errorf("dials = %d, want 4", dials)
	}
}

// TestSupervisorStop verifies Stop ends a pending wait.
func TestSupervisorStop(t *testing.T) {
	target := &fakeTarget{failFirst: -1}
	s := reconnect.New("draft-1", target, reconnect.Config{
		Backoff:     reconnect.Backoff{Base: time.Hour},
		MaxAttempts: 3,
	})

	s.Trigger()
	s.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for s.Retrying() {
		if time.Now().After(deadline) {
			t.Fatal("loop did not stop")
		}
		time.Sleep(time.Millisecond)
	}
	if dials, _, _ := target.counts(); dials != 0 {
		t.Errorf("dials = %d after Stop, want 0", dials)
	}
	if s.Trigger() {
		t.Error("Trigger after Stop returned true")
	}
}

// TestSupervisorWithConnection runs the supervisor against a real
// Connection over fake sockets.
func TestSupervisorWithConnection(t *testing.T) {
	d := &transporttest.Dialer{AutoOpen: true}
	c := connection.New("draft-1", d)
	recovered := make(chan struct{}, 1)

	s := reconnect.New("draft-1", c, reconnect.Config{
		Backoff:     fastBackoff,
		MaxAttempts: 5,
		DialTimeout: time.Second,
		OnRecovered: func() { recovered <- struct{}{} },
	})
	defer s.Stop()

	c.OnClose(func(info transport.CloseInfo) {
		if !info.Requested {
			s.Trigger()
		}
	})

	if err := c.Dial(context.Background()); err != nil {
		t.Fatalf("Dial: %v", err)
	}

	d.FailNext(2)
	d.Last().Drop(errors.New("reset"))
	waitFor(t, recovered, "recovery")

	if !c.IsHealthy() || c.State() != connection.Connected {
		t.Errorf("after recovery: healthy=%v state=%s", c.IsHealthy(), c.State())
	}
	if d.Dials() != 4 {
		t.Errorf("dials = %d, want 4 (initial, two failures, recovery)", d.Dials())
	}
}
