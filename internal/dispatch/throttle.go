package dispatch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/1ureka/drawsync/internal/protocol"
)

// Updater is the downstream of a Throttle. *Dispatcher satisfies it.
type Updater interface {
	UpdateShape(id int64, s protocol.Shape)
}

// Throttle coalesces rapid updates to the same shape, keeping only the
// latest value, and releases them at most once per interval. Pending
// updates go out in the order their shapes were first touched.
type Throttle struct {
	next    Updater
	limiter *rate.Limiter

	mu      sync.Mutex
	pending map[int64]protocol.Shape
	order   []int64
	direct  bool // no pacing: disabled or stopped

	sendMu sync.Mutex // serializes batches so one shape's updates never reorder

	wake     chan struct{}
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewThrottle starts a throttle in front of next. interval <= 0 disables
// coalescing: every update passes straight through.
func NewThrottle(next Updater, interval time.Duration) *Throttle {
	t := &Throttle{
		next:    next,
		pending: make(map[int64]protocol.Shape),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	if interval <= 0 {
		t.direct = true
		close(t.done)
		return t
	}

	t.limiter = rate.NewLimiter(rate.Every(interval), 1)
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	go t.run(ctx)
	return t
}

// UpdateShape records s as the latest state of shape id.
func (t *Throttle) UpdateShape(id int64, s protocol.Shape) {
	t.mu.Lock()
	if t.direct {
		t.mu.Unlock()
		t.sendMu.Lock()
		t.next.UpdateShape(id, s)
		t.sendMu.Unlock()
		return
	}
	if _, ok := t.pending[id]; !ok {
		t.order = append(t.order, id)
	}
	t.pending[id] = s
	t.mu.Unlock()

	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of shapes with an unsent update.
func (t *Throttle) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.order)
}

// Flush sends every pending update now.
func (t *Throttle) Flush() {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	t.flush(false)
}

// flush sends the pending batch; stop also switches to direct mode in the
// same critical section. Callers hold sendMu.
func (t *Throttle) flush(stop bool) {
	t.mu.Lock()
	if stop {
		t.direct = true
	}
	order, pending := t.order, t.pending
	t.order = nil
	t.pending = make(map[int64]protocol.Shape)
	t.mu.Unlock()

	for _, id := range order {
		t.next.UpdateShape(id, pending[id])
	}
}

// Stop ends the pacing loop and flushes what is left. Updates made after
// Stop pass straight through.
func (t *Throttle) Stop() {
	t.stopOnce.Do(func() {
		if t.cancel != nil {
			t.cancel()
		}
		<-t.done

		t.sendMu.Lock()
		defer t.sendMu.Unlock()
		t.flush(true)
	})
}

func (t *Throttle) run(ctx context.Context) {
	defer close(t.done)
	for {
		select {
		case <-t.wake:
		case <-ctx.Done():
			return
		}
		if err := t.limiter.Wait(ctx); err != nil {
			return
		}
		t.Flush()
	}
}
