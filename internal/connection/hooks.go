package connection

import (
	"slices"
	"sync"

	"github.com/1ureka/drawsync/internal/util"
)

// hookList is an ordered list of callbacks. Callbacks run in registration
// order; the func returned by add removes exactly that registration.
type hookList[F any] struct {
	mu      sync.Mutex
	nextID  uint64
	entries []hookEntry[F]
}

type hookEntry[F any] struct {
	id uint64
	fn F
}

func (l *hookList[F]) add(fn F) func() {
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	l.entries = append(l.entries, hookEntry[F]{id: id, fn: fn})
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.entries = slices.DeleteFunc(l.entries, func(e hookEntry[F]) bool { return e.id == id })
			l.mu.Unlock()
		})
	}
}

func (l *hookList[F]) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// each invokes call for every registered callback, on a snapshot taken
// before the first call. A panicking callback is logged and skipped.
func (l *hookList[F]) each(name string, call func(F)) {
	l.mu.Lock()
	fns := make([]F, len(l.entries))
	for i, e := range l.entries {
		fns[i] = e.fn
	}
	l.mu.Unlock()

	for _, fn := range fns {
		invoke(name, fn, call)
	}
}

func invoke[F any](name string, fn F, call func(F)) {
	defer func() {
		if r := recover(); r != nil {
			util.LogError("%s hook panicked: %v", name, r)
		}
	}()
	call(fn)
}
