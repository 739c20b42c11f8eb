package app

import (
	"slices"
	"sync"

	"github.com/1ureka/drawsync/internal/protocol"
)

// Board is an in-memory canvas. It keeps shapes in insertion order, the
// pan offset, and which shapes were finalized. Local edits and remote
// operations both land here.
type Board struct {
	mu        sync.Mutex
	order     []int64
	shapes    map[int64]protocol.Shape
	finalized map[int64]bool
	offset    protocol.Point

	onChange func()
}

func NewBoard() *Board {
	return &Board{
		shapes:    make(map[int64]protocol.Shape),
		finalized: make(map[int64]bool),
	}
}

// OnChange sets fn to run after every mutation. fn runs without the board
// lock held.
func (b *Board) OnChange(fn func()) {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
}

// InitShapes replaces the whole board.
func (b *Board) InitShapes(shapes []protocol.Shape) {
	b.mu.Lock()
	b.order = b.order[:0]
	clear(b.shapes)
	clear(b.finalized)
	for _, s := range shapes {
		b.mergeLocked(s)
	}
	b.mu.Unlock()
	b.changed()
}

// MergeShape inserts s or replaces the shape with the same id in place.
func (b *Board) MergeShape(s protocol.Shape) {
	b.mu.Lock()
	b.mergeLocked(s)
	b.mu.Unlock()
	b.changed()
}

func (b *Board) mergeLocked(s protocol.Shape) {
	id := s.ShapeID()
	if _, ok := b.shapes[id]; !ok {
		b.order = append(b.order, id)
	}
	b.shapes[id] = s
}

func (b *Board) RemoveShapes(ids []int64) {
	b.mu.Lock()
	for _, id := range ids {
		delete(b.shapes, id)
		delete(b.finalized, id)
	}
	b.order = slices.DeleteFunc(b.order, func(id int64) bool {
		_, ok := b.shapes[id]
		return !ok
	})
	b.mu.Unlock()
	b.changed()
}

// FinalizeShape marks id as done being drawn. Unknown ids are ignored.
func (b *Board) FinalizeShape(id int64) {
	b.mu.Lock()
	_, ok := b.shapes[id]
	if ok {
		b.finalized[id] = true
	}
	b.mu.Unlock()
	if ok {
		b.changed()
	}
}

func (b *Board) Pan(offset protocol.Point) {
	b.mu.Lock()
	b.offset = offset
	b.mu.Unlock()
	b.changed()
}

// Shape returns the shape with the given id.
func (b *Board) Shape(id int64) (protocol.Shape, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.shapes[id]
	return s, ok
}

// Shapes returns every shape in insertion order.
func (b *Board) Shapes() []protocol.Shape {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]protocol.Shape, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.shapes[id])
	}
	return out
}

func (b *Board) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.order)
}

func (b *Board) Finalized(id int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.finalized[id]
}

func (b *Board) Offset() protocol.Point {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.offset
}

func (b *Board) changed() {
	b.mu.Lock()
	fn := b.onChange
	b.mu.Unlock()
	if fn != nil {
		fn()
	}
}
