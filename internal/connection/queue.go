package connection

// queue is the FIFO of serialized messages awaiting a healthy socket. It is
// never reordered or deduplicated. Not safe for concurrent use; the owning
// Connection's mutex guards it.
type queue struct {
	items []string
}

func (q *queue) push(msg string) { q.items = append(q.items, msg) }

func (q *queue) len() int { return len(q.items) }

func (q *queue) peek() string { return q.items[0] }

func (q *queue) pop() {
	q.items[0] = ""
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
}

// prepend puts msgs ahead of everything already queued, keeping their order.
func (q *queue) prepend(msgs []string) {
	if len(msgs) == 0 {
		return
	}
	q.items = append(append(make([]string, 0, len(msgs)+len(q.items)), msgs...), q.items...)
}

func (q *queue) snapshot() []string { return append([]string(nil), q.items...) }

func (q *queue) drain() []string {
	items := q.items
	q.items = nil
	return items
}
