// Package reqqueue implements the client-side request descriptor FIFO a
// Connection uses to demultiplex server responses.
package reqqueue

// Kind classifies what a pending request expects back from the server.
type Kind int

const (
	// KindExecute expects zero or more Rows followed by a terminal
	// Completion/Error/EmptyQuery; intermediate rows do not pop it.
	KindExecute Kind = iota
	// KindPrepare expects a ParseComplete (or error).
	KindPrepare
	// KindDescribe expects a ParameterDescription + RowDescription (or
	// NoData), then the Connection synthesizes its Completion.
	KindDescribe
	// KindUnprepare expects the command completion of a DEALLOCATE.
	KindUnprepare
	// KindSync expects ReadyForQuery and pops only on that response,
	// regardless of what else arrived first.
	KindSync
	// KindFlush expects no response of its own; it forces the server to
	// flush pending output.
	KindFlush
)

// Descriptor is one entry in the queue: what was sent and enough context
// to compose a synthetic Completion once it resolves.
type Descriptor struct {
	Kind Kind
	Name string // statement/portal name, for Prepare/Describe/Unprepare
}

// Queue is a plain FIFO; the Connection owning it is single-goroutine,
// so no internal locking is needed (mirrors the lease-confinement
// invariant of Pool: a Connection is never shared across goroutines).
type Queue struct {
	items []Descriptor
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{}
}

// Push enqueues d at the back.
func (q *Queue) Push(d Descriptor) {
	q.items = append(q.items, d)
}

// Front returns the descriptor currently being demultiplexed and whether
// the queue is non-empty.
func (q *Queue) Front() (Descriptor, bool) {
	if len(q.items) == 0 {
		return Descriptor{}, false
	}
	return q.items[0], true
}

// Pop removes the front descriptor. Calling it on an empty queue is a
// programmer error and panics.
func (q *Queue) Pop() Descriptor {
	d := q.items[0]
	q.items = q.items[1:]
	return d
}

// PopBackRollback removes the most recently pushed descriptor, used to
// roll back a queue push after a failed send.
func (q *Queue) PopBackRollback() {
	if len(q.items) == 0 {
		return
	}
	q.items = q.items[:len(q.items)-1]
}

// Len returns the queue size.
func (q *Queue) Len() int {
	return len(q.items)
}

// HasUncompleted reports whether any request is outstanding.
func (q *Queue) HasUncompleted() bool {
	return len(q.items) > 0
}

// PopSync removes the first KindSync descriptor found scanning from the
// front, used when a ReadyForQuery arrives while earlier queue entries
// (e.g. a still-streaming copy) have not yet resolved on their own. In the
// common case the sync descriptor is the front entry.
func (q *Queue) PopSync() (Descriptor, bool) {
	for i, d := range q.items {
		if d.Kind == KindSync {
			q.items = append(q.items[:i:i], q.items[i+1:]...)
			return d, true
		}
	}
	return Descriptor{}, false
}
