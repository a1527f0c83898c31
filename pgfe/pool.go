package pgfe

import (
	"context"
	"fmt"
	"sync"

	"github.com/riftdata/pgfe/internal/driver"
	"github.com/riftdata/pgfe/pkg/logger"
)

// poolSlot is one fixed entry in a Pool: a Connection plus the in-use bit
// protected by the Pool's mutex.
type poolSlot struct {
	conn   *Connection
	inUse  bool
	failed bool // the connection transitioned to StateFailure; reopen lazily on next checkout
}

// Pool is a fixed-size array of Connections leased to callers via Lease.
// The Pool itself is safe for concurrent checkout/return; a leased
// Connection is not and must be confined to its lease holder.
type Pool struct {
	mu          sync.Mutex
	cond        *sync.Cond
	options     Options
	dial        driver.Dialer
	slots       []*poolSlot
	disconnected bool
	outstanding  int // leak-detection marker: leases alive when Close runs
}

// NewPool builds a Pool of size idle, disconnected slots sharing options.
// size must be >= 1.
func NewPool(size int, options Options, dial driver.Dialer) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: pool size must be >= 1, got %d", ErrBadOptions, size)
	}
	p := &Pool{options: options, dial: dial, slots: make([]*poolSlot, size)}
	p.cond = sync.NewCond(&p.mu)
	for i := range p.slots {
		p.slots[i] = &poolSlot{conn: NewConnection(options, dial)}
	}
	return p, nil
}

// Connect eagerly opens every slot, aggregating per-slot failures into a
// single error rather than stopping at the first one.
func (p *Pool) Connect(ctx context.Context) error {
	p.mu.Lock()
	slots := append([]*poolSlot(nil), p.slots...)
	p.mu.Unlock()

	var firstErr error
	failures := 0
	for i, s := range slots {
		if err := s.conn.Connect(ctx, -1); err != nil {
			failures++
			if firstErr == nil {
				firstErr = fmt.Errorf("pgfe: pool slot %d: %w", i, err)
			}
			logger.Warn("pool slot failed to connect", "slot", i, "err", err)
		}
	}
	if failures > 0 {
		return fmt.Errorf("pgfe: pool.Connect: %d/%d slots failed: %w", failures, len(slots), firstErr)
	}
	return nil
}

// Disconnect initiates shutdown of every idle slot immediately; slots
// currently leased are left alone and are closed, not reopened, when
// their lease is returned.
func (p *Pool) Disconnect(ctx context.Context) {
	p.mu.Lock()
	p.disconnected = true
	idle := make([]*poolSlot, 0, len(p.slots))
	for _, s := range p.slots {
		if !s.inUse {
			idle = append(idle, s)
		}
	}
	p.mu.Unlock()

	for _, s := range idle {
		_ = s.conn.Disconnect(ctx)
	}
}

// Lease is a scoped handle on an exclusively checked-out Connection.
// Destruction (Close) returns the slot to the pool.
type Lease struct {
	pool *Pool
	slot *poolSlot
	used bool
}

// Connection returns the leased Connection for the duration of the
// Lease's scope. Calling it after Close is a programmer error.
func (l *Lease) Connection() *Connection {
	return l.slot.conn
}

// Close returns the slot to the pool. If the pool has been disconnected
// in the meantime the underlying Connection is closed rather than
// recycled idle.
func (l *Lease) Close(ctx context.Context) {
	if l.used {
		return
	}
	l.used = true
	p := l.pool
	s := l.slot

	p.mu.Lock()
	s.failed = s.conn.State() == StateFailure
	s.inUse = false
	p.outstanding--
	disconnected := p.disconnected
	p.mu.Unlock()
	p.cond.Signal()

	if disconnected {
		_ = s.conn.Disconnect(ctx)
	}
}

// Connection returns an exclusive Lease on some idle slot, connecting or
// reconnecting it first if needed (lazy reopen of a previously failed
// slot). It blocks until a slot is free.
func (p *Pool) Connection(ctx context.Context) (*Lease, error) {
	p.mu.Lock()
	for {
		if s := p.findIdleLocked(); s != nil {
			s.inUse = true
			p.outstanding++
			p.mu.Unlock()
			if err := p.reopenIfNeeded(ctx, s); err != nil {
				p.mu.Lock()
				s.inUse = false
				p.outstanding--
				p.mu.Unlock()
				p.cond.Signal()
				return nil, err
			}
			return &Lease{pool: p, slot: s}, nil
		}
		p.cond.Wait()
	}
}

// TryConnection is the non-blocking variant of Connection: it returns
// immediately with a false second value if no slot is free.
func (p *Pool) TryConnection(ctx context.Context) (*Lease, bool, error) {
	p.mu.Lock()
	s := p.findIdleLocked()
	if s == nil {
		p.mu.Unlock()
		return nil, false, nil
	}
	s.inUse = true
	p.outstanding++
	p.mu.Unlock()

	if err := p.reopenIfNeeded(ctx, s); err != nil {
		p.mu.Lock()
		s.inUse = false
		p.outstanding--
		p.mu.Unlock()
		p.cond.Signal()
		return nil, true, err
	}
	return &Lease{pool: p, slot: s}, true, nil
}

// findIdleLocked returns an idle slot, if any. Caller holds p.mu.
func (p *Pool) findIdleLocked() *poolSlot {
	for _, s := range p.slots {
		if !s.inUse {
			return s
		}
	}
	return nil
}

func (p *Pool) reopenIfNeeded(ctx context.Context, s *poolSlot) error {
	if s.conn.IsConnected() {
		return nil
	}
	if err := s.conn.Connect(ctx, -1); err != nil {
		return fmt.Errorf("pgfe: pool: reopening slot: %w", err)
	}
	return nil
}

// Size returns the number of slots the pool was constructed with.
func (p *Pool) Size() int {
	return len(p.slots)
}

// Outstanding returns the number of leases currently checked out, used by
// Close to warn about leaks.
func (p *Pool) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outstanding
}

// Close disconnects every slot. If leases are still outstanding it logs a
// warning (the pool's leak-detection marker) rather than blocking forever
// for them to return.
func (p *Pool) Close(ctx context.Context) {
	p.Disconnect(ctx)
	if n := p.Outstanding(); n > 0 {
		logger.Warn("pool closed with leases still outstanding", "count", n)
	}
}
