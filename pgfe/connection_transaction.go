package pgfe

import (
	"context"
	"fmt"

	"github.com/riftdata/pgfe/data"
)

// TransactionStatus mirrors the server's transaction-status byte closely
// enough for TransactionGuard and callers to reason about recovery: idle,
// inside an open transaction, or inside a transaction a failed command
// has poisoned until ROLLBACK.
type TransactionStatus int

const (
	TransactionIdle TransactionStatus = iota
	TransactionActive
	TransactionFailed
)

// TransactionStatus reports the connection's current transaction state.
func (c *Connection) TransactionStatus() TransactionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txStatus
}

// IsTransactionUncommitted reports whether the session currently holds an
// open (possibly failed) transaction block.
func (c *Connection) IsTransactionUncommitted() bool {
	return c.TransactionStatus() != TransactionIdle
}

// execControl runs a control statement (BEGIN/COMMIT/ROLLBACK/SAVEPOINT/
// RELEASE) outside the extended-query/request-queue machinery used by
// ExecuteNIO: these are always synchronous, never pipelined, and their
// only observable effect besides success/failure is the transaction
// status transition the caller supplies.
func (c *Connection) execControl(ctx context.Context, sql string) (Completion, error) {
	c.mu.Lock()
	raw := c.raw
	ready := c.state == StateConnected && c.queue.Len() == 0
	c.mu.Unlock()
	if !ready {
		return Completion{}, ErrNotReadyForRequest
	}
	res, err := raw.ExecParams(ctx, sql, nil, nil, []int16{int16(data.Text)})
	if err != nil {
		return Completion{}, fmt.Errorf("pgfe: %s: %w", sql, err)
	}
	if res.Err != nil {
		c.mu.Lock()
		if c.txStatus == TransactionActive {
			c.txStatus = TransactionFailed
		}
		c.mu.Unlock()
		return Completion{}, convertServerError(res.Err)
	}
	return NewCompletion(res.CommandTag), nil
}

// begin issues BEGIN, marking the transaction active.
func (c *Connection) begin(ctx context.Context) error {
	if _, err := c.execControl(ctx, "BEGIN"); err != nil {
		return err
	}
	c.mu.Lock()
	c.txStatus = TransactionActive
	c.mu.Unlock()
	return nil
}

// commit issues COMMIT, returning the session to idle.
func (c *Connection) commit(ctx context.Context) error {
	if _, err := c.execControl(ctx, "COMMIT"); err != nil {
		return err
	}
	c.mu.Lock()
	c.txStatus = TransactionIdle
	c.mu.Unlock()
	return nil
}

// commitAndChain issues COMMIT AND CHAIN, which re-opens an equivalent
// transaction atomically; the session stays active.
func (c *Connection) commitAndChain(ctx context.Context) error {
	if _, err := c.execControl(ctx, "COMMIT AND CHAIN"); err != nil {
		return err
	}
	c.mu.Lock()
	c.txStatus = TransactionActive
	c.mu.Unlock()
	return nil
}

// rollback issues ROLLBACK, returning the session to idle even if it was
// failed.
func (c *Connection) rollback(ctx context.Context) error {
	if _, err := c.execControl(ctx, "ROLLBACK"); err != nil {
		return err
	}
	c.mu.Lock()
	c.txStatus = TransactionIdle
	c.mu.Unlock()
	return nil
}
