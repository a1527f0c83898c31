package pgfe

import (
	"context"
	"fmt"
)

const defaultSavepointName = "pgfe_savepoint"

// TransactionGuard is a scoped BEGIN/COMMIT/ROLLBACK (or, nested inside an
// already-open transaction, SAVEPOINT/RELEASE/ROLLBACK TO) helper bound to
// a Connection. Construction issues BEGIN or
// defines a savepoint; Close (typically deferred) rolls back unless
// Commit or Rollback already ran, matching the "destruction attempts a
// rollback" rule. CommitAndChain leaves the guard open over the chained
// transaction (or re-opened savepoint), so Close still rolls that back.
type TransactionGuard struct {
	conn        *Connection
	savepoint   bool
	name        string
	resolved    bool
}

// Begin opens a TransactionGuard on conn: a top-level BEGIN if conn is
// currently idle, or a SAVEPOINT named name (defaultSavepointName if name
// is empty) if conn already holds an uncommitted transaction.
func Begin(ctx context.Context, conn *Connection, name string) (*TransactionGuard, error) {
	if name == "" {
		name = defaultSavepointName
	}
	g := &TransactionGuard{conn: conn, name: name}
	if conn.IsTransactionUncommitted() {
		g.savepoint = true
		if _, err := conn.execControl(ctx, "SAVEPOINT "+name); err != nil {
			return nil, err
		}
		return g, nil
	}
	if err := conn.begin(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

// Commit finalizes the guard's scope: RELEASE SAVEPOINT for a nested
// guard, COMMIT for a top-level one.
func (g *TransactionGuard) Commit(ctx context.Context) error {
	if g.resolved {
		return fmt.Errorf("%w: transaction guard already resolved", ErrInvalidState)
	}
	if g.savepoint {
		if _, err := g.conn.execControl(ctx, "RELEASE SAVEPOINT "+g.name); err != nil {
			return err
		}
		g.resolved = true
		return nil
	}
	if err := g.conn.commit(ctx); err != nil {
		return err
	}
	g.resolved = true
	return nil
}

// CommitAndChain commits with AND CHAIN (top-level only) or, for a
// savepoint guard, releases and immediately re-opens an equivalent
// savepoint so the caller's nested scope continues.
func (g *TransactionGuard) CommitAndChain(ctx context.Context) error {
	if g.resolved {
		return fmt.Errorf("%w: transaction guard already resolved", ErrInvalidState)
	}
	if g.savepoint {
		if _, err := g.conn.execControl(ctx, "RELEASE SAVEPOINT "+g.name); err != nil {
			return err
		}
		if _, err := g.conn.execControl(ctx, "SAVEPOINT "+g.name); err != nil {
			return err
		}
		return nil
	}
	if err := g.conn.commitAndChain(ctx); err != nil {
		return err
	}
	return nil
}

// Rollback undoes the guard's scope explicitly: ROLLBACK TO SAVEPOINT for
// a nested guard, ROLLBACK for a top-level one.
func (g *TransactionGuard) Rollback(ctx context.Context) error {
	if g.resolved {
		return nil
	}
	if g.savepoint {
		_, err := g.conn.execControl(ctx, "ROLLBACK TO SAVEPOINT "+g.name)
		g.resolved = true
		return err
	}
	err := g.conn.rollback(ctx)
	g.resolved = true
	return err
}

// Close attempts a rollback if the guard was never explicitly resolved
// via Commit or Rollback (CommitAndChain does not resolve it). If that
// rollback itself fails, the
// guard disconnects conn rather than leave the session in an
// indeterminate state.
func (g *TransactionGuard) Close(ctx context.Context) error {
	if g.resolved {
		return nil
	}
	if err := g.Rollback(ctx); err != nil {
		_ = g.conn.Disconnect(ctx)
		return err
	}
	return nil
}

// IsSavepoint reports whether this guard is nested (a SAVEPOINT) rather
// than top-level (a BEGIN).
func (g *TransactionGuard) IsSavepoint() bool { return g.savepoint }

// Name returns the savepoint name, meaningful only when IsSavepoint.
func (g *TransactionGuard) Name() string { return g.name }
