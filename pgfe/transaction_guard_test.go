package pgfe

import (
	"context"
	"testing"
)

func TestTransactionGuardTopLevelBeginCommit(t *testing.T) {
	ctx := context.Background()
	c := NewConnection(testOptions(), fakeDialer())
	if err := c.Connect(ctx, -1); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	g, err := Begin(ctx, c, "")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if g.IsSavepoint() {
		t.Fatalf("top-level Begin should not be a savepoint")
	}
	if !c.IsTransactionUncommitted() {
		t.Fatalf("connection should report an open transaction after Begin")
	}
	if err := g.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if c.IsTransactionUncommitted() {
		t.Fatalf("connection should be idle after Commit")
	}
}

func TestTransactionGuardNestedUsesSavepoint(t *testing.T) {
	ctx := context.Background()
	c := NewConnection(testOptions(), fakeDialer())
	if err := c.Connect(ctx, -1); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	outer, err := Begin(ctx, c, "")
	if err != nil {
		t.Fatalf("Begin outer: %v", err)
	}
	inner, err := Begin(ctx, c, "")
	if err != nil {
		t.Fatalf("Begin inner: %v", err)
	}
	if !inner.IsSavepoint() {
		t.Fatalf("Begin inside an open transaction should produce a savepoint guard")
	}
	if err := inner.Rollback(ctx); err != nil {
		t.Fatalf("Rollback inner: %v", err)
	}
	if !c.IsTransactionUncommitted() {
		t.Fatalf("rolling back the inner savepoint must preserve the outer transaction")
	}
	if err := outer.Commit(ctx); err != nil {
		t.Fatalf("Commit outer: %v", err)
	}
	if c.IsTransactionUncommitted() {
		t.Fatalf("connection should be idle once the outer guard commits")
	}
}

func TestTransactionGuardCloseRollsBackUnresolvedScope(t *testing.T) {
	ctx := context.Background()
	c := NewConnection(testOptions(), fakeDialer())
	if err := c.Connect(ctx, -1); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	g, err := Begin(ctx, c, "")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := g.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if c.IsTransactionUncommitted() && c.IsConnected() {
		t.Fatalf("after scope exit the connection must have no open transaction or be disconnected")
	}
}

func TestTransactionGuardCommitAndChainReopens(t *testing.T) {
	ctx := context.Background()
	c := NewConnection(testOptions(), fakeDialer())
	if err := c.Connect(ctx, -1); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	g, err := Begin(ctx, c, "")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := g.CommitAndChain(ctx); err != nil {
		t.Fatalf("CommitAndChain: %v", err)
	}
	if !c.IsTransactionUncommitted() {
		t.Fatalf("CommitAndChain should immediately re-open an equivalent transaction")
	}
}
