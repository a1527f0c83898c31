package pgfe

import (
	"context"
	"testing"
)

func TestPoolConnectOpensEverySlot(t *testing.T) {
	p, err := NewPool(3, testOptions(), fakeDialer())
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if p.Size() != 3 {
		t.Fatalf("Size() = %d, want 3", p.Size())
	}
}

func TestPoolLeaseIsExclusive(t *testing.T) {
	p, err := NewPool(1, testOptions(), fakeDialer())
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	ctx := context.Background()
	if err := p.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	lease, ok, err := p.TryConnection(ctx)
	if err != nil || !ok {
		t.Fatalf("TryConnection: ok=%v err=%v", ok, err)
	}
	if !lease.Connection().IsConnected() {
		t.Fatalf("leased connection should be connected")
	}

	if _, ok, err := p.TryConnection(ctx); err != nil {
		t.Fatalf("TryConnection (second): %v", err)
	} else if ok {
		t.Fatalf("TryConnection should report no idle slot while the only slot is leased")
	}

	lease.Close(ctx)

	if _, ok, err := p.TryConnection(ctx); err != nil || !ok {
		t.Fatalf("TryConnection after Close: ok=%v err=%v", ok, err)
	}
}

func TestPoolTryConnectionNonBlockingWhenExhausted(t *testing.T) {
	p, err := NewPool(1, testOptions(), fakeDialer())
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	ctx := context.Background()
	if err := p.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	l1, ok, err := p.TryConnection(ctx)
	if err != nil || !ok {
		t.Fatalf("first lease: ok=%v err=%v", ok, err)
	}
	defer l1.Close(ctx)

	l2, ok, err := p.TryConnection(ctx)
	if err != nil {
		t.Fatalf("TryConnection: %v", err)
	}
	if ok || l2 != nil {
		t.Fatalf("TryConnection should return (nil, false) immediately, not block")
	}
}

func TestPoolDisconnectLeavesOutstandingLeasesValid(t *testing.T) {
	p, err := NewPool(1, testOptions(), fakeDialer())
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	ctx := context.Background()
	if err := p.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	lease, ok, err := p.TryConnection(ctx)
	if err != nil || !ok {
		t.Fatalf("TryConnection: ok=%v err=%v", ok, err)
	}

	p.Disconnect(ctx)

	if !lease.Connection().IsConnected() {
		t.Fatalf("an in-flight lease must remain valid across Disconnect")
	}
	lease.Close(ctx)
	if lease.Connection().IsConnected() {
		t.Fatalf("returning a lease after Disconnect should close it, not recycle it idle")
	}
}
