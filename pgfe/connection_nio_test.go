package pgfe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/riftdata/pgfe/internal/driver"
)

func TestConnectNIOAdvancesThroughEstablishment(t *testing.T) {
	release := make(chan struct{})
	dial := func(ctx context.Context, connString string) (driver.Conn, error) {
		<-release
		return newFakeConn(), nil
	}
	c := NewConnection(testOptions(), dial)

	if err := c.ConnectNIO(context.Background()); err != nil {
		t.Fatalf("ConnectNIO: %v", err)
	}
	if s := c.State(); s != StateEstablishmentWriting {
		t.Fatalf("state after first ConnectNIO = %v, want StateEstablishmentWriting", s)
	}
	if r := c.SocketReadiness(); r != ReadinessWriting {
		t.Fatalf("SocketReadiness = %v, want ReadinessWriting", r)
	}

	// While the dial is in flight, repeated polls alternate phases and
	// never block.
	if err := c.ConnectNIO(context.Background()); err != nil {
		t.Fatalf("ConnectNIO poll: %v", err)
	}
	if s := c.State(); s != StateEstablishmentReading {
		t.Fatalf("state after poll = %v, want StateEstablishmentReading", s)
	}

	close(release)
	deadline := time.Now().Add(time.Second)
	for c.State() != StateConnected {
		if time.Now().After(deadline) {
			t.Fatalf("connection never reached StateConnected")
		}
		if err := c.ConnectNIO(context.Background()); err != nil {
			t.Fatalf("ConnectNIO: %v", err)
		}
	}
	if c.SocketReadiness() != ReadinessOK {
		t.Fatalf("SocketReadiness after connect = %v, want ReadinessOK", c.SocketReadiness())
	}
	_ = c.Disconnect(context.Background())
}

func TestConnectNIODialFailureLandsInFailureState(t *testing.T) {
	dial := func(ctx context.Context, connString string) (driver.Conn, error) {
		return nil, errors.New("refused")
	}
	c := NewConnection(testOptions(), dial)
	if err := c.ConnectNIO(context.Background()); err != nil {
		t.Fatalf("ConnectNIO: %v", err)
	}
	var lastErr error
	deadline := time.Now().Add(time.Second)
	for c.State() != StateFailure {
		if time.Now().After(deadline) {
			t.Fatalf("connection never reached StateFailure")
		}
		lastErr = c.ConnectNIO(context.Background())
	}
	if lastErr == nil {
		t.Fatalf("expected the failing poll to report the dial error")
	}
	if c.SocketReadiness() != ReadinessFailed {
		t.Fatalf("SocketReadiness = %v, want ReadinessFailed", c.SocketReadiness())
	}

	// A failed connection may be retried: the next ConnectNIO restarts
	// establishment.
	if err := c.ConnectNIO(context.Background()); err != nil {
		t.Fatalf("ConnectNIO retry: %v", err)
	}
	if s := c.State(); s != StateEstablishmentWriting {
		t.Fatalf("state after retry = %v, want StateEstablishmentWriting", s)
	}
}

func TestConnectTimesOutAgainstStalledDial(t *testing.T) {
	dial := func(ctx context.Context, connString string) (driver.Conn, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	c := NewConnection(testOptions(), dial)
	err := c.Connect(context.Background(), 20*time.Millisecond)
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("Connect = %v, want ErrTimedOut", err)
	}
}

func TestReadInputDetectsLostConnection(t *testing.T) {
	fc := newFakeConn()
	c := NewConnection(testOptions(), dialerFor(fc))
	if err := c.Connect(context.Background(), -1); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.ReadInput(); err != nil {
		t.Fatalf("ReadInput on a live connection: %v", err)
	}
	fc.closed = true
	if err := c.ReadInput(); !errors.Is(err, ErrConnectionLost) {
		t.Fatalf("ReadInput = %v, want ErrConnectionLost", err)
	}
	if c.State() != StateFailure {
		t.Fatalf("state after lost connection = %v, want StateFailure", c.State())
	}
}

func TestFlushOutputRequiresConnection(t *testing.T) {
	c := NewConnection(testOptions(), fakeDialer())
	if err := c.FlushOutput(true); !errors.Is(err, ErrNotReadyForRequest) {
		t.Fatalf("FlushOutput while disconnected = %v, want ErrNotReadyForRequest", err)
	}
	if err := c.Connect(context.Background(), -1); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.FlushOutput(false); err != nil {
		t.Fatalf("FlushOutput: %v", err)
	}
	if !c.IsOutputFlushed() {
		t.Fatalf("IsOutputFlushed should hold after FlushOutput")
	}
}
