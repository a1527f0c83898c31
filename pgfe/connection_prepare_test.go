package pgfe

import (
	"context"
	"errors"
	"testing"

	"github.com/riftdata/pgfe/internal/driver"
)

func TestPrepareRegistersDescribedHandle(t *testing.T) {
	fc := newFakeConn()
	fc.responses["select $1::int as n"] = &driver.Result{
		Fields:    []driver.FieldDescriptor{{Name: "n", TypeOID: 23}},
		ParamOIDs: []uint32{23},
	}
	c := NewConnection(testOptions(), dialerFor(fc))
	if err := c.Connect(context.Background(), -1); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect(context.Background())

	ps, err := c.Prepare(context.Background(), "select $1::int as n", "q1")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if !ps.IsDescribed() {
		t.Fatalf("handle should be described after prepare completes")
	}
	info, ok := ps.RowInfo()
	if !ok || info.FieldCount() != 1 || info.Field(0).Name != "n" {
		t.Fatalf("RowInfo = %+v, %v; want one field named n", info, ok)
	}
	if oid, ok := ps.ParameterTypeOID(0); !ok || oid != 23 {
		t.Fatalf("ParameterTypeOID(0) = %d, %v; want 23", oid, ok)
	}
	if _, ok := c.PreparedStatementByName("q1"); !ok {
		t.Fatalf("registry should expose the handle by name")
	}
}

func TestPreparedStatementInvalidatedByReconnect(t *testing.T) {
	c := NewConnection(testOptions(), fakeDialer())
	if err := c.Connect(context.Background(), -1); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	ps, err := c.Prepare(context.Background(), "select 1", "q1")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if !ps.IsValid() {
		t.Fatalf("fresh handle should be valid")
	}
	if err := c.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if err := c.Connect(context.Background(), -1); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if ps.IsValid() {
		t.Fatalf("handle must be invalid once the session epoch advances")
	}
	if err := c.ExecutePreparedNIO(context.Background(), ps); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("ExecutePreparedNIO on a stale handle = %v, want ErrInvalidState", err)
	}
}

func TestUnprepareRemovesHandle(t *testing.T) {
	c := NewConnection(testOptions(), fakeDialer())
	if err := c.Connect(context.Background(), -1); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect(context.Background())

	ps, err := c.Prepare(context.Background(), "select 1", "q1")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := c.Unprepare(context.Background(), "q1"); err != nil {
		t.Fatalf("Unprepare: %v", err)
	}
	if ps.IsValid() {
		t.Fatalf("handle must be invalid after unprepare")
	}
	if _, ok := c.PreparedStatementByName("q1"); ok {
		t.Fatalf("registry must not expose an unprepared name")
	}
	if err := c.UnprepareNIO(context.Background(), ""); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("UnprepareNIO(\"\") = %v, want ErrEmptyName", err)
	}
}

func TestPreparsedStatementRejectsOutOfRangeBind(t *testing.T) {
	c := NewConnection(testOptions(), fakeDialer())
	if err := c.Connect(context.Background(), -1); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect(context.Background())

	stmt := mustParse(t, "select $1, :age")
	ps, err := c.Prepare(context.Background(), stmt, "q1")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if !ps.IsPreparsed() {
		t.Fatalf("a handle prepared from a Statement should be preparsed")
	}
	if got := ps.ParameterCount(); got != 2 {
		t.Fatalf("ParameterCount = %d, want 2", got)
	}
	if err := ps.BindIndex(1, 42); err != nil {
		t.Fatalf("BindIndex(1): %v", err)
	}
	if err := ps.BindName("age", 42); err != nil {
		t.Fatalf("BindName(age): %v", err)
	}
	if err := ps.BindIndex(2, 1); !errors.Is(err, ErrInvalidParameterPosition) {
		t.Fatalf("BindIndex past a preparsed schema = %v, want ErrInvalidParameterPosition", err)
	}
}

func TestInvokeRejectsNamedBeforePositional(t *testing.T) {
	c := NewConnection(testOptions(), fakeDialer())
	if err := c.Connect(context.Background(), -1); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect(context.Background())

	_, err := c.Invoke(context.Background(), "f",
		NamedArg{Name: "a", Value: 1},
		NamedArg{Value: 2},
	)
	if !errors.Is(err, ErrInvalidArgumentOrder) {
		t.Fatalf("Invoke = %v, want ErrInvalidArgumentOrder", err)
	}
}
