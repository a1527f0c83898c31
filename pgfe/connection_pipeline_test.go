package pgfe

import (
	"context"
	"errors"
	"testing"

	"github.com/riftdata/pgfe/internal/driver"
)

func pipelineConn(t *testing.T) (*Connection, *fakeConn) {
	t.Helper()
	fc := newFakeConn()
	c := NewConnection(testOptions(), dialerFor(fc))
	if err := c.Connect(context.Background(), -1); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.SetPipelineEnabled(true); err != nil {
		t.Fatalf("SetPipelineEnabled: %v", err)
	}
	return c, fc
}

func mustParse(t *testing.T, sql string) Statement {
	t.Helper()
	s, _, err := Parse(sql)
	if err != nil {
		t.Fatalf("Parse(%q): %v", sql, err)
	}
	return s
}

func TestPipelineQueueHoldsAllDescriptorsUntilSyncDrains(t *testing.T) {
	c, _ := pipelineConn(t)
	defer c.Disconnect(context.Background())

	ctx := context.Background()
	stmts := []string{
		"create temp table num(id int, str text)",
		"insert into num values (1, 'one')",
		"insert into num values (2, 'two')",
		"insert into num values (3, 'three')",
	}
	for _, sql := range stmts {
		if err := c.ExecuteNIO(ctx, mustParse(t, sql)); err != nil {
			t.Fatalf("ExecuteNIO(%q): %v", sql, err)
		}
	}
	c.SendSync()

	if size := c.RequestQueueSize(); size != 5 {
		t.Fatalf("request queue size = %d, want 5 (four executes plus the sync)", size)
	}

	for i := 0; i < 4; i++ {
		if _, err := c.ProcessResponses(nil); err != nil {
			t.Fatalf("ProcessResponses %d: %v", i, err)
		}
	}
	completion, err := c.ProcessResponses(nil)
	if err != nil {
		t.Fatalf("ProcessResponses for sync: %v", err)
	}
	if completion.Operation() != "SYNC" {
		t.Fatalf("sync completion operation = %q, want SYNC", completion.Operation())
	}
	if size := c.RequestQueueSize(); size != 0 {
		t.Fatalf("request queue size after drain = %d, want 0", size)
	}
	if c.Pipeline() != PipelineEnabled {
		t.Fatalf("pipeline should remain enabled after a clean sync")
	}
}

func TestPipelineErrorAbortsUntilNextSync(t *testing.T) {
	c, fc := pipelineConn(t)
	defer c.Disconnect(context.Background())
	ctx := context.Background()

	fc.responses["select oops"] = &driver.Result{
		Err: &driver.ServerError{Severity: "ERROR", Code: "42703", Message: "column does not exist"},
	}

	for _, sql := range []string{"select 1", "select oops", "select 3"} {
		if err := c.ExecuteNIO(ctx, mustParse(t, sql)); err != nil {
			t.Fatalf("ExecuteNIO(%q): %v", sql, err)
		}
	}
	c.SendSync()

	if _, err := c.ProcessResponses(nil); err != nil {
		t.Fatalf("first response should succeed: %v", err)
	}

	_, err := c.ProcessResponses(nil)
	var se *ServerError
	if !errors.As(err, &se) || se.Code != "42703" {
		t.Fatalf("second response = %v, want server error 42703", err)
	}
	if c.Pipeline() != PipelineAborted {
		t.Fatalf("pipeline status = %v, want PipelineAborted", c.Pipeline())
	}

	// While aborted, new request issuance is refused.
	if err := c.ExecuteNIO(ctx, mustParse(t, "select 4")); !errors.Is(err, ErrNotReadyForRequest) {
		t.Fatalf("ExecuteNIO while aborted = %v, want ErrNotReadyForRequest", err)
	}

	// The third statement's response is discarded; the next processed
	// response is the ReadyForQuery, which recovers the pipeline.
	completion, err := c.ProcessResponses(nil)
	if err != nil {
		t.Fatalf("draining to sync: %v", err)
	}
	if completion.Operation() != "SYNC" {
		t.Fatalf("completion after abort = %q, want SYNC", completion.Operation())
	}
	if c.Pipeline() != PipelineEnabled {
		t.Fatalf("pipeline status after sync = %v, want PipelineEnabled", c.Pipeline())
	}
	if size := c.RequestQueueSize(); size != 0 {
		t.Fatalf("request queue size after recovery = %d, want 0", size)
	}

	if err := c.ExecuteNIO(ctx, mustParse(t, "select 4")); err != nil {
		t.Fatalf("ExecuteNIO after recovery: %v", err)
	}
	c.SendSync()
	if _, err := c.ProcessResponses(nil); err != nil {
		t.Fatalf("ProcessResponses after recovery: %v", err)
	}
}

func TestPipelineRowsArriveInRequestOrder(t *testing.T) {
	c, fc := pipelineConn(t)
	defer c.Disconnect(context.Background())
	ctx := context.Background()

	fc.responses["select * from num"] = rowResult("SELECT 3",
		[]string{"id", "str"},
		[]string{"1", "one"}, []string{"2", "two"}, []string{"3", "three"})

	if err := c.ExecuteNIO(ctx, mustParse(t, "select * from num")); err != nil {
		t.Fatalf("ExecuteNIO: %v", err)
	}
	c.SendSync()

	var got [][2]string
	completion, err := c.ProcessResponses(func(row Row) RowProcessingVerdict {
		got = append(got, [2]string{row.Data(0).String(), row.Data(1).String()})
		return RowProcessingContinue
	})
	if err != nil {
		t.Fatalf("ProcessResponses: %v", err)
	}
	if completion.Operation() != "SELECT" {
		t.Fatalf("completion operation = %q, want SELECT", completion.Operation())
	}
	want := [][2]string{{"1", "one"}, {"2", "two"}, {"3", "three"}}
	if len(got) != len(want) {
		t.Fatalf("row count = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("row %d = %v, want %v", i, got[i], want[i])
		}
	}
	if err := c.WaitReadyForQuery(0); err != nil {
		t.Fatalf("WaitReadyForQuery: %v", err)
	}
	if size := c.RequestQueueSize(); size != 0 {
		t.Fatalf("request queue size = %d, want 0", size)
	}
}

func TestSendFlushShipsBufferedRequestsWithoutSync(t *testing.T) {
	c, _ := pipelineConn(t)
	defer c.Disconnect(context.Background())
	ctx := context.Background()

	if err := c.ExecuteNIO(ctx, mustParse(t, "select 1")); err != nil {
		t.Fatalf("ExecuteNIO: %v", err)
	}
	c.SendFlush()

	if _, err := c.ProcessResponses(nil); err != nil {
		t.Fatalf("ProcessResponses after flush: %v", err)
	}
	if size := c.RequestQueueSize(); size != 0 {
		t.Fatalf("request queue size = %d, want 0", size)
	}
}
