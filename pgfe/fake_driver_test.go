package pgfe

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/riftdata/pgfe/internal/driver"
)

// fakeConn is a minimal in-memory driver.Conn used to exercise Connection,
// Pool and TransactionGuard without a real server, the same role a hand
// rolled stub plays against an interface boundary in any table-driven Go
// test suite.
type fakeConn struct {
	closed bool

	// responses, keyed by exact sql text, lets a test script a response
	// for a specific statement (ExecParams, Prepare and Exec consult it); control statements (BEGIN/COMMIT/...)
	// get a sensible default tag when no override is present.
	responses map[string]*driver.Result

	// copyOut is streamed to the writer on CopyTo; copyIn collects what
	// CopyFrom reads.
	copyOut []byte
	copyIn  []byte

	notice       driver.NoticeHandler
	notification driver.NotificationHandler
}

func newFakeConn() *fakeConn {
	return &fakeConn{responses: make(map[string]*driver.Result)}
}

func (f *fakeConn) Close(ctx context.Context) error { f.closed = true; return nil }
func (f *fakeConn) IsClosed() bool                  { return f.closed }
func (f *fakeConn) PID() uint32                     { return 4242 }

func (f *fakeConn) SetNoticeHandler(h driver.NoticeHandler)             { f.notice = h }
func (f *fakeConn) SetNotificationHandler(h driver.NotificationHandler) { f.notification = h }

func (f *fakeConn) ExecParams(ctx context.Context, sql string, paramValues [][]byte, paramFormats, resultFormats []int16) (*driver.Result, error) {
	if res, ok := f.responses[sql]; ok {
		return res, nil
	}
	return &driver.Result{CommandTag: controlTag(sql)}, nil
}

func (f *fakeConn) Prepare(ctx context.Context, name, sql string) (*driver.Result, error) {
	if res, ok := f.responses[sql]; ok {
		return res, nil
	}
	return &driver.Result{}, nil
}

func (f *fakeConn) Describe(ctx context.Context, name string) (*driver.Result, error) {
	return &driver.Result{}, nil
}

func (f *fakeConn) ExecPrepared(ctx context.Context, name string, paramValues [][]byte, paramFormats, resultFormats []int16) (*driver.Result, error) {
	return &driver.Result{}, nil
}

func (f *fakeConn) Unprepare(ctx context.Context, name string) error { return nil }

func (f *fakeConn) Exec(ctx context.Context, sql string) (*driver.Result, error) {
	if res, ok := f.responses[sql]; ok {
		return res, nil
	}
	return &driver.Result{CommandTag: controlTag(sql)}, nil
}

func (f *fakeConn) CopyFrom(ctx context.Context, r io.Reader, sql string) (string, error) {
	in, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.copyIn = in
	return fmt.Sprintf("COPY %d", strings.Count(string(in), "\n")), nil
}

func (f *fakeConn) CopyTo(ctx context.Context, w io.Writer, sql string) (string, error) {
	if _, err := w.Write(f.copyOut); err != nil {
		return "", err
	}
	return fmt.Sprintf("COPY %d", strings.Count(string(f.copyOut), "\n")), nil
}

func (f *fakeConn) EscapeLiteral(s string) (string, error) {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'", nil
}

func (f *fakeConn) EscapeIdentifier(s string) (string, error) {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`, nil
}

func (f *fakeConn) EscapeBytea(b []byte) (string, error) {
	return "\\x" + string(b), nil
}

// controlTag derives the command tag a real server would send back for a
// transaction-control statement, so TransactionGuard's status tracking
// can be exercised without a live connection.
func controlTag(sql string) string {
	switch {
	case sql == "BEGIN":
		return "BEGIN"
	case sql == "COMMIT" || sql == "COMMIT AND CHAIN":
		return "COMMIT"
	case sql == "ROLLBACK":
		return "ROLLBACK"
	case strings.HasPrefix(sql, "SAVEPOINT "):
		return "SAVEPOINT"
	case strings.HasPrefix(sql, "RELEASE SAVEPOINT"):
		return "RELEASE"
	case strings.HasPrefix(sql, "ROLLBACK TO SAVEPOINT"):
		return "ROLLBACK"
	default:
		return "SELECT 0"
	}
}

// fakeDialer returns a driver.Dialer that always hands out a fresh
// fakeConn, ignoring the connection string (tests have no real server).
func fakeDialer() driver.Dialer {
	return func(ctx context.Context, connString string) (driver.Conn, error) {
		return newFakeConn(), nil
	}
}

// dialerFor returns a Dialer that always hands out exactly fc, letting a
// test script responses on it before or after connecting.
func dialerFor(fc *fakeConn) driver.Dialer {
	return func(ctx context.Context, connString string) (driver.Conn, error) {
		return fc, nil
	}
}

// rowResult builds a scripted single-result response: one text column per
// name in cols, one row per entry in rows.
func rowResult(tag string, cols []string, rows ...[]string) *driver.Result {
	res := &driver.Result{CommandTag: tag}
	for _, name := range cols {
		res.Fields = append(res.Fields, driver.FieldDescriptor{Name: name})
	}
	for _, r := range rows {
		row := make([][]byte, len(r))
		for i, cell := range r {
			row[i] = []byte(cell)
		}
		res.Rows = append(res.Rows, row)
	}
	return res
}

func testOptions() Options {
	o := NewOptions()
	o.NetAddress = "127.0.0.1"
	return o
}
