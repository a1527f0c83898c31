package pgfe

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/riftdata/pgfe/data"
)

// LargeObjectMode is a bitmask of INV_READ/INV_WRITE, matching libpq's
// lo_open mode argument.
type LargeObjectMode int

const (
	LargeObjectWriting LargeObjectMode = 0x20000
	LargeObjectReading LargeObjectMode = 0x40000
)

// Seek whence values, matching lo_lseek64's (and io.Seeker's) contract.
const (
	SeekBegin   = 0
	SeekCurrent = 1
	SeekEnd     = 2
)

// LargeObject streams a BLOB via the SQL-callable lo_* functions
// (pgconn's public API has no fast-path function-call sub-protocol, so
// every operation here is an ordinary ExecParams round trip). The handle
// is scoped to the transaction it was
// opened in: the server closes every descriptor at transaction end, at
// which point Close on the handle becomes a no-op reporting success.
type LargeObject struct {
	conn         *Connection
	fd           int32
	oid          uint32
	sessionEpoch time.Time
	closed       bool
}

// CreateLargeObject creates a BLOB and returns its OID; oid == 0 lets the
// server pick one.
func (c *Connection) CreateLargeObject(ctx context.Context, oid uint32) (uint32, error) {
	if !c.IsConnected() {
		return 0, ErrNotReadyForRequest
	}
	var sql string
	var args [][]byte
	if oid == 0 {
		sql = "SELECT lo_creat(-1)"
	} else {
		sql = "SELECT lo_create($1)"
		args = [][]byte{[]byte(strconv.FormatUint(uint64(oid), 10))}
	}
	res, err := c.execSystemQuery(ctx, sql, args, nil, data.Text)
	if err != nil {
		return 0, err
	}
	return parseUint32Cell(res)
}

// OpenLargeObject opens oid under mode, scoped to the current
// transaction.
func (c *Connection) OpenLargeObject(ctx context.Context, oid uint32, mode LargeObjectMode) (*LargeObject, error) {
	if !c.IsConnected() {
		return nil, ErrNotReadyForRequest
	}
	res, err := c.execSystemQuery(ctx, "SELECT lo_open($1, $2)", [][]byte{
		[]byte(strconv.FormatUint(uint64(oid), 10)),
		[]byte(strconv.Itoa(int(mode))),
	}, nil, data.Text)
	if err != nil {
		return nil, err
	}
	fd, err := parseInt32Cell(res)
	if err != nil {
		return nil, err
	}
	return &LargeObject{conn: c, fd: fd, oid: oid, sessionEpoch: c.SessionStartTime()}, nil
}

// ImportLargeObject creates a large object from the contents of a file on
// the SERVER's filesystem.
func (c *Connection) ImportLargeObject(ctx context.Context, serverPath string) (uint32, error) {
	res, err := c.execSystemQuery(ctx, "SELECT lo_import($1)", [][]byte{[]byte(serverPath)}, nil, data.Text)
	if err != nil {
		return 0, err
	}
	return parseUint32Cell(res)
}

// ExportLargeObject writes oid's contents to a file on the SERVER's
// filesystem.
func (c *Connection) ExportLargeObject(ctx context.Context, oid uint32, serverPath string) error {
	_, err := c.execSystemQuery(ctx, "SELECT lo_export($1, $2)", [][]byte{
		[]byte(strconv.FormatUint(uint64(oid), 10)), []byte(serverPath),
	}, nil, data.Text)
	return err
}

// UnlinkLargeObject deletes a large object by OID.
func (c *Connection) UnlinkLargeObject(ctx context.Context, oid uint32) error {
	_, err := c.execSystemQuery(ctx, "SELECT lo_unlink($1)", [][]byte{
		[]byte(strconv.FormatUint(uint64(oid), 10)),
	}, nil, data.Text)
	return err
}

// execSystemQuery runs one catalog-function round trip outside the
// request-queue machinery: lo_* calls are synchronous by nature and never
// part of a pipeline. argFormats defaults to all-text when nil;
// resultFormat selects how the single result cell comes back (binary for
// lo_read, so bytea payloads arrive as raw bytes rather than hex text).
func (c *Connection) execSystemQuery(ctx context.Context, sql string, args [][]byte, argFormats []int16, resultFormat data.Format) (*driverResultRow, error) {
	c.mu.Lock()
	raw := c.raw
	ready := raw != nil && c.queue.Len() == 0
	c.mu.Unlock()
	if !ready {
		return nil, ErrNotReadyForRequest
	}
	if argFormats == nil {
		argFormats = make([]int16, len(args))
	}
	res, err := raw.ExecParams(ctx, sql, args, argFormats, []int16{int16(resultFormat)})
	if err != nil {
		return nil, err
	}
	if res.Err != nil {
		return nil, convertServerError(res.Err)
	}
	if len(res.Rows) == 0 {
		return nil, fmt.Errorf("pgfe: %s returned no row", sql)
	}
	return &driverResultRow{cells: res.Rows[0]}, nil
}

type driverResultRow struct {
	cells [][]byte
}

func parseUint32Cell(r *driverResultRow) (uint32, error) {
	if len(r.cells) == 0 || r.cells[0] == nil {
		return 0, fmt.Errorf("pgfe: expected a single non-null column")
	}
	n, err := strconv.ParseUint(string(r.cells[0]), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("pgfe: parsing oid: %w", err)
	}
	return uint32(n), nil
}

func parseInt32Cell(r *driverResultRow) (int32, error) {
	if len(r.cells) == 0 || r.cells[0] == nil {
		return 0, fmt.Errorf("pgfe: expected a single non-null column")
	}
	n, err := strconv.ParseInt(string(r.cells[0]), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("pgfe: parsing fd: %w", err)
	}
	return int32(n), nil
}

func parseInt64Cell(r *driverResultRow) (int64, error) {
	if len(r.cells) == 0 || r.cells[0] == nil {
		return 0, fmt.Errorf("pgfe: expected a single non-null column")
	}
	n, err := strconv.ParseInt(string(r.cells[0]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("pgfe: parsing value: %w", err)
	}
	return n, nil
}

// IsValid reports whether the handle is still usable: not closed, and its
// session epoch still matches the owning Connection's current session.
func (lo *LargeObject) IsValid() bool {
	return !lo.closed && lo.sessionEpoch.Equal(lo.conn.SessionStartTime())
}

// OID returns the large object's OID.
func (lo *LargeObject) OID() uint32 { return lo.oid }

// Read reads up to len(p) bytes via lo_read, requesting the bytea result
// in binary format so the payload arrives as raw bytes.
func (lo *LargeObject) Read(ctx context.Context, p []byte) (int, error) {
	if !lo.IsValid() {
		return 0, ErrInvalidState
	}
	res, err := lo.conn.execSystemQuery(ctx, "SELECT lo_read($1, $2)", [][]byte{
		[]byte(strconv.Itoa(int(lo.fd))), []byte(strconv.Itoa(len(p))),
	}, nil, data.Binary)
	if err != nil {
		return 0, err
	}
	if len(res.cells) == 0 || res.cells[0] == nil {
		return 0, nil
	}
	return copy(p, res.cells[0]), nil
}

// Write writes p via lo_write, sending the bytea argument in binary
// format so arbitrary bytes survive the trip untranscoded.
func (lo *LargeObject) Write(ctx context.Context, p []byte) (int, error) {
	if !lo.IsValid() {
		return 0, ErrInvalidState
	}
	res, err := lo.conn.execSystemQuery(ctx, "SELECT lo_write($1, $2)", [][]byte{
		[]byte(strconv.Itoa(int(lo.fd))), p,
	}, []int16{int16(data.Text), int16(data.Binary)}, data.Text)
	if err != nil {
		return 0, err
	}
	n, err := parseInt32Cell(res)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Seek repositions the handle via lo_lseek64, returning the new offset.
func (lo *LargeObject) Seek(ctx context.Context, offset int64, whence int) (int64, error) {
	if !lo.IsValid() {
		return 0, ErrInvalidState
	}
	res, err := lo.conn.execSystemQuery(ctx, "SELECT lo_lseek64($1, $2, $3)", [][]byte{
		[]byte(strconv.Itoa(int(lo.fd))), []byte(strconv.FormatInt(offset, 10)), []byte(strconv.Itoa(whence)),
	}, nil, data.Text)
	if err != nil {
		return 0, err
	}
	return parseInt64Cell(res)
}

// Tell returns the current offset via lo_tell64.
func (lo *LargeObject) Tell(ctx context.Context) (int64, error) {
	if !lo.IsValid() {
		return 0, ErrInvalidState
	}
	res, err := lo.conn.execSystemQuery(ctx, "SELECT lo_tell64($1)", [][]byte{
		[]byte(strconv.Itoa(int(lo.fd))),
	}, nil, data.Text)
	if err != nil {
		return 0, err
	}
	return parseInt64Cell(res)
}

// Truncate resizes the object via lo_truncate64.
func (lo *LargeObject) Truncate(ctx context.Context, size int64) error {
	if !lo.IsValid() {
		return ErrInvalidState
	}
	_, err := lo.conn.execSystemQuery(ctx, "SELECT lo_truncate64($1, $2)", [][]byte{
		[]byte(strconv.Itoa(int(lo.fd))), []byte(strconv.FormatInt(size, 10)),
	}, nil, data.Text)
	return err
}

// Close releases the server-side descriptor via lo_close and invalidates
// the handle. Closing a handle whose transaction has already ended is a
// no-op reporting success: the server closed every descriptor at
// transaction end, so its complaint about the stale descriptor is
// swallowed. A server error raised while the transaction is still open is
// a genuine failure and propagates.
func (lo *LargeObject) Close(ctx context.Context) error {
	if lo.closed || !lo.sessionEpoch.Equal(lo.conn.SessionStartTime()) {
		lo.closed = true
		return nil
	}
	lo.closed = true
	_, err := lo.conn.execSystemQuery(ctx, "SELECT lo_close($1)", [][]byte{
		[]byte(strconv.Itoa(int(lo.fd))),
	}, nil, data.Text)
	var se *ServerError
	if errors.As(err, &se) && !lo.conn.IsTransactionUncommitted() {
		return nil
	}
	return err
}
