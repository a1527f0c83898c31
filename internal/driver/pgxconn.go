package driver

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
)

// pgxConn adapts *pgconn.PgConn to the Conn contract. pgconn's public API
// is blocking-with-context rather than a libpq-style poll() state
// machine; pgfe.Connection bridges the two by
// running these calls on a worker goroutine and polling a result channel,
// so ConnectNIO/ReadInput/HandleInput/SocketReadiness never themselves
// block on the socket (see pgfe/connection_nio.go). This file only needs
// to implement the blocking primitives faithfully.
type pgxConn struct {
	raw *pgconn.PgConn

	mu       sync.Mutex
	prepared map[string]*Result

	notice       NoticeHandler
	notification NotificationHandler
}

// Dial opens a pgconn connection and wires its notice/notification
// callbacks into the Conn contract's handler hooks.
func Dial(ctx context.Context, connString string) (Conn, error) {
	cfg, err := pgconn.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("driver: parsing connection string: %w", err)
	}
	c := &pgxConn{prepared: make(map[string]*Result)}
	cfg.OnNotice = func(_ *pgconn.PgConn, n *pgconn.Notice) {
		if c.notice != nil {
			c.notice(pgErrorToServerError((*pgconn.PgError)(n)))
		}
	}
	cfg.OnNotification = func(_ *pgconn.PgConn, n *pgconn.Notification) {
		if c.notification != nil {
			c.notification(Notification{PID: n.PID, Channel: n.Channel, Payload: n.Payload})
		}
	}
	raw, err := pgconn.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.raw = raw
	return c, nil
}

func (c *pgxConn) Close(ctx context.Context) error { return c.raw.Close(ctx) }
func (c *pgxConn) IsClosed() bool                  { return c.raw.IsClosed() }
func (c *pgxConn) PID() uint32                     { return c.raw.PID() }

func (c *pgxConn) SetNoticeHandler(h NoticeHandler)             { c.notice = h }
func (c *pgxConn) SetNotificationHandler(h NotificationHandler) { c.notification = h }

func (c *pgxConn) ExecParams(ctx context.Context, sql string, paramValues [][]byte, paramFormats, resultFormats []int16) (*Result, error) {
	rr := c.raw.ExecParams(ctx, sql, paramValues, nil, paramFormats, resultFormats)
	return readResult(rr)
}

func (c *pgxConn) Prepare(ctx context.Context, name, sql string) (*Result, error) {
	psd, err := c.raw.Prepare(ctx, name, sql, nil)
	if err != nil {
		return nil, err
	}
	res := &Result{
		Fields:    convertFields(psd.Fields),
		ParamOIDs: psd.ParamOIDs,
	}
	c.mu.Lock()
	c.prepared[name] = res
	c.mu.Unlock()
	return res, nil
}

// Describe returns the description recorded when name was prepared through
// this Conn; it makes no server round trip, and statements prepared by
// other means are reported as unknown.
func (c *pgxConn) Describe(ctx context.Context, name string) (*Result, error) {
	c.mu.Lock()
	res, ok := c.prepared[name]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("driver: no prepared statement named %q", name)
	}
	return res, nil
}

func (c *pgxConn) ExecPrepared(ctx context.Context, name string, paramValues [][]byte, paramFormats, resultFormats []int16) (*Result, error) {
	rr := c.raw.ExecPrepared(ctx, name, paramValues, paramFormats, resultFormats)
	return readResult(rr)
}

func (c *pgxConn) Unprepare(ctx context.Context, name string) error {
	_, err := c.raw.Exec(ctx, "DEALLOCATE "+quoteIdentifierFallback(name)).ReadAll()
	if err == nil {
		c.mu.Lock()
		delete(c.prepared, name)
		c.mu.Unlock()
	}
	return err
}

func (c *pgxConn) Exec(ctx context.Context, sql string) (*Result, error) {
	results, err := c.raw.Exec(ctx, sql).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return &Result{}, nil
	}
	last := results[len(results)-1]
	return &Result{
		Fields:     convertFields(last.FieldDescriptions),
		Rows:       last.Rows,
		CommandTag: last.CommandTag.String(),
	}, nil
}

func (c *pgxConn) CopyFrom(ctx context.Context, r io.Reader, sql string) (string, error) {
	tag, err := c.raw.CopyFrom(ctx, r, sql)
	return tag.String(), err
}

func (c *pgxConn) CopyTo(ctx context.Context, w io.Writer, sql string) (string, error) {
	tag, err := c.raw.CopyTo(ctx, w, sql)
	return tag.String(), err
}

func (c *pgxConn) EscapeLiteral(s string) (string, error) {
	escaped, err := c.raw.EscapeString(s)
	if err != nil {
		return "", err
	}
	return "'" + escaped + "'", nil
}

// EscapeIdentifier doubles embedded double quotes per the SQL standard;
// pgconn exposes no server round trip for this (it is purely lexical).
func (c *pgxConn) EscapeIdentifier(s string) (string, error) {
	return quoteIdentifierFallback(s), nil
}

func quoteIdentifierFallback(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func (c *pgxConn) EscapeBytea(b []byte) (string, error) {
	var sb strings.Builder
	sb.WriteString(`'\x`)
	const hextable = "0123456789abcdef"
	for _, by := range b {
		sb.WriteByte(hextable[by>>4])
		sb.WriteByte(hextable[by&0x0f])
	}
	sb.WriteString(`'`)
	return sb.String(), nil
}

func readResult(rr *pgconn.ResultReader) (*Result, error) {
	res := &Result{}
	for rr.NextRow() {
		if res.Fields == nil {
			res.Fields = convertFields(rr.FieldDescriptions())
		}
		row := make([][]byte, len(rr.Values()))
		for i, v := range rr.Values() {
			if v != nil {
				cp := make([]byte, len(v))
				copy(cp, v)
				row[i] = cp
			}
		}
		res.Rows = append(res.Rows, row)
	}
	tag, err := rr.Close()
	res.CommandTag = tag.String()
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok {
			res.Err = pgErrorToServerError(pgErr)
			return res, nil
		}
		return res, err
	}
	return res, nil
}

func convertFields(fields []pgconn.FieldDescription) []FieldDescriptor {
	out := make([]FieldDescriptor, len(fields))
	for i, f := range fields {
		out[i] = FieldDescriptor{
			Name:         f.Name,
			Format:       int16(f.Format),
			TypeOID:      f.DataTypeOID,
			TypeSize:     f.DataTypeSize,
			TypeModifier: f.TypeModifier,
			TableOID:     f.TableOID,
			TableColumn:  int16(f.TableAttributeNumber),
		}
	}
	return out
}

func pgErrorToServerError(e *pgconn.PgError) *ServerError {
	return &ServerError{
		Severity:         e.Severity,
		Code:             e.Code,
		Message:          e.Message,
		Detail:           e.Detail,
		Hint:             e.Hint,
		Position:         fmt.Sprintf("%d", e.Position),
		InternalPosition: fmt.Sprintf("%d", e.InternalPosition),
		InternalQuery:    e.InternalQuery,
		Where:            e.Where,
		SchemaName:       e.SchemaName,
		TableName:        e.TableName,
		ColumnName:       e.ColumnName,
		DataTypeName:     e.DataTypeName,
		ConstraintName:   e.ConstraintName,
		File:             e.File,
		Line:             fmt.Sprintf("%d", e.Line),
		Routine:          e.Routine,
	}
}
