// Package driver defines the low-level contract pgfe's Connection
// drives: protocol startup, the extended-query send/describe primitives,
// result accessors, notifications, escaping, large objects and COPY.
// pgxconn.go binds this contract to jackc/pgx/v5/pgconn.
package driver

import (
	"context"
	"io"
)

// Readiness reports which direction(s) of socket activity a caller should
// wait on next, mirroring libpq's PQsocket poll flags.
type Readiness int

const (
	ReadinessNone Readiness = iota
	ReadinessReading
	ReadinessWriting
	ReadinessOK
	ReadinessFailed
)

// FlushStatus is the outcome of a non-blocking output flush.
type FlushStatus int

const (
	FlushDone FlushStatus = iota
	FlushPending
	FlushError
)

// FieldDescriptor describes one result column.
type FieldDescriptor struct {
	Name         string
	Format       int16
	TypeOID      uint32
	TypeSize     int16
	TypeModifier int32
	TableOID     uint32
	TableColumn  int16
}

// Result is a fully materialized response to a single extended-query
// round trip: either a row-bearing result set or a command completion.
type Result struct {
	Fields       []FieldDescriptor
	Rows         [][][]byte // nil cell means SQL NULL
	CommandTag   string
	Err          *ServerError
	ParamOIDs    []uint32 // populated by Describe
}

// ServerError mirrors the PostgreSQL ErrorResponse/NoticeResponse
// fields.
type ServerError struct {
	Severity         string
	Code             string
	Message          string
	Detail           string
	Hint             string
	Position         string
	InternalPosition string
	InternalQuery    string
	Where            string
	SchemaName       string
	TableName        string
	ColumnName       string
	DataTypeName     string
	ConstraintName   string
	File             string
	Line             string
	Routine          string
}

// Notification is an asynchronous NOTIFY delivery.
type Notification struct {
	PID     uint32
	Channel string
	Payload string
}

// NoticeHandler receives non-fatal server notices.
type NoticeHandler func(*ServerError)

// NotificationHandler receives asynchronous NOTIFY deliveries.
type NotificationHandler func(Notification)

// Conn is the contract pgfe.Connection drives. Every method that talks to
// the server takes a context so the non-blocking pgfe layer can bound it;
// see internal/driver/pgxconn.go's doc comment for how this maps onto
// pgfe's libpq-style poll loop.
type Conn interface {
	// Close tears down the connection immediately.
	Close(ctx context.Context) error
	// IsClosed reports whether the connection has already failed or
	// been closed.
	IsClosed() bool

	// ExecParams runs sql as an unnamed prepared statement bound to
	// paramValues/paramFormats, requesting resultFormats per column.
	ExecParams(ctx context.Context, sql string, paramValues [][]byte, paramFormats, resultFormats []int16) (*Result, error)

	// Prepare parses and describes a named statement.
	Prepare(ctx context.Context, name, sql string) (*Result, error)

	// Describe returns the description of an already-prepared statement.
	Describe(ctx context.Context, name string) (*Result, error)

	// ExecPrepared executes a previously prepared statement by name.
	ExecPrepared(ctx context.Context, name string, paramValues [][]byte, paramFormats, resultFormats []int16) (*Result, error)

	// Unprepare issues DEALLOCATE for name.
	Unprepare(ctx context.Context, name string) error

	// Exec runs sql as a simple-query string, for statements the
	// extended protocol cannot carry (multi-statement text, COPY).
	Exec(ctx context.Context, sql string) (*Result, error)

	// CopyFrom streams r to the server for a COPY ... FROM STDIN sql.
	CopyFrom(ctx context.Context, r io.Reader, sql string) (string, error)
	// CopyTo streams a COPY ... TO STDOUT sql's output into w.
	CopyTo(ctx context.Context, w io.Writer, sql string) (string, error)

	// EscapeLiteral/EscapeIdentifier/EscapeBytea implement the
	// session-encoding-aware quoting helpers.
	EscapeLiteral(s string) (string, error)
	EscapeIdentifier(s string) (string, error)
	EscapeBytea(b []byte) (string, error)

	// SetNoticeHandler/SetNotificationHandler install the background
	// notice/notification delivery handlers.
	SetNoticeHandler(NoticeHandler)
	SetNotificationHandler(NotificationHandler)

	// PID returns the backend process ID, needed for CancelRequest and
	// for attributing NOTIFY deliveries.
	PID() uint32
}

// Dialer opens a new Conn for the given libpq-style connection string.
type Dialer func(ctx context.Context, connString string) (Conn, error)
