package pgfe

import (
	"context"
	"fmt"
	"strings"

	"github.com/riftdata/pgfe/internal/driver"
	"github.com/riftdata/pgfe/internal/reqqueue"
)

// PrepareNIO enqueues a prepare request for text (either raw SQL or an
// already-parsed Statement) under name, staging a PreparedStatement
// handle retrievable via PreparedStatementByName once the request
// completes.
func (c *Connection) PrepareNIO(ctx context.Context, text any, name string) error {
	if err := c.requireNIOReady(); err != nil {
		return err
	}
	var stmt *Statement
	var sql string
	switch v := text.(type) {
	case Statement:
		stmt = &v
		if v.HasMissingParameters() {
			return ErrMissingParameters
		}
		sql = v.ToQueryString(nil, nil)
	case string:
		sql = v
	default:
		return fmt.Errorf("pgfe: prepare: unsupported statement type %T", text)
	}

	staged := newPreparedStatement(c, name, stmt)
	c.enqueue(job{
		kind:   reqqueue.KindPrepare,
		name:   name,
		staged: staged,
		ctx:    ctx,
		run: func(ctx context.Context, raw driver.Conn) (*driver.Result, error) {
			return raw.Prepare(ctx, name, sql)
		},
	})
	return nil
}

// Prepare is the blocking convenience form of PrepareNIO: it waits for
// the completion and returns the registered handle.
func (c *Connection) Prepare(ctx context.Context, text any, name string) (*PreparedStatement, error) {
	if err := c.PrepareNIO(ctx, text, name); err != nil {
		return nil, err
	}
	if _, err := c.ProcessResponses(nil); err != nil {
		return nil, err
	}
	ps, ok := c.PreparedStatementByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: prepare completed but handle missing", ErrInvalidState)
	}
	return ps, nil
}

// DescribeNIO enqueues a describe request for an already-prepared
// statement; its completion attaches the RowInfo and parameter type OIDs
// to the handle.
func (c *Connection) DescribeNIO(ctx context.Context, name string) error {
	if err := c.requireNIOReady(); err != nil {
		return err
	}
	c.enqueue(job{
		kind: reqqueue.KindDescribe,
		name: name,
		ctx:  ctx,
		run: func(ctx context.Context, raw driver.Conn) (*driver.Result, error) {
			return raw.Describe(ctx, name)
		},
	})
	return nil
}

// Describe is the blocking convenience form of DescribeNIO, returning the
// (now described) handle.
func (c *Connection) Describe(ctx context.Context, name string) (*PreparedStatement, error) {
	if err := c.DescribeNIO(ctx, name); err != nil {
		return nil, err
	}
	if _, err := c.ProcessResponses(nil); err != nil {
		return nil, err
	}
	ps, ok := c.PreparedStatementByName(name)
	if !ok {
		return nil, fmt.Errorf("pgfe: describe: no prepared statement named %q", name)
	}
	return ps, nil
}

// UnprepareNIO enqueues DEALLOCATE for name; its completion removes the
// handle from the registry.
func (c *Connection) UnprepareNIO(ctx context.Context, name string) error {
	if name == "" {
		return ErrEmptyName
	}
	if err := c.requireNIOReady(); err != nil {
		return err
	}
	c.enqueue(job{
		kind: reqqueue.KindUnprepare,
		name: name,
		ctx:  ctx,
		run: func(ctx context.Context, raw driver.Conn) (*driver.Result, error) {
			if err := raw.Unprepare(ctx, name); err != nil {
				return nil, err
			}
			return &driver.Result{}, nil
		},
	})
	return nil
}

// Unprepare is the blocking convenience form of UnprepareNIO.
func (c *Connection) Unprepare(ctx context.Context, name string) error {
	if err := c.UnprepareNIO(ctx, name); err != nil {
		return err
	}
	_, err := c.ProcessResponses(nil)
	return err
}

// PreparedStatementByName returns the staged handle for name, if any and
// still valid.
func (c *Connection) PreparedStatementByName(name string) (*PreparedStatement, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ps, ok := c.prepared[name]
	// Inline the validity check: IsValid would re-acquire c.mu.
	if !ok || !ps.valid || !ps.sessionEpoch.Equal(c.sessionStart) {
		return nil, false
	}
	return ps, true
}

// ExecutePreparedNIO queues execution of a previously prepared statement
// with its bound parameter values, requesting the statement's result
// format. The result set is read whole before its rows are delivered one
// at a time; it is not streamed in single-row mode.
func (c *Connection) ExecutePreparedNIO(ctx context.Context, ps *PreparedStatement) error {
	if !ps.IsValid() {
		return fmt.Errorf("%w: prepared statement invalidated by reconnect or unprepare", ErrInvalidState)
	}
	if err := c.requireNIOReady(); err != nil {
		return err
	}
	values, formats := ps.values()
	name := ps.name
	rf := ps.resultFormat
	c.enqueue(job{
		kind: reqqueue.KindExecute,
		ctx:  ctx,
		run: func(ctx context.Context, raw driver.Conn) (*driver.Result, error) {
			return raw.ExecPrepared(ctx, name, values, formats, []int16{rf})
		},
	})
	return nil
}

// ExecutePrepared is the blocking convenience form of ExecutePreparedNIO
// followed by ProcessResponses.
func (c *Connection) ExecutePrepared(ctx context.Context, ps *PreparedStatement, cb RowCallback) (Completion, error) {
	if err := c.ExecutePreparedNIO(ctx, ps); err != nil {
		return Completion{}, err
	}
	return c.ProcessResponses(cb)
}

// Invoke builds "SELECT * FROM name(...)" from args (positional values
// become $1,$2,...; {name,value} pairs become name => :name) and forwards
// to execute.
func (c *Connection) Invoke(ctx context.Context, name string, args ...NamedArg) (Completion, error) {
	return c.callFunctionLike(ctx, "SELECT * FROM "+name, args)
}

// Call builds "CALL name(...)" the same way Invoke builds a SELECT.
func (c *Connection) Call(ctx context.Context, name string, args ...NamedArg) (Completion, error) {
	return c.callFunctionLike(ctx, "CALL "+name, args)
}

// NamedArg is one argument to Invoke/Call: a positional value (Name=="")
// or a named argument rendered as "name => :name".
type NamedArg struct {
	Name  string
	Value any
}

func (c *Connection) callFunctionLike(ctx context.Context, prefix string, args []NamedArg) (Completion, error) {
	var sql strings.Builder
	sql.WriteString(prefix)
	sql.WriteByte('(')
	sawNamed := false
	positionalVals := make([]any, 0, len(args))
	for i, a := range args {
		if i > 0 {
			sql.WriteString(", ")
		}
		if a.Name == "" {
			if sawNamed {
				return Completion{}, ErrInvalidArgumentOrder
			}
			sql.WriteString(fmt.Sprintf("$%d", len(positionalVals)+1))
			positionalVals = append(positionalVals, a.Value)
		} else {
			sawNamed = true
			sql.WriteString(a.Name)
			sql.WriteString(" => :")
			sql.WriteString(a.Name)
			positionalVals = append(positionalVals, a.Value)
		}
	}
	sql.WriteByte(')')

	stmt, _, err := Parse(sql.String())
	if err != nil {
		return Completion{}, err
	}
	return c.Execute(ctx, stmt, nil, positionalVals...)
}
