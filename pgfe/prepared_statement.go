package pgfe

import (
	"fmt"
	"time"

	"github.com/riftdata/pgfe/data"
)

// preparedParam is one parameter slot of a PreparedStatement, optionally
// holding a bound value.
type preparedParam struct {
	name  string
	bound *data.Data
}

// PreparedStatement is a named, server-side prepared statement handle.
// It is valid only while its session epoch matches its owning
// Connection's current session start time; a reconnect invalidates every
// outstanding handle.
type PreparedStatement struct {
	name         string
	conn         *Connection
	sessionEpoch time.Time

	params       []preparedParam
	resultFormat int16

	preparsed bool // schema known from client-side Statement parsing
	described bool // schema known from a server Describe response

	rowInfo   *RowInfo
	paramOIDs []uint32
	valid     bool
}

func newPreparedStatement(conn *Connection, name string, stmt *Statement) *PreparedStatement {
	ps := &PreparedStatement{
		name:         name,
		conn:         conn,
		sessionEpoch: conn.SessionStartTime(),
		valid:        true,
	}
	if stmt != nil {
		ps.preparsed = true
		for i := 0; i < stmt.ParameterCount(); i++ {
			if n, ok := stmt.ParameterName(i); ok {
				ps.params = append(ps.params, preparedParam{name: n})
			} else {
				ps.params = append(ps.params, preparedParam{})
			}
		}
	}
	return ps
}

// Name returns the server-side prepared statement name ("" for the
// unnamed statement execute_params uses internally).
func (ps *PreparedStatement) Name() string { return ps.name }

// IsValid reports whether the handle's session epoch still matches its
// Connection's current session, and it has not been explicitly
// unprepared.
func (ps *PreparedStatement) IsValid() bool {
	return ps.valid && ps.sessionEpoch.Equal(ps.conn.SessionStartTime())
}

func (ps *PreparedStatement) invalidate() { ps.valid = false }

// ParameterCount returns the number of parameter slots.
func (ps *PreparedStatement) ParameterCount() int { return len(ps.params) }

// IsPreparsed reports whether the parameter schema came from client-side
// Statement parsing (as opposed to a server Describe response).
func (ps *PreparedStatement) IsPreparsed() bool { return ps.preparsed }

// IsDescribed reports whether a server Describe response has attached a
// RowInfo and parameter type OIDs to this handle.
func (ps *PreparedStatement) IsDescribed() bool { return ps.described }

// RowInfo returns the described result shape, if any.
func (ps *PreparedStatement) RowInfo() (RowInfo, bool) {
	if ps.rowInfo == nil {
		return RowInfo{}, false
	}
	return *ps.rowInfo, true
}

// ParameterTypeOID returns the server-described type OID of parameter i,
// available once the statement has been described.
func (ps *PreparedStatement) ParameterTypeOID(i int) (uint32, bool) {
	if i < 0 || i >= len(ps.paramOIDs) {
		return 0, false
	}
	return ps.paramOIDs[i], true
}

// ResultFormat returns the format result-set columns are requested in
// when this statement executes.
func (ps *PreparedStatement) ResultFormat() data.Format {
	return data.Format(ps.resultFormat)
}

// SetResultFormat selects the format result-set columns are requested in
// when this statement executes.
func (ps *PreparedStatement) SetResultFormat(f data.Format) {
	ps.resultFormat = int16(f)
}

// growForIndex extends an opaque (non-preparsed) prepared statement's
// parameter vector so index is addressable, bounded by
// MaxParameterCount.
func (ps *PreparedStatement) growForIndex(index int) error {
	if ps.preparsed {
		if index >= len(ps.params) {
			return ErrInvalidParameterPosition
		}
		return nil
	}
	if index >= MaxParameterCount {
		return ErrInvalidParameterPosition
	}
	for len(ps.params) <= index {
		ps.params = append(ps.params, preparedParam{})
	}
	return nil
}

// BindIndex binds value to the parameter at index, growing an opaque
// statement's parameter vector if necessary. value may be
// a data.Data, nil, or anything bind.go's toData accepts.
func (ps *PreparedStatement) BindIndex(index int, value any) error {
	if err := ps.growForIndex(index); err != nil {
		return err
	}
	d, err := toData(value)
	if err != nil {
		return err
	}
	ps.params[index].bound = &d
	return nil
}

// BindName binds value to the named parameter name, which must already
// exist in the parameter vector (true for preparsed statements; opaque
// statements have no names to bind by).
func (ps *PreparedStatement) BindName(name string, value any) error {
	for i := range ps.params {
		if ps.params[i].name == name {
			return ps.BindIndex(i, value)
		}
	}
	return fmt.Errorf("%w: no parameter named %q", ErrInvalidParameterPosition, name)
}

// values returns the bound value/format arrays for execute_params, in
// parameter-index order. Unbound slots are treated as SQL NULL in text
// format.
func (ps *PreparedStatement) values() (values [][]byte, formats []int16) {
	values = make([][]byte, len(ps.params))
	formats = make([]int16, len(ps.params))
	for i, p := range ps.params {
		if p.bound == nil {
			continue
		}
		if p.bound.IsNull() {
			continue
		}
		values[i] = p.bound.Bytes()
		formats[i] = int16(p.bound.Format())
	}
	return values, formats
}
