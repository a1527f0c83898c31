// Package data implements the library's single currency for values moving
// across the wire: an immutable byte buffer tagged with the wire format
// (text or binary) it was produced in or must be sent as.
package data

import (
	"errors"

	"github.com/riftdata/pgfe/internal/wire"
)

// Format identifies the wire encoding of a Data value's bytes.
type Format int

const (
	// Text is the server's human-readable textual encoding.
	Text Format = iota
	// Binary is the server's binary wire encoding.
	Binary
)

func (f Format) String() string {
	if f == Binary {
		return "binary"
	}
	return "text"
}

// ErrNil is returned by accessors that are not meaningful on a null Data.
var ErrNil = errors.New("data: value is null")

// Data is an immutable byte buffer plus a format tag. It never implies a
// terminator for text values: Bytes() returns exactly Size() bytes.
//
// A Data value either owns its storage (constructed with NewOwned /
// NewBytea) or borrows a caller-supplied slice (NewBorrowed). Both kinds
// share the Data type; Owning() reports at run time which one a value is.
// A borrowed Data is only valid for as long as the slice it was built from, and binding
// one into a PreparedStatement that outlives that slice is a caller bug
// the API is designed to make easy to audit for, not to prevent by
// copying defensively.
type Data struct {
	bytes  []byte
	format Format
	owned  bool
	isNull bool
}

// NewOwned builds a Data value that owns a copy of raw.
func NewOwned(raw []byte, format Format) Data {
	if raw == nil {
		return Data{isNull: true, format: format}
	}
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return Data{bytes: cp, format: format, owned: true}
}

// NewBorrowed builds a Data value that borrows raw without copying. The
// caller must keep raw alive and unmodified for as long as the Data (or
// anything bound from it) is in use.
func NewBorrowed(raw []byte, format Format) Data {
	if raw == nil {
		return Data{isNull: true, format: format}
	}
	return Data{bytes: raw, format: format, owned: false}
}

// NewText is a convenience constructor for an owned text-format Data built
// from a Go string.
func NewText(s string) Data {
	return NewOwned([]byte(s), Text)
}

// Null returns a null Data value with the given format tag.
func Null(format Format) Data {
	return Data{isNull: true, format: format}
}

// NewBytea builds an owned binary Data value from raw bytes, for binding
// as a PostgreSQL bytea parameter.
func NewBytea(raw []byte) Data {
	return NewOwned(raw, Binary)
}

// ParseBytea decodes a server-returned bytea in PostgreSQL's hex text
// format ("\xDEADBEEF") into an owned binary Data value.
func ParseBytea(text string) (Data, error) {
	raw, err := wire.DecodeBytea(text)
	if err != nil {
		return Data{}, err
	}
	return NewBytea(raw), nil
}

// IsNull reports whether this Data represents SQL NULL.
func (d Data) IsNull() bool {
	return d.isNull
}

// Format reports the wire format of the value.
func (d Data) Format() Format {
	return d.format
}

// Owning reports whether the Data owns its backing storage. A borrowed
// (non-owning) Data is a view: the caller supplied the slice and remains
// responsible for its lifetime.
func (d Data) Owning() bool {
	return d.owned
}

// Size returns the exact byte length of the value. Size is 0 for null.
func (d Data) Size() int {
	return len(d.bytes)
}

// Bytes returns a view of the value's bytes. For a borrowed Data this is
// the original caller-supplied slice; mutating it is undefined behavior
// for any other holder of the same Data.
func (d Data) Bytes() []byte {
	return d.bytes
}

// Owned returns a copy of this Data that owns its own storage, copying
// the bytes if they are currently borrowed. A Data that already owns its
// storage is returned unchanged.
func (d Data) Owned() Data {
	if d.owned || d.isNull {
		return d
	}
	return NewOwned(d.bytes, d.format)
}

// String returns the value's bytes interpreted as a Go string. For binary
// data this is a raw reinterpretation, not a conversion.
func (d Data) String() string {
	return string(d.bytes)
}

// Bytea renders the value as PostgreSQL's hex bytea text form
// ("\xDEADBEEF"), regardless of its own format tag.
func (d Data) Bytea() string {
	if d.isNull {
		return ""
	}
	return wire.EncodeBytea(d.bytes)
}
