package pgfe

import "github.com/riftdata/pgfe/data"

// FieldInfo describes one column of a result set, mirroring the driver
// contract's field_* accessors.
type FieldInfo struct {
	Name         string
	Format       data.Format
	TypeOID      uint32
	TypeSize     int16 // negative means variable-length
	TypeModifier int32
	TableOID     uint32
	TableColumn  int16
}

// RowInfo is the typed response carrier for a result set's shape,
// produced by the driver's describe/execute path.
type RowInfo struct {
	fields []FieldInfo
}

// NewRowInfo builds a RowInfo from the driver's field descriptors.
func NewRowInfo(fields []FieldInfo) RowInfo {
	return RowInfo{fields: fields}
}

// FieldCount returns the number of columns.
func (r RowInfo) FieldCount() int { return len(r.fields) }

// Field returns the i-th column's descriptor.
func (r RowInfo) Field(i int) FieldInfo { return r.fields[i] }

// FieldIndex returns the 0-based index of the first column named name, or
// -1 if there is none. Ties (duplicate column names) resolve to the first
// occurrence, matching libpq's PQfnumber.
func (r RowInfo) FieldIndex(name string) int {
	for i, f := range r.fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}
