package pgfe

import "github.com/riftdata/pgfe/data"

// Row is one row of a result set: RowInfo plus the column values for this
// row, handed to the row callback one at a time. The driver reads the whole
// result set before the first Row is delivered.
type Row struct {
	info   RowInfo
	values []data.Data
}

// NewRow pairs a RowInfo with its column values.
func NewRow(info RowInfo, values []data.Data) Row {
	return Row{info: info, values: values}
}

// Info returns the row's shape.
func (r Row) Info() RowInfo { return r.info }

// Size returns the number of columns.
func (r Row) Size() int { return len(r.values) }

// Data returns the value at column index i.
func (r Row) Data(i int) data.Data { return r.values[i] }

// Named returns the value of the first column named name.
func (r Row) Named(name string) (data.Data, bool) {
	i := r.info.FieldIndex(name)
	if i < 0 {
		return data.Data{}, false
	}
	return r.values[i], true
}

// RowProcessingVerdict is returned by a ProcessResponses row callback to
// control how the remaining rows of the current response are drained.
type RowProcessingVerdict int

const (
	// RowProcessingContinue keeps draining rows normally.
	RowProcessingContinue RowProcessingVerdict = iota
	// RowProcessingSuspend stops draining without discarding the
	// in-flight response; a later call resumes from where it left off.
	RowProcessingSuspend
	// RowProcessingComplete discards any remaining rows of the current
	// response and returns its terminal Completion immediately.
	RowProcessingComplete
)

// RowCallback is invoked once per Row by Connection.ProcessResponses.
type RowCallback func(Row) RowProcessingVerdict
