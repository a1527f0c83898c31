package pgfe

import (
	"fmt"

	"github.com/riftdata/pgfe/data"
)

// bindArguments converts args (one per slot in stmt's parameter index
// space, positional slots first, then distinct named parameters in
// first-appearance order) into the parallel value/format arrays
// execute_params needs.
//
// Each argument may be a data.Data (used as-is, borrowed or owning), a
// nil (bound as SQL NULL), a []byte (bound as a binary value), or
// anything else convertible via fmt.Sprintf("%v", ...) to its text form.
func bindArguments(stmt Statement, args []any) (values [][]byte, formats []int16, err error) {
	want := stmt.ParameterCount()
	if len(args) != want {
		return nil, nil, fmt.Errorf("%w: statement expects %d parameters, got %d", ErrMissingParameters, want, len(args))
	}
	values = make([][]byte, want)
	formats = make([]int16, want)
	for i, a := range args {
		d, err := toData(a)
		if err != nil {
			return nil, nil, err
		}
		if d.IsNull() {
			values[i] = nil
		} else {
			values[i] = d.Bytes()
		}
		formats[i] = int16(d.Format())
	}
	return values, formats, nil
}

func toData(a any) (data.Data, error) {
	switch v := a.(type) {
	case nil:
		return data.Null(data.Text), nil
	case data.Data:
		return v, nil
	case []byte:
		if v == nil {
			return data.Null(data.Binary), nil
		}
		return data.NewBorrowed(v, data.Binary), nil
	case string:
		return data.NewText(v), nil
	case fmt.Stringer:
		return data.NewText(v.String()), nil
	default:
		return data.NewText(fmt.Sprintf("%v", v)), nil
	}
}
