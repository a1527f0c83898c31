package pgfe

import "github.com/riftdata/pgfe/data"

// Tuple is an ordered name -> Data map. It backs a Statement's extra
// data: the dollar-quoted key/value pairs found in comments immediately
// preceding a statement's SQL text.
type Tuple struct {
	names  []string
	values map[string]data.Data
}

// NewTuple returns an empty Tuple.
func NewTuple() Tuple {
	return Tuple{values: make(map[string]data.Data)}
}

// Set adds or replaces the value for name, preserving first-insertion
// order for new names.
func (t *Tuple) Set(name string, value data.Data) {
	if t.values == nil {
		t.values = make(map[string]data.Data)
	}
	if _, ok := t.values[name]; !ok {
		t.names = append(t.names, name)
	}
	t.values[name] = value
}

// Get returns the value bound to name and whether it is present.
func (t Tuple) Get(name string) (data.Data, bool) {
	v, ok := t.values[name]
	return v, ok
}

// Names returns the field names in first-insertion order.
func (t Tuple) Names() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// Size returns the number of fields in the tuple.
func (t Tuple) Size() int {
	return len(t.names)
}
