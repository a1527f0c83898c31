package pgfe

import (
	"strings"
)

// namedParamRef is one distinct named parameter in first-appearance order,
// with an optional bound string value used only for rendering
// literal/identifier-quoted forms in ToQueryString.
type namedParamRef struct {
	name  string
	bound *string
}

// Statement is an ordered list of Fragments produced by Parse, plus
// derived caches: which positional slots are present, the distinct named
// parameters in first-appearance order, and any extra data extracted from
// related dollar-quoted comments.
type Statement struct {
	fragments         []Fragment
	positionalPresent []bool // index i -> is $(i+1) referenced
	namedOrder        []namedParamRef
	extra             Tuple
}

// NewStatement parses text like Parse, discarding the consumed byte count;
// a malformed statement is reported as Parse's error.
func NewStatement(text string) (Statement, error) {
	s, _, err := Parse(text)
	return s, err
}

func (s *Statement) noteParameterIndex(n int) {
	if n > len(s.positionalPresent) {
		grown := make([]bool, n)
		copy(grown, s.positionalPresent)
		s.positionalPresent = grown
	}
	s.positionalPresent[n-1] = true
}

func (s *Statement) noteNamedParameter(name string) {
	for _, p := range s.namedOrder {
		if p.name == name {
			return
		}
	}
	s.namedOrder = append(s.namedOrder, namedParamRef{name: name})
}

// rebuildParameterIndex recomputes positionalPresent/namedOrder from the
// current fragment list, preserving any previously bound named-parameter
// values for names still referenced. Used after structural mutation
// (Append, BindStatement).
func (s *Statement) rebuildParameterIndex() {
	prevBound := make(map[string]*string, len(s.namedOrder))
	for _, p := range s.namedOrder {
		prevBound[p.name] = p.bound
	}
	s.positionalPresent = nil
	s.namedOrder = nil
	for _, f := range s.fragments {
		switch f.Kind {
		case FragmentPositionalParameter:
			s.noteParameterIndex(f.Position)
		case FragmentNamedParameter, FragmentNamedParameterLiteral, FragmentNamedParameterIdentifier:
			s.noteNamedParameter(f.Name)
		}
	}
	for i := range s.namedOrder {
		if b, ok := prevBound[s.namedOrder[i].name]; ok {
			s.namedOrder[i].bound = b
		}
	}
}

// Fragments returns the statement's fragment list.
func (s Statement) Fragments() []Fragment {
	return s.fragments
}

// PositionalParameterCount returns the highest positional index referenced
// (i.e. the size of the positional slice of the parameter index space).
func (s Statement) PositionalParameterCount() int {
	return len(s.positionalPresent)
}

// NamedParameterCount returns the number of distinct named parameters.
func (s Statement) NamedParameterCount() int {
	return len(s.namedOrder)
}

// ParameterCount returns the total size of the externally visible
// parameter index space: positional slots followed by distinct named
// parameters.
func (s Statement) ParameterCount() int {
	return len(s.positionalPresent) + len(s.namedOrder)
}

// ParameterIndex returns the 0-based index of named parameter name in the
// external index space, stable under fragment insertion that preserves
// relative order.
func (s Statement) ParameterIndex(name string) (int, bool) {
	for i, p := range s.namedOrder {
		if p.name == name {
			return len(s.positionalPresent) + i, true
		}
	}
	return -1, false
}

// ParameterName returns the named parameter at external index idx, if idx
// falls in the named portion of the index space.
func (s Statement) ParameterName(idx int) (string, bool) {
	off := idx - len(s.positionalPresent)
	if off < 0 || off >= len(s.namedOrder) {
		return "", false
	}
	return s.namedOrder[off].name, true
}

// IsParameterMissing reports whether positional slot idx (0-based) has no
// referencing fragment. Named parameters are never "missing" once parsed.
func (s Statement) IsParameterMissing(idx int) bool {
	if idx < 0 || idx >= len(s.positionalPresent) {
		return false
	}
	return !s.positionalPresent[idx]
}

// HasMissingParameters reports whether any positional slot in
// [0, PositionalParameterCount) lacks a referencing fragment.
func (s Statement) HasMissingParameters() bool {
	for _, present := range s.positionalPresent {
		if !present {
			return true
		}
	}
	return false
}

// IsEmpty reports whether the statement has no SQL content beyond
// comments and whitespace.
func (s Statement) IsEmpty() bool {
	for _, f := range s.fragments {
		switch f.Kind {
		case FragmentText:
			if strings.TrimSpace(f.Text) != "" {
				return false
			}
		case FragmentOneLineComment, FragmentMultiLineComment:
			continue
		default:
			return false // any parameter reference counts as content
		}
	}
	return true
}

// Extra returns the extra-data tuple extracted from related dollar-quoted
// comments.
func (s Statement) Extra() Tuple {
	return s.extra
}

// SetParameterValue binds a string value to a named parameter, used only
// when rendering :'name' / :"name" fragments via ToQueryString. It has no
// effect on execution-time binding, which is PreparedStatement's job.
func (s *Statement) SetParameterValue(name, value string) bool {
	for i := range s.namedOrder {
		if s.namedOrder[i].name == name {
			v := value
			s.namedOrder[i].bound = &v
			return true
		}
	}
	return false
}

// String renders the statement back to SQL text by concatenating every
// fragment's own String() form.
func (s Statement) String() string {
	var b strings.Builder
	for _, f := range s.fragments {
		b.WriteString(f.String())
	}
	return b.String()
}

// Append merges other's fragment list onto the end of s, unioning the
// positional-present bitmap and the distinct named-parameter list.
func (s *Statement) Append(other Statement) *Statement {
	s.fragments = append(s.fragments, other.fragments...)
	s.rebuildParameterIndex()
	for _, name := range other.extra.Names() {
		if v, ok := other.extra.Get(name); ok {
			if _, exists := s.extra.Get(name); !exists {
				s.extra.Set(name, v)
			}
		}
	}
	return s
}

// BindStatement substitutes every fragment referencing named parameter
// name (of any named-parameter kind) with a copy of replacement's
// fragments, then recomputes the parameter index over the union of what
// remains.
func (s *Statement) BindStatement(name string, replacement Statement) bool {
	found := false
	next := make([]Fragment, 0, len(s.fragments))
	for _, f := range s.fragments {
		switch f.Kind {
		case FragmentNamedParameter, FragmentNamedParameterLiteral, FragmentNamedParameterIdentifier:
			if f.Name == name {
				found = true
				next = append(next, replacement.fragments...)
				continue
			}
		}
		next = append(next, f)
	}
	if !found {
		return false
	}
	s.fragments = next
	s.rebuildParameterIndex()
	return true
}

// QuoteFunc quotes a string value or identifier per the owning
// Connection's server encoding, for ToQueryString rendering.
type QuoteFunc func(string) string

// ToQueryString renders the statement as server-ready SQL text: positional
// parameters as "$N", unquoted named parameters remapped to dense
// positional numbers in first-appearance order, literal/identifier-quoted
// named parameters replaced by their quoted bound value, and comments
// stripped.
func (s Statement) ToQueryString(quoteLiteral, quoteIdent QuoteFunc) string {
	// Dense renumbering: positional parameters keep their own number;
	// named parameters (unquoted kind) are appended after the highest
	// positional number, in first-appearance order.
	nextDense := len(s.positionalPresent) + 1
	denseOf := make(map[string]int, len(s.namedOrder))

	var b strings.Builder
	for _, f := range s.fragments {
		switch f.Kind {
		case FragmentOneLineComment, FragmentMultiLineComment:
			continue
		case FragmentText:
			b.WriteString(f.Text)
		case FragmentPositionalParameter:
			b.WriteString(f.String())
		case FragmentNamedParameter:
			idx, ok := denseOf[f.Name]
			if !ok {
				idx = nextDense
				denseOf[f.Name] = idx
				nextDense++
			}
			b.WriteString("$")
			b.WriteString(itoaDense(idx))
		case FragmentNamedParameterLiteral:
			val := s.boundValue(f.Name)
			if quoteLiteral != nil {
				b.WriteString(quoteLiteral(val))
			} else {
				b.WriteString(val)
			}
		case FragmentNamedParameterIdentifier:
			val := s.boundValue(f.Name)
			if quoteIdent != nil {
				b.WriteString(quoteIdent(val))
			} else {
				b.WriteString(val)
			}
		}
	}
	return b.String()
}

func (s Statement) boundValue(name string) string {
	for _, p := range s.namedOrder {
		if p.name == name && p.bound != nil {
			return *p.bound
		}
	}
	return ""
}

func itoaDense(n int) string {
	// local copy avoids importing strconv twice across files for one call
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
