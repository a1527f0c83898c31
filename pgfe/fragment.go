package pgfe

import "strconv"

// FragmentKind classifies a single scanned unit of a Statement's source
// text. See Statement and the preparser in preparser.go.
type FragmentKind int

const (
	// FragmentText is literal SQL text carried through unchanged.
	FragmentText FragmentKind = iota
	// FragmentOneLineComment is a "-- ..." comment, newline included.
	FragmentOneLineComment
	// FragmentMultiLineComment is a "/* ... */" comment, delimiters included.
	FragmentMultiLineComment
	// FragmentPositionalParameter is a "$N" reference.
	FragmentPositionalParameter
	// FragmentNamedParameter is a ":name" reference.
	FragmentNamedParameter
	// FragmentNamedParameterLiteral is a ":'name'" reference.
	FragmentNamedParameterLiteral
	// FragmentNamedParameterIdentifier is a ':"name"' reference.
	FragmentNamedParameterIdentifier
)

// Fragment is one element of a parsed Statement's fragment list.
type Fragment struct {
	Kind FragmentKind

	// Text holds the raw source text for Text/comment fragments, exactly
	// as scanned (including comment delimiters), so that re-joining every
	// fragment's Text reproduces the statement's source.
	Text string

	// Position is the 1-based positional parameter index for
	// FragmentPositionalParameter ($N -> Position == N).
	Position int

	// Name is the parameter name for the three named-parameter kinds.
	Name string
}

// IsParameter reports whether the fragment references a parameter of any
// kind (positional or named).
func (f Fragment) IsParameter() bool {
	switch f.Kind {
	case FragmentPositionalParameter, FragmentNamedParameter,
		FragmentNamedParameterLiteral, FragmentNamedParameterIdentifier:
		return true
	}
	return false
}

// IsComment reports whether the fragment is a one-line or multi-line
// comment.
func (f Fragment) IsComment() bool {
	return f.Kind == FragmentOneLineComment || f.Kind == FragmentMultiLineComment
}

// String renders the fragment back to the SQL text it was scanned from.
func (f Fragment) String() string {
	switch f.Kind {
	case FragmentText, FragmentOneLineComment, FragmentMultiLineComment:
		return f.Text
	case FragmentPositionalParameter:
		return "$" + strconv.Itoa(f.Position)
	case FragmentNamedParameter:
		return ":" + f.Name
	case FragmentNamedParameterLiteral:
		return ":'" + f.Name + "'"
	case FragmentNamedParameterIdentifier:
		return `:"` + f.Name + `"`
	default:
		return ""
	}
}

