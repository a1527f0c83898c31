package pgfe

import "strings"

// StatementVector is an ordered collection of Statements parsed out of a
// multi-statement source text, looked up by extra-data field the way a
// consumer finds a named fragment inside a migration file.
type StatementVector struct {
	statements []Statement
}

// ParseStatementVector splits source on top-level semicolons via repeated
// Parse calls and collects every non-empty Statement, plus every empty one
// that carries extra data, with each statement's extra data already
// extracted.
func ParseStatementVector(source string) (StatementVector, error) {
	var bunch StatementVector
	rest := source
	for {
		stmt, consumed, err := Parse(rest)
		if err != nil {
			return StatementVector{}, err
		}
		if !stmt.IsEmpty() || len(stmt.Extra().Names()) > 0 {
			bunch.statements = append(bunch.statements, stmt)
		}
		if consumed >= len(rest) {
			break
		}
		rest = rest[consumed:]
		if strings.TrimSpace(rest) == "" {
			break
		}
	}
	return bunch, nil
}

// Size returns the number of statements in the vector.
func (v StatementVector) Size() int {
	return len(v.statements)
}

// Statement returns the statement at idx.
func (v StatementVector) Statement(idx int) Statement {
	return v.statements[idx]
}

// Statements returns the underlying slice; callers must not mutate it.
func (v StatementVector) Statements() []Statement {
	return v.statements
}

// IndexOf returns the index of the first statement whose extra tuple has
// field with the given value, or -1 if none matches.
func (v StatementVector) IndexOf(field, value string) int {
	for i, s := range v.statements {
		if d, ok := s.Extra().Get(field); ok && string(d.Bytes()) == value {
			return i
		}
	}
	return -1
}

// ByExtra returns the first statement whose extra tuple has field equal to
// value, and whether one was found.
func (v StatementVector) ByExtra(field, value string) (Statement, bool) {
	i := v.IndexOf(field, value)
	if i < 0 {
		return Statement{}, false
	}
	return v.statements[i], true
}

// Append adds a parsed statement to the end of the vector.
func (v *StatementVector) Append(s Statement) {
	v.statements = append(v.statements, s)
}
