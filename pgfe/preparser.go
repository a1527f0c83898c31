package pgfe

import (
	"errors"
	"strconv"
	"strings"
)

// MaxParameterCount is the largest positional parameter index (and the
// largest total parameter count) a Statement may reference.
const MaxParameterCount = 65535

// ErrMalformedStatement is returned by Parse for an unterminated quoted
// identifier, string literal, comment, bracketed expression or
// dollar-quoted literal.
var ErrMalformedStatement = errors.New("pgfe: malformed statement text")

// ErrInvalidParameterName is returned by Parse when a named parameter's
// name contains no letters.
var ErrInvalidParameterName = errors.New("pgfe: named parameter has no letters")

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
func isIdentChar(b byte) bool { return isLetter(b) || isDigit(b) || b == '_' || b == '$' }
func isNameChar(b byte) bool  { return isLetter(b) || isDigit(b) || b == '_' }
func isTagChar(b byte) bool   { return isLetter(b) || isDigit(b) || b == '_' }
func isExtraTagChar(b byte) bool {
	return isLetter(b) || isDigit(b) || b == '_' || b == '-'
}

// Parse scans one SQL fragment out of source — up to its top-level ';' or
// end of input — and returns the resulting Statement plus the byte offset
// just past the consumed delimiter. It performs no I/O and has no
// dependency on a live connection.
func Parse(source string) (Statement, int, error) {
	s := Statement{}
	var text strings.Builder

	flushText := func() {
		if text.Len() > 0 {
			s.fragments = append(s.fragments, Fragment{Kind: FragmentText, Text: text.String()})
			text.Reset()
		}
	}

	lastRaw := byte(0)
	i := 0
	n := len(source)

	for i < n {
		c := source[i]

		switch {
		case c == ';':
			flushText()
			if err := finishParse(&s); err != nil {
				return Statement{}, 0, err
			}
			return s, i + 1, nil

		case c == '\'':
			j, ok := scanQuotedSpan(source, i, n, '\'')
			if !ok {
				return Statement{}, 0, ErrMalformedStatement
			}
			text.WriteString(source[i:j])
			lastRaw = '\''
			i = j
			continue

		case c == '"':
			j, ok := scanQuotedSpan(source, i, n, '"')
			if !ok {
				return Statement{}, 0, ErrMalformedStatement
			}
			text.WriteString(source[i:j])
			lastRaw = '"'
			i = j
			continue

		case c == '[':
			start := i
			depth := 1
			j := i + 1
			for j < n && depth > 0 {
				switch source[j] {
				case '[':
					depth++
				case ']':
					depth--
				}
				j++
			}
			if depth != 0 {
				return Statement{}, 0, ErrMalformedStatement
			}
			text.WriteString(source[start:j])
			lastRaw = ']'
			i = j
			continue

		case c == '-' && i+1 < n && source[i+1] == '-':
			start := i
			j := i + 2
			for j < n && source[j] != '\n' {
				j++
			}
			end := j
			if j < n {
				end = j + 1 // include the newline
			}
			flushText()
			s.fragments = append(s.fragments, Fragment{Kind: FragmentOneLineComment, Text: source[start:end]})
			lastRaw = '\n'
			i = end
			continue

		case c == '/' && i+1 < n && source[i+1] == '*':
			start := i
			depth := 1
			j := i + 2
			for j < n && depth > 0 {
				if source[j] == '/' && j+1 < n && source[j+1] == '*' {
					depth++
					j += 2
					continue
				}
				if source[j] == '*' && j+1 < n && source[j+1] == '/' {
					depth--
					j += 2
					continue
				}
				j++
			}
			if depth != 0 {
				return Statement{}, 0, ErrMalformedStatement
			}
			flushText()
			s.fragments = append(s.fragments, Fragment{Kind: FragmentMultiLineComment, Text: source[start:j]})
			lastRaw = '/'
			i = j
			continue

		case c == '$' && !isIdentChar(lastRaw):
			if i+1 < n && isDigit(source[i+1]) {
				j := i + 1
				for j < n && isDigit(source[j]) {
					j++
				}
				num, err := strconv.Atoi(source[i+1 : j])
				if err != nil || num < 1 || num > MaxParameterCount {
					return Statement{}, 0, ErrInvalidParameterPosition
				}
				flushText()
				s.fragments = append(s.fragments, Fragment{Kind: FragmentPositionalParameter, Position: num})
				s.noteParameterIndex(num)
				lastRaw = source[j-1]
				i = j
				continue
			}
			if tag, tagEnd, ok := scanDollarQuoteTag(source, i, n); ok {
				if closeAt, ok := findDollarQuoteClose(source, tagEnd, n, tag); ok {
					text.WriteString(source[i:closeAt])
					lastRaw = '$'
					i = closeAt
					continue
				}
				return Statement{}, 0, ErrMalformedStatement
			}
			text.WriteByte(c)
			lastRaw = c
			i++
			continue

		case c == ':' && i+1 < n && source[i+1] == ':':
			text.WriteString("::")
			lastRaw = ':'
			i += 2
			continue

		case c == ':' && i+1 < n && source[i+1] == '\'':
			name, j, ok := scanQuotedParamName(source, i+2, n, '\'')
			if !ok {
				text.WriteByte(c)
				lastRaw = c
				i++
				continue
			}
			if !hasLetter(name) {
				return Statement{}, 0, ErrInvalidParameterName
			}
			flushText()
			s.fragments = append(s.fragments, Fragment{Kind: FragmentNamedParameterLiteral, Name: name})
			s.noteNamedParameter(name)
			lastRaw = '\''
			i = j
			continue

		case c == ':' && i+1 < n && source[i+1] == '"':
			name, j, ok := scanQuotedParamName(source, i+2, n, '"')
			if !ok {
				text.WriteByte(c)
				lastRaw = c
				i++
				continue
			}
			if !hasLetter(name) {
				return Statement{}, 0, ErrInvalidParameterName
			}
			flushText()
			s.fragments = append(s.fragments, Fragment{Kind: FragmentNamedParameterIdentifier, Name: name})
			s.noteNamedParameter(name)
			lastRaw = '"'
			i = j
			continue

		case c == ':' && i+1 < n && isNameChar(source[i+1]):
			j := i + 1
			for j < n && isNameChar(source[j]) {
				j++
			}
			name := source[i+1 : j]
			if !hasLetter(name) {
				return Statement{}, 0, ErrInvalidParameterName
			}
			flushText()
			s.fragments = append(s.fragments, Fragment{Kind: FragmentNamedParameter, Name: name})
			s.noteNamedParameter(name)
			lastRaw = name[len(name)-1]
			i = j
			continue

		default:
			text.WriteByte(c)
			lastRaw = c
			i++
		}
	}

	flushText()
	if err := finishParse(&s); err != nil {
		return Statement{}, 0, err
	}
	return s, n, nil
}

// finishParse runs the end-of-scan byproducts shared by both exits (';'
// and end of input): the total-parameter-count ceiling and extra-data
// extraction from related comments.
func finishParse(s *Statement) error {
	if s.ParameterCount() > MaxParameterCount {
		return ErrInvalidParameterPosition
	}
	extractExtraData(s)
	return nil
}

// scanQuotedSpan consumes a quoted span ('...' or "...") starting at
// source[i] == quote, treating a doubled quote as a literal pair, and
// returns the index just past the closing quote. ok is false for an
// unterminated span.
func scanQuotedSpan(source string, i, n int, quote byte) (end int, ok bool) {
	j := i + 1
	for j < n {
		if source[j] == quote {
			if j+1 < n && source[j+1] == quote {
				j += 2
				continue
			}
			return j + 1, true
		}
		j++
	}
	return 0, false
}

func hasLetter(s string) bool {
	for i := 0; i < len(s); i++ {
		if isLetter(s[i]) {
			return true
		}
	}
	return false
}

// scanDollarQuoteTag attempts to read a dollar-quote opening marker
// "$tag$" starting at source[i] == '$'. Returns the tag text and the index
// just past the closing '$' of the opening marker.
func scanDollarQuoteTag(source string, i, n int) (tag string, tagEnd int, ok bool) {
	j := i + 1
	for j < n && isTagChar(source[j]) {
		j++
	}
	if j < n && source[j] == '$' {
		return source[i+1 : j], j + 1, true
	}
	return "", 0, false
}

// findDollarQuoteClose finds the matching "$tag$" closing marker starting
// the search at "from", returning the index just past it.
func findDollarQuoteClose(source string, from, n int, tag string) (int, bool) {
	marker := "$" + tag + "$"
	idx := strings.Index(source[from:], marker)
	if idx < 0 {
		return 0, false
	}
	return from + idx + len(marker), true
}

// scanQuotedParamName reads a :'name' or :"name" parameter name body
// starting just after the opening quote, requiring a matching closing
// quote with no escaping (the body is an identifier, not a string).
func scanQuotedParamName(source string, i, n int, quote byte) (name string, end int, ok bool) {
	j := i
	for j < n && isNameChar(source[j]) {
		j++
	}
	if j == i || j >= n || source[j] != quote {
		return "", 0, false
	}
	return source[i:j], j + 1, true
}
