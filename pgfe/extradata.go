package pgfe

import (
	"strings"

	"github.com/riftdata/pgfe/data"
)

// extractExtraData scans a freshly parsed Statement for comments related to
// its leading content and, within their joined (decoration-stripped) text,
// for dollar-quoted "$tag$...$tag$" sequences that become (tag, Data) pairs
// in the statement's extra tuple.
func extractExtraData(s *Statement) {
	s.extra = NewTuple()

	var pending []Fragment
	flush := func() {
		if len(pending) == 0 {
			return
		}
		processCommentGroup(s, pending)
		pending = nil
	}

	prevOneLine := false
	for _, f := range s.fragments {
		switch f.Kind {
		case FragmentOneLineComment, FragmentMultiLineComment:
			pending = append(pending, f)
			prevOneLine = f.Kind == FragmentOneLineComment && strings.HasSuffix(f.Text, "\n")
		case FragmentText:
			// A one-line comment's fragment ends with its own newline,
			// which counts toward the separation from what follows.
			sep := 0
			if prevOneLine {
				sep = 1
			}
			prevOneLine = false
			trimmed := strings.TrimSpace(f.Text)
			if trimmed == "" {
				if sep+strings.Count(f.Text, "\n") > 1 {
					pending = nil
				}
				continue
			}
			leading := f.Text[:len(f.Text)-len(strings.TrimLeft(f.Text, " \t\r\n"))]
			if sep+strings.Count(leading, "\n") > 1 {
				pending = nil
				continue
			}
			flush()
		default:
			// any parameter reference is non-blank content
			prevOneLine = false
			flush()
		}
	}
}

// processCommentGroup strips comment decoration from a contiguous run of
// related comments, joins the results, and scans for dollar-quoted
// extra-data segments.
func processCommentGroup(s *Statement, comments []Fragment) {
	joined := stripGroupDecoration(comments)
	scanExtraDataTags(s, joined)
}

func stripGroupDecoration(comments []Fragment) string {
	oneLineBodies := make([]string, 0, len(comments))
	allOneLine := true
	for _, c := range comments {
		if c.Kind != FragmentOneLineComment {
			allOneLine = false
			break
		}
		body := strings.TrimPrefix(c.Text, "--")
		body = strings.TrimSuffix(body, "\n")
		body = strings.TrimSuffix(body, "\r")
		oneLineBodies = append(oneLineBodies, body)
	}
	if allOneLine {
		stripSpace := true
		for _, b := range oneLineBodies {
			if !strings.HasPrefix(b, " ") {
				stripSpace = false
				break
			}
		}
		if stripSpace {
			for i, b := range oneLineBodies {
				oneLineBodies[i] = strings.TrimPrefix(b, " ")
			}
		}
		return strings.Join(oneLineBodies, "\n")
	}

	var parts []string
	for _, c := range comments {
		switch c.Kind {
		case FragmentOneLineComment:
			body := strings.TrimPrefix(c.Text, "--")
			body = strings.TrimSuffix(body, "\n")
			body = strings.TrimSuffix(body, "\r")
			parts = append(parts, strings.TrimPrefix(body, " "))
		case FragmentMultiLineComment:
			parts = append(parts, stripMultiLineDecoration(c.Text))
		}
	}
	return strings.Join(parts, "\n")
}

// stripMultiLineDecoration implements the indent-to-border / indent-to-content
// rules for a single "/* ... */" comment's inner text.
func stripMultiLineDecoration(raw string) string {
	inner := strings.TrimPrefix(raw, "/*")
	inner = strings.TrimSuffix(inner, "*/")
	inner = trimAtMostOneNewline(inner, true)
	inner = trimAtMostOneNewline(inner, false)

	lines := strings.Split(inner, "\n")
	if len(lines) <= 1 {
		return strings.TrimSpace(inner)
	}

	allBordered := true
	minBorder := -1
	minContent := -1
	for i, line := range lines {
		if i == 0 {
			continue // first line sits on the "/*" line, not indented the same way
		}
		borderIdx := strings.IndexFunc(line, func(r rune) bool { return r != ' ' })
		if borderIdx < 0 {
			continue // blank line
		}
		if line[borderIdx] != '*' {
			allBordered = false
		} else if minBorder < 0 || borderIdx < minBorder {
			minBorder = borderIdx
		}
		contentIdx := borderIdx
		if line[borderIdx] == '*' {
			k := borderIdx + 1
			for k < len(line) && line[k] == ' ' {
				k++
			}
			contentIdx = k
		}
		if contentIdx < len(line) && (minContent < 0 || contentIdx < minContent) {
			minContent = contentIdx
		}
	}

	var b strings.Builder
	for i, line := range lines {
		if i == 0 {
			b.WriteString(line)
			b.WriteByte('\n')
			continue
		}
		if allBordered && minBorder >= 0 {
			strip := minBorder + 2
			if strip <= len(line) {
				b.WriteString(line[strip:])
			} else {
				b.WriteString(strings.TrimLeft(line, " "))
			}
		} else if minContent >= 0 {
			if minContent <= len(line) {
				b.WriteString(line[minContent:])
			} else {
				b.WriteString(line)
			}
		} else {
			b.WriteString(line)
		}
		if i != len(lines)-1 {
			b.WriteByte('\n')
		}
	}
	return strings.TrimSpace(b.String())
}

func trimAtMostOneNewline(s string, leading bool) string {
	if leading {
		if strings.HasPrefix(s, "\r\n") {
			return s[2:]
		}
		if strings.HasPrefix(s, "\n") {
			return s[1:]
		}
		return s
	}
	if strings.HasSuffix(s, "\r\n") {
		return s[:len(s)-2]
	}
	if strings.HasSuffix(s, "\n") {
		return s[:len(s)-1]
	}
	return s
}

// scanExtraDataTags finds every "$tag$...$tag$" span in text and records
// (tag, Data) into s.extra, first occurrence of a tag winning.
func scanExtraDataTags(s *Statement, text string) {
	n := len(text)
	i := 0
	for i < n {
		if text[i] != '$' {
			i++
			continue
		}
		tag, tagEnd, ok := scanDollarQuoteTagGeneric(text, i, n)
		if !ok {
			i++
			continue
		}
		closeAt, ok := findDollarQuoteClose(text, tagEnd, n, tag)
		if !ok {
			i++
			continue
		}
		content := text[tagEnd : closeAt-len(tag)-2]
		content = trimAtMostOneNewline(content, true)
		content = trimAtMostOneNewline(content, false)
		if _, exists := s.extra.Get(tag); !exists {
			s.extra.Set(tag, data.NewText(content))
		}
		i = closeAt
	}
}

// scanDollarQuoteTagGeneric mirrors scanDollarQuoteTag but uses the wider
// extra-data tag charset (letters, digits, '_', '-') rather than the
// parameter dollar-quote charset.
func scanDollarQuoteTagGeneric(source string, i, n int) (tag string, tagEnd int, ok bool) {
	j := i + 1
	for j < n && isExtraTagChar(source[j]) {
		j++
	}
	if j < n && source[j] == '$' && j > i+1 {
		return source[i+1 : j], j + 1, true
	}
	return "", 0, false
}
