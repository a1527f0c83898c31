package pgfe

import "testing"

func TestStatementAppendMergesFragmentsAndParameters(t *testing.T) {
	a, _, err := Parse("select $1, :name")
	if err != nil {
		t.Fatalf("parse a: %v", err)
	}
	b, _, err := Parse("where $1 = :age")
	if err != nil {
		t.Fatalf("parse b: %v", err)
	}
	a.Append(b)

	if got := a.PositionalParameterCount(); got != 1 {
		t.Fatalf("positional count = %d, want 1", got)
	}
	if got := a.NamedParameterCount(); got != 2 {
		t.Fatalf("named count = %d, want 2", got)
	}
	if a.HasMissingParameters() {
		t.Fatalf("$1 is referenced in both halves, want HasMissingParameters() false")
	}
}

func TestStatementAppendUnionsPresentBitmap(t *testing.T) {
	a, _, err := Parse("select $2")
	if err != nil {
		t.Fatalf("parse a: %v", err)
	}
	if !a.HasMissingParameters() {
		t.Fatalf("$1 was never referenced, want HasMissingParameters() true")
	}
	b, _, err := Parse("and $1")
	if err != nil {
		t.Fatalf("parse b: %v", err)
	}
	a.Append(b)
	if a.HasMissingParameters() {
		t.Fatalf("union of {$2} and {$1} should cover both slots")
	}
}

func TestStatementBindStatementSubstitutesFragments(t *testing.T) {
	s, _, err := Parse("select * from t where id = :cond")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	replacement, _, err := Parse("$1 and active")
	if err != nil {
		t.Fatalf("parse replacement: %v", err)
	}
	if !s.BindStatement("cond", replacement) {
		t.Fatalf("BindStatement should find named parameter cond")
	}
	if s.PositionalParameterCount() != 1 {
		t.Fatalf("positional count after bind = %d, want 1", s.PositionalParameterCount())
	}
	if s.NamedParameterCount() != 0 {
		t.Fatalf("named count after bind = %d, want 0 (cond was substituted away)", s.NamedParameterCount())
	}
	if s.String() != "select * from t where id = $1 and active" {
		t.Fatalf("String() = %q", s.String())
	}
}

func TestStatementToQueryStringRendersNamedAsPositional(t *testing.T) {
	s, _, err := Parse("select $1, :name")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got := s.ToQueryString(nil, nil)
	want := "select $1, $2"
	if got != want {
		t.Fatalf("ToQueryString() = %q, want %q", got, want)
	}
}

func TestStatementToQueryStringQuotesLiteralAndIdentifier(t *testing.T) {
	s, _, err := Parse(`select :'lit' from :"tbl"`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	s.SetParameterValue("lit", "it's")
	s.SetParameterValue("tbl", "My Table")
	got := s.ToQueryString(
		func(v string) string { return "'" + v + "'" },
		func(v string) string { return `"` + v + `"` },
	)
	want := `select 'it's' from "My Table"`
	if got != want {
		t.Fatalf("ToQueryString() = %q, want %q", got, want)
	}
}

func TestStatementToQueryStringStripsComments(t *testing.T) {
	s, _, err := Parse("select 1 -- trailing\n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got := s.ToQueryString(nil, nil)
	if got != "select 1 " {
		t.Fatalf("ToQueryString() = %q, want %q", got, "select 1 ")
	}
}

func TestStatementExtraDataFromAdjacentComment(t *testing.T) {
	src := "-- $author$jane$author$\nselect 1"
	s, _, err := Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	v, ok := s.Extra().Get("author")
	if !ok {
		t.Fatalf("expected extra field %q", "author")
	}
	if v.String() != "jane" {
		t.Fatalf("extra[author] = %q, want %q", v.String(), "jane")
	}
}

func TestStatementExtraDataNotRelatedAcrossBlankLine(t *testing.T) {
	src := "-- $author$jane$author$\n\n\nselect 1"
	s, _, err := Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, ok := s.Extra().Get("author"); ok {
		t.Fatalf("comment separated by a blank line should not be related")
	}
}
