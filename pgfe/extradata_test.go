package pgfe

import "testing"

func TestExtraDataExtractedBeforeSemicolonTerminator(t *testing.T) {
	s, consumed, err := Parse("-- $id$first$id$\nselect 1; select 2")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if consumed != len("-- $id$first$id$\nselect 1;") {
		t.Fatalf("consumed = %d", consumed)
	}
	d, ok := s.Extra().Get("id")
	if !ok || string(d.Bytes()) != "first" {
		t.Fatalf("extra id = %v %q, want first", ok, d.Bytes())
	}
}

func TestExtraDataSpansAdjacentOneLineComments(t *testing.T) {
	s, _, err := Parse("-- $description$adds\n-- one$description$\nselect :n + 1")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	d, ok := s.Extra().Get("description")
	if !ok {
		t.Fatalf("extra field description missing")
	}
	if got := string(d.Bytes()); got != "adds\none" {
		t.Fatalf("description = %q, want %q", got, "adds\none")
	}
}

func TestExtraDataFromMultiLineBorderedComment(t *testing.T) {
	src := `/*
 * $meta$first line
 * second line$meta$
 */
select 1`
	s, _, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	d, ok := s.Extra().Get("meta")
	if !ok {
		t.Fatalf("extra field meta missing")
	}
	if got := string(d.Bytes()); got != "first line\nsecond line" {
		t.Fatalf("meta = %q, want %q", got, "first line\nsecond line")
	}
}

func TestExtraDataTagCharset(t *testing.T) {
	s, _, err := Parse("-- $my-tag_2$value$my-tag_2$\nselect 1")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, ok := s.Extra().Get("my-tag_2"); !ok {
		t.Fatalf("dashes and digits are valid extra-data tag characters")
	}
}

func TestExtraDataFirstOccurrenceWins(t *testing.T) {
	s, _, err := Parse("-- $id$one$id$ $id$two$id$\nselect 1")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	d, ok := s.Extra().Get("id")
	if !ok || string(d.Bytes()) != "one" {
		t.Fatalf("id = %v %q, want first occurrence to win", ok, d.Bytes())
	}
}
