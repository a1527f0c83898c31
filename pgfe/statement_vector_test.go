package pgfe

import "testing"

func TestParseStatementVectorSplitsOnTopLevelSemicolons(t *testing.T) {
	src := `
-- $id$plus_one$id$
select :n + 1;
-- $id$digit$id$
select :n;
`
	bunch, err := ParseStatementVector(src)
	if err != nil {
		t.Fatalf("ParseStatementVector: %v", err)
	}
	if bunch.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", bunch.Size())
	}
	if idx := bunch.IndexOf("id", "plus_one"); idx != 0 {
		t.Fatalf("IndexOf(id, plus_one) = %d, want 0", idx)
	}
	if idx := bunch.IndexOf("id", "digit"); idx != 1 {
		t.Fatalf("IndexOf(id, digit) = %d, want 1", idx)
	}
	if idx := bunch.IndexOf("id", "missing"); idx != -1 {
		t.Fatalf("IndexOf(id, missing) = %d, want -1", idx)
	}
}

func TestParseStatementVectorByExtra(t *testing.T) {
	src := `-- $tag$a$tag$
select 1;
-- $tag$b$tag$
select 2;`
	bunch, err := ParseStatementVector(src)
	if err != nil {
		t.Fatalf("ParseStatementVector: %v", err)
	}
	stmt, ok := bunch.ByExtra("tag", "b")
	if !ok {
		t.Fatalf("ByExtra(tag, b) not found")
	}
	if stmt.ParameterCount() != 0 {
		t.Fatalf("unexpected parameter count %d", stmt.ParameterCount())
	}
}

func TestParseStatementVectorSkipsCommentOnlyStatements(t *testing.T) {
	src := `-- just a remark
;
select 1;`
	bunch, err := ParseStatementVector(src)
	if err != nil {
		t.Fatalf("ParseStatementVector: %v", err)
	}
	if bunch.Size() != 1 {
		t.Fatalf("Size() = %d, want 1 (the comment-only statement should be skipped)", bunch.Size())
	}
}
