package pgfe

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
)

func TestServerErrorCompareByCode(t *testing.T) {
	err := fmt.Errorf("executing: %w", &ServerError{
		Severity: "ERROR",
		Code:     pgerrcode.UniqueViolation,
		Message:  "duplicate key value violates unique constraint",
	})
	if !errors.Is(err, &ServerError{Code: pgerrcode.UniqueViolation}) {
		t.Fatalf("errors.Is should match on equal SQLSTATE")
	}
	if errors.Is(err, &ServerError{Code: pgerrcode.SerializationFailure}) {
		t.Fatalf("errors.Is must not match a different SQLSTATE")
	}
	if !errors.Is(err, &ServerError{}) {
		t.Fatalf("a target with no code should match any server error")
	}
}

func TestServerErrorClassHelpers(t *testing.T) {
	cases := []struct {
		code  string
		check func(*ServerError) bool
	}{
		{pgerrcode.ConnectionFailure, (*ServerError).IsConnectionException},
		{pgerrcode.UniqueViolation, (*ServerError).IsIntegrityConstraintViolation},
		{pgerrcode.InFailedSQLTransaction, (*ServerError).IsInvalidTransactionState},
		{pgerrcode.UndefinedColumn, (*ServerError).IsSyntaxErrorOrAccessRuleViolation},
		{pgerrcode.TooManyConnections, (*ServerError).IsInsufficientResources},
		{pgerrcode.AdminShutdown, (*ServerError).IsOperatorIntervention},
	}
	for _, tc := range cases {
		se := &ServerError{Code: tc.code}
		if !tc.check(se) {
			t.Errorf("code %s not recognized by its class helper", tc.code)
		}
	}
	se := &ServerError{Code: pgerrcode.UniqueViolation}
	if se.Class() != "23" || !se.IsClass("23") {
		t.Fatalf("Class() = %q, want 23", se.Class())
	}
}

func TestServerErrorMessageIncludesDetail(t *testing.T) {
	se := &ServerError{Code: "23505", Message: "duplicate key", Detail: "Key (id)=(1) already exists."}
	got := se.Error()
	want := "pgfe: server error 23505: duplicate key (Key (id)=(1) already exists.)"
	if got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}
