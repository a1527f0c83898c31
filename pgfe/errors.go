package pgfe

import (
	"errors"
	"fmt"
)

// Client errors: raised by this library without server
// involvement. Non-blocking (NIO) methods report these via a returned
// error; blocking convenience methods do the same (this binding never
// panics on an expected condition — panics are reserved for programmer
// errors such as a nil statement).
var (
	ErrTimedOut               = errors.New("pgfe: timed out")
	ErrNotReadyForRequest     = errors.New("pgfe: connection not ready to accept a request")
	ErrMissingParameters      = errors.New("pgfe: statement has unbound positional parameters")
	ErrInvalidParameterPosition = errors.New("pgfe: positional parameter index out of range")
	ErrInvalidArgumentOrder   = errors.New("pgfe: named argument precedes a positional argument")
	ErrInvalidDataFormat      = errors.New("pgfe: invalid data format")
	ErrConnectionLost         = errors.New("pgfe: connection to server lost")
	ErrInvalidState           = errors.New("pgfe: operation not valid in the current state")
	ErrFeatureNotImplemented  = errors.New("pgfe: feature not implemented")
	ErrBadOptions             = errors.New("pgfe: invalid connection options")
	ErrBadURI                 = errors.New("pgfe: malformed connection URI")
	ErrEmptyName              = errors.New("pgfe: name must not be empty")
)

// ServerError reflects a PostgreSQL error response: a SQLSTATE class/code
// plus the full diagnostic field set.
type ServerError struct {
	Severity         string
	Code             string // 5-character SQLSTATE
	Message          string
	Detail           string
	Hint             string
	Position         string
	InternalPosition string
	InternalQuery    string
	Where            string
	SchemaName       string
	TableName        string
	ColumnName       string
	DataTypeName     string
	ConstraintName   string
	File             string
	Line             string
	Routine          string
}

func (e *ServerError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("pgfe: server error %s: %s (%s)", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("pgfe: server error %s: %s", e.Code, e.Message)
}

// Class returns the SQLSTATE class: the first two characters of Code.
func (e *ServerError) Class() string {
	if len(e.Code) < 2 {
		return ""
	}
	return e.Code[:2]
}

// IsClass reports whether the error's SQLSTATE belongs to the given class
// (e.g. "23" for integrity-constraint-violation, "08" for connection
// exceptions). For whole-code comparison, the constants exported by
// github.com/jackc/pgerrcode pair with Is/errors.Is.
func (e *ServerError) IsClass(class string) bool {
	return e.Class() == class
}

// Is makes errors.Is compare two ServerErrors by SQLSTATE, so
//
//	errors.Is(err, &pgfe.ServerError{Code: pgerrcode.UniqueViolation})
//
// matches any unique-violation report regardless of its diagnostic
// detail. A target with an empty Code matches any server error.
func (e *ServerError) Is(target error) bool {
	t, ok := target.(*ServerError)
	if !ok {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// SQLSTATE classes from Appendix A of the PostgreSQL error codes table.
// github.com/jackc/pgerrcode exports the individual code constants
// (UniqueViolation, ConnectionFailure, ...) but no class predicates, so
// the class prefixes the session layer reacts to live here.
const (
	classConnectionException              = "08"
	classIntegrityConstraintViolation     = "23"
	classInvalidTransactionState          = "25"
	classSyntaxErrorOrAccessRuleViolation = "42"
	classInsufficientResources            = "53"
	classOperatorIntervention             = "57"
)

// Classification helpers over the SQLSTATE classes the session layer
// reacts to.
func (e *ServerError) IsConnectionException() bool {
	return e.Class() == classConnectionException
}

func (e *ServerError) IsIntegrityConstraintViolation() bool {
	return e.Class() == classIntegrityConstraintViolation
}

func (e *ServerError) IsInvalidTransactionState() bool {
	return e.Class() == classInvalidTransactionState
}

func (e *ServerError) IsSyntaxErrorOrAccessRuleViolation() bool {
	return e.Class() == classSyntaxErrorOrAccessRuleViolation
}

func (e *ServerError) IsInsufficientResources() bool {
	return e.Class() == classInsufficientResources
}

func (e *ServerError) IsOperatorIntervention() bool {
	return e.Class() == classOperatorIntervention
}

// ErrorHandler is invoked when the server reports an error; returning true
// tells the Connection the error was consumed and must not be raised as a
// ServerError to the caller.
type ErrorHandler func(*ServerError) bool
