// Package syncerr defines the error kinds surfaced by provisioning and sync
// cycles.
package syncerr

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Error is the structured error returned by every twinsync package.
//
// Error kinds:
//   - Initialization failure: a side lacks the change log or bookkeeping tables
//   - Not found: a specific table or trigger is absent during validation
//   - Invalid: re-provisioning, bad arguments, bad overrides
//   - Query parse: a change record cannot become a replay statement
//   - Sync in progress: the hub lock is held and the cycle was not forced
//   - Database: an underlying statement failed
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Side names the database the error relates to ("edge" or "hub").
	Side string

	// Table names the affected table, if any.
	Table string

	// Err is the underlying cause.
	Err error

	// Details contains additional context.
	Details map[string]string
}

// Code categorizes errors.
type Code string

const (
	CodeInitializationFailure Code = "INITIALIZATION_FAILURE"
	CodeNotFound              Code = "NOT_FOUND"
	CodeInvalid               Code = "INVALID"
	CodeQueryParse            Code = "QUERY_PARSE"
	CodeSyncInProgress        Code = "SYNC_IN_PROGRESS"
	CodeDatabase              Code = "DATABASE"
)

// Reasons recorded in Details["reason"] for Invalid errors.
const (
	ReasonAlreadyProvisioned = "already_provisioned"
	ReasonMissingArgument    = "missing_argument"
	ReasonWrongSide          = "wrong_side"
	ReasonBadOverride        = "bad_override"
	ReasonBadConfig          = "bad_config"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.Side != "" && e.Table != "":
		msg = fmt.Sprintf("%s (side=%s, table=%s)", msg, e.Side, e.Table)
	case e.Side != "":
		msg = fmt.Sprintf("%s (side=%s)", msg, e.Side)
	case e.Table != "":
		msg = fmt.Sprintf("%s (table=%s)", msg, e.Table)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

func hasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// IsInitializationFailure reports whether err is an initialization failure.
func IsInitializationFailure(err error) bool { return hasCode(err, CodeInitializationFailure) }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return hasCode(err, CodeNotFound) }

// IsInvalid reports whether err is an invalid-operation error.
func IsInvalid(err error) bool { return hasCode(err, CodeInvalid) }

// IsQueryParse reports whether err is a replay statement construction error.
func IsQueryParse(err error) bool { return hasCode(err, CodeQueryParse) }

// IsSyncInProgress reports whether err is lock contention.
func IsSyncInProgress(err error) bool { return hasCode(err, CodeSyncInProgress) }

// IsDatabase reports whether err is a database execution failure.
func IsDatabase(err error) bool { return hasCode(err, CodeDatabase) }

// IsAlreadyProvisioned reports whether err rejects re-provisioning of a side.
func IsAlreadyProvisioned(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == CodeInvalid && se.Details["reason"] == ReasonAlreadyProvisioned
	}
	return false
}

// NewInitializationFailure creates an error for a side that cannot be used.
func NewInitializationFailure(side, message string, cause error) *Error {
	return &Error{
		Code:    CodeInitializationFailure,
		Message: message,
		Side:    side,
		Err:     cause,
	}
}

// NewNotFound creates an error for a missing table or trigger.
func NewNotFound(side, object, name string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s %q not found", object, name),
		Side:    side,
		Details: map[string]string{
			"object": object,
			"name":   name,
		},
	}
}

// NewInvalid creates an error for an operation that cannot proceed.
func NewInvalid(reason, message string) *Error {
	e := &Error{
		Code:    CodeInvalid,
		Message: message,
	}
	if reason != "" {
		e.Details = map[string]string{"reason": reason}
	}
	return e
}

// NewAlreadyProvisioned creates an error for a side that already carries
// bookkeeping tables.
func NewAlreadyProvisioned(side, table string) *Error {
	e := NewInvalid(ReasonAlreadyProvisioned, "side is already provisioned")
	e.Side = side
	e.Table = table
	return e
}

// NewQueryParse creates an error for a change record that cannot be turned
// into a replay statement.
func NewQueryParse(table, message string, cause error) *Error {
	return &Error{
		Code:    CodeQueryParse,
		Message: message,
		Table:   table,
		Err:     cause,
	}
}

// NewSyncInProgress creates the lock contention error.
func NewSyncInProgress(side string) *Error {
	return &Error{
		Code:    CodeSyncInProgress,
		Message: "another sync cycle holds the lock",
		Side:    side,
	}
}

// Database wraps a failed statement. The cause carries a stack trace,
// printable with %+v.
func Database(side string, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    CodeDatabase,
		Message: fmt.Sprintf(format, args...),
		Side:    side,
		Err:     pkgerrors.WithStack(cause),
	}
}
