package api

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a reconciliation failure for user-facing display.
// Codes map 1:1 to localized messages; the full server-side detail is
// logged but never surfaced to the caller.
type ErrorCode string

const (
	// CodeSettings marks a missing or invalid required settings field.
	CodeSettings ErrorCode = "settings"

	// CodeCantGetSettings marks a run started without settings at all.
	CodeCantGetSettings ErrorCode = "cantGetSettings"

	// CodeSaveSettings marks a failure persisting settings.
	CodeSaveSettings ErrorCode = "saveSettings"

	// CodeConnect marks a transport-level connection failure.
	CodeConnect ErrorCode = "connect"

	// CodeWrongCredentials marks a rejected service bind.
	CodeWrongCredentials ErrorCode = "wrongCredentials"

	// CodeBadSearchBase marks a base DN that does not exist.
	CodeBadSearchBase ErrorCode = "badSearchBase"

	// CodeInvalidFilter marks a syntactically invalid search filter.
	CodeInvalidFilter ErrorCode = "invalidFilter"

	// CodeStrongAuthRequired marks a server demanding TLS before bind.
	CodeStrongAuthRequired ErrorCode = "strongAuthRequired"

	// CodeDomainNotFound marks an unresolvable directory domain.
	CodeDomainNotFound ErrorCode = "domainNotFound"

	// CodeCertificateRequest marks a pending certificate confirmation.
	// It is non-fatal: the run ends carrying a confirmation token.
	CodeCertificateRequest ErrorCode = "certificateRequest"

	// CodeUsersNotFound marks an empty directory user population.
	CodeUsersNotFound ErrorCode = "usersNotFound"

	// CodeGroupsNotFound marks an empty directory group population.
	CodeGroupsNotFound ErrorCode = "groupsNotFound"

	// CodeQuotaExceeded marks a tenant quota hit mid-sync.
	CodeQuotaExceeded ErrorCode = "quotaExceeded"

	// CodeFormat marks malformed data while creating or updating a user.
	CodeFormat ErrorCode = "format"

	// CodeInternal marks anything unclassified.
	CodeInternal ErrorCode = "internal"
)

// ReconcileError is a classified reconciliation failure. Phase functions
// return it instead of panicking or relying on sentinel strings, so the
// job boundary can map it to the right user-facing message.
type ReconcileError struct {
	// Code selects the user-facing message.
	Code ErrorCode

	// Message is the server-side detail, logged but not shown to users.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

func (e *ReconcileError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return string(e.Code)
}

func (e *ReconcileError) Unwrap() error { return e.Err }

// NewReconcileError builds a classified error with a formatted detail
// message.
func NewReconcileError(code ErrorCode, format string, args ...interface{}) *ReconcileError {
	return &ReconcileError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapReconcileError classifies an underlying error.
func WrapReconcileError(code ErrorCode, err error, format string, args ...interface{}) *ReconcileError {
	return &ReconcileError{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the error code from err, or CodeInternal when err is
// not a ReconcileError.
func CodeOf(err error) ErrorCode {
	var re *ReconcileError
	if errors.As(err, &re) {
		return re.Code
	}
	return CodeInternal
}

// ErrQuotaExceeded is the sentinel stores return when a tenant quota is
// hit. The engine maps it to CodeQuotaExceeded.
var ErrQuotaExceeded = errors.New("tenant quota exceeded")
