// Package apperr defines the error taxonomy shared by every component of
// the order separation coordinator. Each error carries a stable code and
// the HTTP status the REST adapter should translate it to.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies one of the taxonomy's error kinds.
type Code string

const (
	// PDF errors (recoverable, reported to the caller).
	CodeExtractionEmpty Code = "EXTRACTION_EMPTY"
	CodeInvalidFile      Code = "INVALID_FILE"
	CodePatternMiss      Code = "PATTERN_MISS"
	CodeItemArithmetic   Code = "ITEM_ARITHMETIC"
	CodeOrderArithmetic  Code = "ORDER_ARITHMETIC"

	// State errors (recoverable).
	CodeDuplicateOrderNumber   Code = "DUPLICATE_ORDER_NUMBER"
	CodeOrderNotFound          Code = "ORDER_NOT_FOUND"
	CodeItemNotInOrder         Code = "ITEM_NOT_IN_ORDER"
	CodeAlreadyCompleted       Code = "ALREADY_COMPLETED"
	CodeAlreadySentToPurchase  Code = "ALREADY_SENT_TO_PURCHASE"

	// Authorization errors.
	CodePermissionDenied Code = "PERMISSION_DENIED"
	CodeUserInactive     Code = "USER_INACTIVE"

	// Connection errors (auto-recovered by disconnecting the offender).
	CodeWriteFailed        Code = "WRITE_FAILED"
	CodeUnparseableMessage Code = "UNPARSEABLE_MESSAGE"

	// Fatal, startup only.
	CodeConfigurationInvalid Code = "CONFIGURATION_INVALID"
)

// httpStatus maps each code to the status the REST adapter responds with.
var httpStatus = map[Code]int{
	CodeExtractionEmpty:       http.StatusBadRequest,
	CodeInvalidFile:           http.StatusBadRequest,
	CodePatternMiss:           http.StatusBadRequest,
	CodeItemArithmetic:        http.StatusBadRequest,
	CodeOrderArithmetic:       http.StatusOK, // non-fatal, surfaced as validation_info
	CodeDuplicateOrderNumber:  http.StatusBadRequest,
	CodeOrderNotFound:         http.StatusNotFound,
	CodeItemNotInOrder:        http.StatusBadRequest,
	CodeAlreadyCompleted:      http.StatusBadRequest,
	CodeAlreadySentToPurchase: http.StatusBadRequest,
	CodePermissionDenied:      http.StatusForbidden,
	CodeUserInactive:          http.StatusForbidden,
	CodeWriteFailed:           http.StatusInternalServerError,
	CodeUnparseableMessage:    http.StatusBadRequest,
	CodeConfigurationInvalid:  http.StatusInternalServerError,
}

// Error is the typed error every component returns instead of raising an
// exception for control flow (spec design note: "exceptions map to
// explicit result types tagged with the taxonomy").
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// HTTPStatus returns the status code the REST adapter should write.
func (e *Error) HTTPStatus() int {
	if status, ok := httpStatus[e.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// New constructs a taxonomy error with a human-readable detail.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a taxonomy code to an underlying error, preserving it for
// Unwrap/errors.Is/errors.As chains.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// As extracts an *Error from err, if present anywhere in its chain.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf returns the taxonomy code of err, or "" if err is not an *Error.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}
