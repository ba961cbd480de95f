// Package dberr defines the errors reported to callers of the store.
package dberr

import (
	"errors"
	"fmt"
)

// Code categorizes store errors.
type Code string

const (
	// CodeOpenFailed indicates the engine refused to open the store
	// (permissions, corruption, version, or a failed migration).
	CodeOpenFailed Code = "OPEN_FAILED"

	// CodeBlocked indicates a version upgrade could not proceed because
	// other connections to the store are still open.
	CodeBlocked Code = "BLOCKED"

	// CodeTransactionFailed indicates a single CRUD transaction aborted.
	CodeTransactionFailed Code = "TRANSACTION_FAILED"

	// CodeBatchItemFailed indicates an item of a batch operation failed.
	// No partial results are reported.
	CodeBatchItemFailed Code = "BATCH_ITEM_FAILED"

	// CodeInvalidArgument indicates a caller error detected before any
	// engine work started.
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
)

// Error is a store error with structured context.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Store names the affected store.
	Store string

	// Collection names the affected collection, if any.
	Collection string

	// Index is the failing position within a batch; -1 otherwise.
	Index int

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.Collection != "" && e.Index >= 0:
		msg += fmt.Sprintf(" (store=%s, collection=%s, item=%d)", e.Store, e.Collection, e.Index)
	case e.Collection != "":
		msg += fmt.Sprintf(" (store=%s, collection=%s)", e.Store, e.Collection)
	case e.Store != "":
		msg += fmt.Sprintf(" (store=%s)", e.Store)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// OpenFailed creates an OPEN_FAILED error.
func OpenFailed(store string, cause error) *Error {
	return &Error{
		Code:    CodeOpenFailed,
		Message: "failed to open store",
		Store:   store,
		Index:   -1,
		Err:     cause,
	}
}

// Blocked creates a BLOCKED error.
func Blocked(store string, version int, cause error) *Error {
	return &Error{
		Code:    CodeBlocked,
		Message: fmt.Sprintf("upgrade to version %d blocked by open connections", version),
		Store:   store,
		Index:   -1,
		Err:     cause,
	}
}

// TransactionFailed creates a TRANSACTION_FAILED error.
func TransactionFailed(store, collection, op string, cause error) *Error {
	return &Error{
		Code:       CodeTransactionFailed,
		Message:    fmt.Sprintf("%s transaction failed", op),
		Store:      store,
		Collection: collection,
		Index:      -1,
		Err:        cause,
	}
}

// BatchItemFailed creates a BATCH_ITEM_FAILED error for item index.
func BatchItemFailed(store, collection, op string, index int, cause error) *Error {
	return &Error{
		Code:       CodeBatchItemFailed,
		Message:    fmt.Sprintf("%s batch failed", op),
		Store:      store,
		Collection: collection,
		Index:      index,
		Err:        cause,
	}
}

// InvalidArgument creates an INVALID_ARGUMENT error.
func InvalidArgument(store, collection, message string, cause error) *Error {
	return &Error{
		Code:       CodeInvalidArgument,
		Message:    message,
		Store:      store,
		Collection: collection,
		Index:      -1,
		Err:        cause,
	}
}

// CodeOf returns the code of the outermost *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Is reports whether any *Error in err's chain carries code.
func Is(err error, code Code) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Err
	}
	return false
}

// IsOpenFailed returns true if err is or wraps an OPEN_FAILED error.
func IsOpenFailed(err error) bool { return Is(err, CodeOpenFailed) }

// IsBlocked returns true if err is or wraps a BLOCKED error.
func IsBlocked(err error) bool { return Is(err, CodeBlocked) }

// IsTransactionFailed returns true if err is or wraps a TRANSACTION_FAILED error.
func IsTransactionFailed(err error) bool { return Is(err, CodeTransactionFailed) }

// IsBatchItemFailed returns true if err is or wraps a BATCH_ITEM_FAILED error.
func IsBatchItemFailed(err error) bool { return Is(err, CodeBatchItemFailed) }
