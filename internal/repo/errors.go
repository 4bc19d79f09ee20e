package repo

import (
	"errors"
	"fmt"
)

// Code is a structured error code surfaced to callers (and the UI layer).
type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeCannotEdit        Code = "CANNOT_EDIT"
	CodeCannotDelete      Code = "CANNOT_DELETE"
	CodeNotFound          Code = "NOT_FOUND"
)

// Error is a domain validation failure. It is never queued and never
// retried; the caller gets it immediately with the offending context.
type Error struct {
	Code    Code
	Message string
	From    string // current status, for transition errors
	To      string // attempted status, for transition errors
}

func (e *Error) Error() string {
	if e.From != "" || e.To != "" {
		return fmt.Sprintf("%s: %s (%s -> %s)", e.Code, e.Message, e.From, e.To)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsCode reports whether err is a domain Error carrying the given code.
func IsCode(err error, code Code) bool {
	var de *Error
	return errors.As(err, &de) && de.Code == code
}

func notFound(entity, id string) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf("%s %s not found", entity, id)}
}

func invalidTransition(from, to string) *Error {
	return &Error{Code: CodeInvalidTransition, Message: "status transition not allowed", From: from, To: to}
}

func validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}
