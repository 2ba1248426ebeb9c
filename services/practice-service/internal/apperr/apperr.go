// Package apperr is the error taxonomy shared by every operation of the
// practice service. Each error carries a stable code for clients and an
// English message that doubles as the translation key.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindForbidden
	KindExternal
	KindTooLarge
)

const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeForbidden          = "FORBIDDEN"
	CodeLastPractice       = "LAST_PRACTICE"
	CodeStripeCancelFailed = "STRIPE_CANCEL_FAILED"
	CodeInvalidSignature   = "INVALID_SIGNATURE"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodePayloadTooLarge    = "PAYLOAD_TOO_LARGE"
	CodeInternal           = "INTERNAL_ERROR"
)

type Error struct {
	Kind   Kind
	Code   string
	Format string
	Args   []any
	Err    error
}

var (
	ErrValidation         = &Error{Kind: KindValidation, Code: CodeValidation, Format: "invalid request"}
	ErrNotFound           = &Error{Kind: KindNotFound, Code: CodeNotFound, Format: "not found"}
	ErrForbidden          = &Error{Kind: KindForbidden, Code: CodeForbidden, Format: "forbidden"}
	ErrSelfSuspend        = &Error{Kind: KindForbidden, Code: CodeForbidden, Format: "you cannot suspend your own practice"}
	ErrLastPractice       = &Error{Kind: KindForbidden, Code: CodeLastPractice, Format: "you cannot delete your only practice"}
	ErrStripeCancelFailed = &Error{Kind: KindExternal, Code: CodeStripeCancelFailed, Format: "failed to cancel subscription"}
	ErrInvalidSignature   = &Error{Kind: KindValidation, Code: CodeInvalidSignature, Format: "invalid signature"}
	ErrUnauthorized       = &Error{Kind: KindForbidden, Code: CodeUnauthorized, Format: "authentication required"}
	ErrPayloadTooLarge    = &Error{Kind: KindTooLarge, Code: CodePayloadTooLarge, Format: "request body too large"}
	ErrInternal           = &Error{Kind: KindInternal, Code: CodeInternal, Format: "internal error"}
)

func (e *Error) Error() string {
	msg := e.Code + ": " + e.Message()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Message is the untranslated client-facing message.
func (e *Error) Message() string {
	if len(e.Args) == 0 {
		return e.Format
	}
	return fmt.Sprintf(e.Format, e.Args...)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code, so every validation error matches ErrValidation.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Wrap returns a copy of e carrying cause for server-side logs.
func (e *Error) Wrap(cause error) *Error {
	c := *e
	c.Err = cause
	return &c
}

func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		if e.Code == CodeUnauthorized {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case KindExternal:
		return http.StatusBadGateway
	case KindTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// Validation builds a validation error whose format string is also the
// translation key.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: CodeValidation, Format: format, Args: args}
}

// Internal hides err behind the generic internal error.
func Internal(err error) *Error {
	return ErrInternal.Wrap(err)
}

// From maps any error onto the taxonomy; unknown errors become internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}
