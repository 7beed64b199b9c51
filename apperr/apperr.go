// Package apperr defines the error kinds surfaced by the petition core and
// their mapping to HTTP status codes and user-facing pt-BR messages.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation and presentation
type Kind string

const (
	KindValidation   Kind = "VALIDATION_ERROR"
	KindNotFound     Kind = "NOT_FOUND"
	KindUnauthorized Kind = "UNAUTHORIZED"
	KindProvider     Kind = "PROVIDER_ERROR"
	KindStaleAction  Kind = "STALE_ACTION"
	KindJob          Kind = "JOB_ERROR"
	KindConflict     Kind = "CONFLICT"
	KindInternal     Kind = "INTERNAL_ERROR"
)

var defaultMessages = map[Kind]string{
	KindValidation:   "Dados inválidos",
	KindNotFound:     "Recurso não encontrado",
	KindUnauthorized: "Autenticação necessária",
	KindProvider:     "Falha ao consultar o serviço de IA. Tente novamente.",
	KindStaleAction:  "A sugestão expirou. Solicite novamente.",
	KindJob:          "Falha no processamento. Tente novamente.",
	KindConflict:     "O documento foi alterado por outra sessão. Recarregue e tente novamente.",
	KindInternal:     "Ocorreu um erro inesperado",
}

var statuses = map[Kind]int{
	KindValidation:   http.StatusBadRequest,
	KindNotFound:     http.StatusNotFound,
	KindUnauthorized: http.StatusUnauthorized,
	KindProvider:     http.StatusBadGateway,
	KindStaleAction:  http.StatusGone,
	KindJob:          http.StatusInternalServerError,
	KindConflict:     http.StatusConflict,
	KindInternal:     http.StatusInternalServerError,
}

// FieldError describes one invalid input field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the typed error carried from services to the HTTP boundary
type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldError
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, apperr.ErrNotFound) works
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// Status returns the HTTP status for the error kind
func (e *Error) Status() int {
	if s, ok := statuses[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	ErrProvider     = &Error{Kind: KindProvider}
	ErrStaleAction  = &Error{Kind: KindStaleAction}
	ErrJob          = &Error{Kind: KindJob}
	ErrConflict     = &Error{Kind: KindConflict}
)

func newError(kind Kind, msg string, err error) *Error {
	if msg == "" {
		msg = defaultMessages[kind]
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

// Validation reports malformed caller input with field-level detail
func Validation(msg string, fields ...FieldError) *Error {
	e := newError(KindValidation, msg, nil)
	e.Fields = fields
	return e
}

// NotFound reports a missing entity or one outside the caller's tenant
func NotFound(resource string) *Error {
	msg := defaultMessages[KindNotFound]
	if resource != "" {
		msg = resource + " não encontrado(a)"
	}
	return newError(KindNotFound, msg, nil)
}

// Unauthorized reports missing or invalid credentials
func Unauthorized(err error) *Error {
	return newError(KindUnauthorized, "", err)
}

// Provider wraps an AI provider failure
func Provider(provider string, err error) *Error {
	msg := defaultMessages[KindProvider]
	if provider != "" {
		msg = fmt.Sprintf("Falha no provedor de IA %q. Tente novamente.", provider)
	}
	return newError(KindProvider, msg, err)
}

// StaleAction reports an inline action applied after its expiry
func StaleAction(actionID string) *Error {
	return newError(KindStaleAction, "", fmt.Errorf("action %s expired", actionID))
}

// Job wraps a background processor failure
func Job(kind string, err error) *Error {
	return newError(KindJob, fmt.Sprintf("Falha no job %s", kind), err)
}

// Conflict reports a revision mismatch on a document write
func Conflict(expected, actual int) *Error {
	return newError(KindConflict, "", fmt.Errorf("expected revision %d, found %d", expected, actual))
}

// Internal wraps an unexpected failure
func Internal(err error) *Error {
	return newError(KindInternal, "", err)
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// From converts any error to an *Error, defaulting to KindInternal
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
