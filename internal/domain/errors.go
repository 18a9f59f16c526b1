package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrConfig     = errors.New("config")
	ErrProvider   = errors.New("provider")
	ErrValidation = errors.New("validation")
	ErrNotFound   = errors.New("not found")
	ErrIO         = errors.New("io")
)

// Error is a typed failure raised by the embedding and index layers.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// ConfigError reports a missing credential or unusable setting.
func ConfigError(op string, err error) *Error { return newError(ErrConfig, op, err) }

// ProviderError reports a failed or malformed embedding/generation call.
func ProviderError(op string, err error) *Error { return newError(ErrProvider, op, err) }

// ValidationError reports a count or dimension mismatch.
func ValidationError(op string, err error) *Error { return newError(ErrValidation, op, err) }

// NotFoundError reports a missing bundle artifact or document.
func NotFoundError(op string, err error) *Error { return newError(ErrNotFound, op, err) }

// IOError reports an artifact read or write failure.
func IOError(op string, err error) *Error { return newError(ErrIO, op, err) }
