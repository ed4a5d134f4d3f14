// Package apperr defines the error kinds shared by the store, service and
// HTTP layers.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindStorageCorruption
	KindStorageIO
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindNotFound:
		return "NotFound"
	case KindStorageCorruption:
		return "StorageCorruption"
	case KindStorageIO:
		return "StorageIOFailure"
	default:
		return "Internal"
	}
}

// FieldError points at one offending input field.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

type Error struct {
	Kind    Kind
	Op      string
	Msg     string
	Err     error
	Details []FieldError
}

// Sentinels for errors.Is; they match any *Error of the same Kind.
var (
	ErrValidation        = &Error{Kind: KindValidation, Msg: "validation error"}
	ErrNotFound          = &Error{Kind: KindNotFound, Msg: "Task not found"}
	ErrStorageCorruption = &Error{Kind: KindStorageCorruption, Msg: "storage corrupted"}
	ErrStorageIO         = &Error{Kind: KindStorageIO, Msg: "storage failure"}
)

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch {
	case e.Msg != "":
		b.WriteString(e.Msg)
	default:
		b.WriteString(e.Kind.String())
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if len(e.Details) > 0 {
		parts := make([]string, 0, len(e.Details))
		for _, d := range e.Details {
			parts = append(parts, d.Path+": "+d.Message)
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(parts, "; "))
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func Validation(details ...FieldError) *Error {
	return &Error{Kind: KindValidation, Msg: "validation error", Details: details}
}

func NotFound(op, id string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Msg: fmt.Sprintf("task %q not found", id)}
}

// StorageIO wraps an I/O failure of the given storage operation.
func StorageIO(op string, err error) *Error {
	return &Error{Kind: KindStorageIO, Op: op, Err: err}
}

func Corruption(op string, err error) *Error {
	return &Error{Kind: KindStorageCorruption, Op: op, Err: err}
}

// KindOf reports the Kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// DetailsOf returns field details carried by a validation error.
func DetailsOf(err error) []FieldError {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindValidation {
		return e.Details
	}
	return nil
}
