package storeerr

import (
	"fmt"
	"io/fs"
	"net/http"

	"github.com/pkg/errors"
)

// A Kind classifies a failure so front-ends can branch on it without parsing messages.
type Kind int

const (
	// Unknown is returned by KindOf for errors that do not carry a Kind.
	Unknown Kind = iota
	// NotFound means a manifest, blob or archive is absent.
	NotFound
	// Corrupt means a manifest could not be parsed or an archive is malformed.
	Corrupt
	// Integrity means a digest did not match the content it names.
	Integrity
	// IncompleteSource means an export source is missing a referenced blob.
	IncompleteSource
	// AlreadyExists means the target of an import or export is already present.
	AlreadyExists
	// IO is an underlying filesystem failure.
	IO
	// NotConfirmed means a destructive operation was requested without confirmation.
	NotConfirmed
)

var names = map[Kind]string{
	Unknown:          "unknown",
	NotFound:         "not found",
	Corrupt:          "corrupt",
	Integrity:        "integrity error",
	IncompleteSource: "incomplete source",
	AlreadyExists:    "already exists",
	IO:               "io error",
	NotConfirmed:     "not confirmed",
}

func (k Kind) String() string {
	if s, ok := names[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// HTTPCode returns the HTTP status used to render the kind.
func (k Kind) HTTPCode() int {
	switch k {
	case NotFound:
		return http.StatusNotFound
	case Corrupt, Integrity, IncompleteSource:
		return http.StatusUnprocessableEntity
	case AlreadyExists:
		return http.StatusConflict
	case NotConfirmed:
		return http.StatusPreconditionRequired
	default:
		return http.StatusInternalServerError
	}
}

// An Error is a typed failure of a store operation.
type Error struct {
	Kind Kind
	// Op is the step in progress (e.g. "import: write blobs").
	Op string
	// Subject is the identity or digest involved.
	Subject string
	Err     error
}

// New returns a new Error.
func New(kind Kind, op, subject string, err error) error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Subject: subject,
		Err:     err,
	}
}

// Errorf returns a new Error with a formatted cause.
func Errorf(kind Kind, op, subject, format string, args ...interface{}) error {
	return New(kind, op, subject, errors.Errorf(format, args...))
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Subject != "" {
		msg += " " + e.Subject
	}
	msg += ": " + e.Kind.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Cause implements the github.com/pkg/errors causer.
func (e *Error) Cause() error {
	return e.Err
}

// HTTPCode returns the HTTP status code.
func (e *Error) HTTPCode() int {
	return e.Kind.HTTPCode()
}

// KindOf returns the Kind of the outermost Error found in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// FromOS converts a filesystem error: missing files become NotFound, everything else IO.
// Errors that already carry a Kind are returned untouched.
func FromOS(op, subject string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != Unknown {
		return err
	}
	if errors.Is(err, fs.ErrNotExist) {
		return New(NotFound, op, subject, err)
	}
	return New(IO, op, subject, err)
}
