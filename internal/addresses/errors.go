package addresses

import (
	"context"
	"errors"
	"fmt"

	"addrstore/internal/database/migrations"
	"addrstore/internal/model"
)

var (
	// ErrNotFound is returned when an operation names a guid with no Local row.
	ErrNotFound = errors.New("address not found")

	// ErrInvalidField is returned when a mandatory field is missing.
	ErrInvalidField = errors.New("invalid address field")

	// ErrConflict is returned when rows changed between planning and applying.
	ErrConflict = errors.New("concurrent modification")
)

// StoreError carries the guid and field an error refers to. Kind is one of
// the sentinels above, so errors.Is works through any amount of wrapping.
type StoreError struct {
	Kind  error
	GUID  string
	Field model.FieldName
	Err   error
}

func (e *StoreError) Error() string {
	msg := e.Kind.Error()
	if e.Field != "" {
		msg += fmt.Sprintf(" %q", e.Field)
	}
	if e.GUID != "" {
		msg += fmt.Sprintf(" (guid %s)", e.GUID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StoreError) Is(target error) bool { return target == e.Kind }

func (e *StoreError) Unwrap() error { return e.Err }

// NotFound returns an ErrNotFound StoreError for guid.
func NotFound(guid string) error {
	return &StoreError{Kind: ErrNotFound, GUID: guid}
}

// InvalidField returns an ErrInvalidField StoreError for field.
func InvalidField(guid string, field model.FieldName) error {
	return &StoreError{Kind: ErrInvalidField, GUID: guid, Field: field}
}

// Conflict returns an ErrConflict StoreError for guid.
func Conflict(guid string) error {
	return &StoreError{Kind: ErrConflict, GUID: guid}
}

// ErrorKind is the discriminated error category reported to hosts.
type ErrorKind string

const (
	KindNotFound        ErrorKind = "NotFound"
	KindInvalidField    ErrorKind = "InvalidField"
	KindConflict        ErrorKind = "Conflict"
	KindSchemaTooNew    ErrorKind = "SchemaTooNew"
	KindMigrationFailed ErrorKind = "MigrationFailed"
	KindInvalidRequest  ErrorKind = "InvalidRequest"
	KindCanceled        ErrorKind = "Canceled"
	KindInternal        ErrorKind = "Internal"
)

// KindOf maps err to its ErrorKind. Unknown errors are Internal.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidField):
		return KindInvalidField
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, migrations.ErrTooNew):
		return KindSchemaTooNew
	case errors.Is(err, migrations.ErrMigrationFailed):
		return KindMigrationFailed
	case errors.Is(err, model.ErrInvalidGUID), errors.Is(err, model.ErrInvalidMetadata):
		return KindInvalidRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	}
	return KindInternal
}

// FieldOf returns the field named by a StoreError in err's chain, if any.
func FieldOf(err error) model.FieldName {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Field
	}
	return ""
}
