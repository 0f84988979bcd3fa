// Package apierr defines the error taxonomy shared by the scheduler and the
// HTTP facade (spec.md §7): a small set of sentinel kinds that the facade
// maps to HTTP status codes, and that the scheduler attaches to job records.
package apierr

import "errors"

// Kind classifies an error for both HTTP-status mapping and job-state
// reporting.
type Kind string

const (
	KindApiClient           Kind = "ApiClient"
	KindUnknownSheep        Kind = "UnknownSheep"
	KindUnknownJob          Kind = "UnknownJob"
	KindNameConflict        Kind = "NameConflict"
	KindStorageInaccessible Kind = "StorageInaccessible"
	KindSheepConfiguration  Kind = "SheepConfiguration"
	KindSheepCrashed        Kind = "SheepCrashed"
	KindJobFailed           Kind = "JobFailed"
	KindTimeout             Kind = "Timeout"
	KindInternal            Kind = "Internal"
)

// Error is a structured error carrying a Kind plus a human-readable message.
// The long trace, when present, is never surfaced over HTTP (only logged).
type Error struct {
	Kind      Kind
	Message   string
	LongTrace string
}

func (e *Error) Error() string { return e.Message }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, longTrace string) *Error {
	return &Error{Kind: kind, Message: message, LongTrace: longTrace}
}

// As extracts an *Error from err, if any wraps one.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it wraps an *Error, else KindInternal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}
