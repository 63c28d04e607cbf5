package errors

import (
	stderrors "errors"
	"fmt"
)

// Stage identifies the step of handler construction that failed
type Stage string

const (
	// StageLookup means the configured handler type has no factory
	StageLookup Stage = "lookup"
	// StageInstantiate means the schema or factory constructor failed
	StageInstantiate Stage = "instantiate"
	// StageProvision means the storage binding could not provision the store
	StageProvision Stage = "provision"
	// StageAttach means the handler refused the hosting context
	StageAttach Stage = "attach"
)

// Sentinels for errors.Is comparisons. Matching is by code only
var (
	ErrUnregisteredRepository    = New(CodeUnregisteredRepository, "unregistered repository")
	ErrBareRepositoryReference   = New(CodeBareRepositoryReference, "only a repository was specified")
	ErrInvalidIdentifier         = New(CodeInvalidIdentifier, "invalid identifier")
	ErrInvalidConfig             = New(CodeInvalidConfig, "invalid repository config")
	ErrHandlerConstructionFailed = New(CodeHandlerConstructionFailed, "handler construction failed")
	ErrCatalogUnavailable        = New(CodeCatalogUnavailable, "schema catalog unavailable")
	ErrSchemaNotFound            = New(CodeSchemaNotFound, "schema not found")
	ErrInvalidArgument           = New(CodeInvalidArgument, "invalid argument")
	ErrNotFound                  = New(CodeNotFound, "not found")
	ErrConflict                  = New(CodeConflict, "conflict")
)

// Error is the domain error type with structured metadata
type Error struct {
	Code     Code              // Machine-readable error code
	Message  string            // Internal message (for logs)
	Metadata map[string]string // Additional context
	Cause    error             // Wrapped underlying error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a simple domain error with a code and message
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates a domain error with a formatted message
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// WithMetadata creates a domain error with metadata
func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Metadata: metadata,
	}
}

// Wrap creates a domain error that wraps an underlying cause
func Wrap(code Code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Construction reports a failed handler build for repository at stage
func Construction(repository string, stage Stage, cause error) *Error {
	return &Error{
		Code:    CodeHandlerConstructionFailed,
		Message: fmt.Sprintf("build handler for %s failed at %s", repository, stage),
		Metadata: map[string]string{
			"repository": repository,
			"stage":      string(stage),
		},
		Cause: cause,
	}
}

// CodeOf returns the code of the first *Error in err's chain
func CodeOf(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// StageOf returns the construction stage recorded on err, if any
func StageOf(err error) (Stage, bool) {
	var e *Error
	if !stderrors.As(err, &e) || e.Code != CodeHandlerConstructionFailed {
		return "", false
	}
	stage, ok := e.Metadata["stage"]
	return Stage(stage), ok
}
