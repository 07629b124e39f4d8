package transform

import "fmt"

// ErrorKind discriminates transform failures. Each kind maps to a different
// operator-visible remediation, so kinds are never collapsed.
type ErrorKind string

const (
	// KindInvalidInputImage means the guest capture buffer was empty or missing.
	KindInvalidInputImage ErrorKind = "INVALID_INPUT_IMAGE"

	// KindInvalidConfig means a precondition failed before any network call.
	KindInvalidConfig ErrorKind = "INVALID_CONFIG"

	// KindReferenceImageNotFound means a configured reference image is absent
	// from storage.
	KindReferenceImageNotFound ErrorKind = "REFERENCE_IMAGE_NOT_FOUND"

	// KindAPIError covers network, provider, and response-parse failures.
	KindAPIError ErrorKind = "API_ERROR"
)

// Error is the typed failure surfaced by the transform stage. When wrapping
// an underlying error the cause is always chained, never swallowed.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError creates a transform error with no underlying cause.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates a transform error chaining an underlying cause.
func WrapError(kind ErrorKind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}
