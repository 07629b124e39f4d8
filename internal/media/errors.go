// Package media runs ffmpeg/ffprobe based compositing, probing, and
// thumbnail generation on local files. It never talks to object storage;
// callers stage files into a temp dir and hand over paths.
package media

import "fmt"

// ErrorKind splits compositor failures into retriable and non-retriable.
type ErrorKind string

const (
	// KindValidation means the inputs can never succeed (bad paths, formats
	// the tooling does not handle). Retrying is pointless.
	KindValidation ErrorKind = "validation"

	// KindUnknown covers tool crashes, timeouts, and silently-empty outputs.
	KindUnknown ErrorKind = "unknown"
)

// Error is the typed failure surfaced by this package.
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

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind ErrorKind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}
