// Package dropbox provides a client for the Dropbox HTTP API sufficient for
// workspace exports: OAuth refresh-token exchange and content uploads, both
// single-shot and chunked sessions. Nothing here touches the pipeline; the
// export path is independent so a Dropbox outage never blocks photo delivery.
package dropbox

import "fmt"

// ReauthRequiredError means the workspace's refresh token is no longer
// accepted. The stored integration must be flagged broken and the operator
// has to reconnect; retrying without new consent cannot succeed.
type ReauthRequiredError struct {
	Reason string
}

func (e *ReauthRequiredError) Error() string {
	return fmt.Sprintf("dropbox reauthorization required: %s", e.Reason)
}

// InsufficientSpaceError means the target Dropbox account is full.
type InsufficientSpaceError struct {
	Path string
}

func (e *InsufficientSpaceError) Error() string {
	return fmt.Sprintf("dropbox account out of space uploading %s", e.Path)
}

// RateLimitedError means Dropbox returned 429. RetryAfter is in seconds,
// zero when the header was absent.
type RateLimitedError struct {
	RetryAfter int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("dropbox rate limited, retry after %ds", e.RetryAfter)
}

// UploadError is the catch-all for upload failures that are none of the
// specific classes above.
type UploadError struct {
	Status int
	Body   string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("dropbox upload failed with status %d: %s", e.Status, e.Body)
}
