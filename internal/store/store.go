// Package store persists job snapshots and workspace integrations in a
// single DynamoDB table. All records for a tenant share a partition key
// (TENANT#{tenantId}); sort keys distinguish jobs (JOB#{jobId}) from
// integration records (INTEG#{provider}). A TTL attribute auto-deletes job
// records after the retention window; integration records never expire.
package store

import (
	"context"
	"time"

	"github.com/clementinehq/clementine/internal/session"
)

// JobTTL is how long finished job records stay queryable. Matches the S3
// output lifecycle policy.
const JobTTL = 30 * 24 * time.Hour

// ProviderDropbox is the only export provider currently supported.
const ProviderDropbox = "dropbox"

// Integration is a workspace's connection to an export provider
// (DynamoDB SK = INTEG#{provider}).
type Integration struct {
	TenantID string `json:"-" dynamodbav:"-"`
	Provider string `json:"provider" dynamodbav:"-"`

	// EncryptedRefreshToken is the secrets-package triple, never plaintext.
	EncryptedRefreshToken string `json:"-" dynamodbav:"encryptedRefreshToken"`

	// ExportFolder is the Dropbox folder exports land in, e.g. "/Clementine".
	ExportFolder string `json:"exportFolder" dynamodbav:"exportFolder"`

	// Broken is set when the provider rejects the refresh token. Exports
	// skip broken integrations instead of burning retries on them.
	Broken bool `json:"broken" dynamodbav:"broken"`

	ConnectedAt int64 `json:"connectedAt" dynamodbav:"connectedAt"`
}

// JobStore is the persistence contract for job snapshots and integrations.
// Get methods return (nil, nil) when the record does not exist.
type JobStore interface {
	// PutJob writes a freshly-frozen snapshot. Full-item replacement.
	PutJob(ctx context.Context, job *session.JobSnapshot) error

	// GetJob retrieves a snapshot. Returns nil, nil if not found.
	GetJob(ctx context.Context, tenantID, jobID string) (*session.JobSnapshot, error)

	// SetJobOutput marks the job completed with its output location. The
	// terminal fields are written exactly once; later calls for the same
	// job are rejected by a condition on status.
	SetJobOutput(ctx context.Context, tenantID, jobID string, output *session.JobOutput) error

	// SetJobError marks the job failed with a classified error. Same
	// write-once condition as SetJobOutput.
	SetJobError(ctx context.Context, tenantID, jobID, kind, message string) error

	// PutIntegration creates or replaces a workspace integration record.
	PutIntegration(ctx context.Context, integ *Integration) error

	// GetIntegration retrieves an integration. Returns nil, nil if not found.
	GetIntegration(ctx context.Context, tenantID, provider string) (*Integration, error)

	// MarkIntegrationBroken flags an integration after a reauth-required
	// failure without touching the stored token.
	MarkIntegrationBroken(ctx context.Context, tenantID, provider string) error
}
