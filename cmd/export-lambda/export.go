package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/clementinehq/clementine/internal/bundle"
	"github.com/clementinehq/clementine/internal/dropbox"
	"github.com/clementinehq/clementine/internal/media"
	"github.com/clementinehq/clementine/internal/metrics"
	"github.com/clementinehq/clementine/internal/pipeline"
	"github.com/clementinehq/clementine/internal/session"
	"github.com/clementinehq/clementine/internal/store"
)

// exportFilenameLayout names exported files by capture time so they sort
// chronologically in the tenant's Dropbox folder.
const exportFilenameLayout = "2006-01-02_15-04-05"

// exportJob uploads one finished asset to the tenant's Dropbox folder.
// Returning an error triggers the event retry policy, so only transient
// failures propagate; broken integrations are marked and swallowed.
func exportJob(ctx context.Context, event pipeline.JobEvent) error {
	exportStart := time.Now()

	integ, refreshToken, ok, err := workingIntegration(ctx, event.TenantID)
	if err != nil || !ok {
		return err
	}

	job, err := jobStore.GetJob(ctx, event.TenantID, event.JobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", event.JobID, err)
	}
	if job == nil || job.Output == nil || job.Output.OutputPath == "" {
		log.Warn().
			Str("tenant_id", event.TenantID).
			Str("job_id", event.JobID).
			Msg("Completed job has no output, skipping export")
		return nil
	}

	localPath, cleanup, err := downloadOutput(ctx, job.Output.OutputPath)
	if err != nil {
		return err
	}
	defer cleanup()

	dropboxPath := path.Join(exportFolder(integ), exportFilename(localPath, job))
	size := fileSize(localPath)

	log.Info().
		Str("tenant_id", event.TenantID).
		Str("job_id", event.JobID).
		Str("dropbox_path", dropboxPath).
		Int64("bytes", size).
		Msg("Exporting job output to Dropbox")

	err = uploadWithToken(ctx, event.TenantID, refreshToken, localPath, dropboxPath)
	flushExportMetrics(event.TenantID, event.JobID, size, exportStart, err)
	return classifyExportError(ctx, event.TenantID, err)
}

// exportBundle zips a session's outputs and uploads the bundle.
func exportBundle(ctx context.Context, req bundleExportRequest) error {
	exportStart := time.Now()

	if len(req.Keys) == 0 {
		log.Warn().Str("session_id", req.SessionID).Msg("Bundle request has no keys, skipping")
		return nil
	}

	integ, refreshToken, ok, err := workingIntegration(ctx, req.TenantID)
	if err != nil || !ok {
		return err
	}

	name := req.BundleName
	if name == "" {
		name = req.SessionID
	}
	name = sanitizeBundleName(name) + ".zip"

	tmpDir, err := os.MkdirTemp("", "clem-export-")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			log.Warn().Err(err).Str("dir", tmpDir).Msg("Failed to clean up export temp dir")
		}
	}()

	zipPath := filepath.Join(tmpDir, name)
	size, err := bundle.Build(ctx, mediaStore, req.Keys, zipPath)
	if err != nil {
		return fmt.Errorf("build bundle for session %s: %w", req.SessionID, err)
	}

	dropboxPath := path.Join(exportFolder(integ), name)
	log.Info().
		Str("tenant_id", req.TenantID).
		Str("session_id", req.SessionID).
		Str("dropbox_path", dropboxPath).
		Int("keys", len(req.Keys)).
		Int64("bytes", size).
		Msg("Exporting session bundle to Dropbox")

	err = uploadWithToken(ctx, req.TenantID, refreshToken, zipPath, dropboxPath)
	flushExportMetrics(req.TenantID, req.SessionID, size, exportStart, err)
	return classifyExportError(ctx, req.TenantID, err)
}

// workingIntegration loads the tenant's Dropbox integration and decrypts its
// refresh token. ok is false when there is nothing to export to: no
// integration, a broken one, or an undecryptable token (which also marks the
// integration broken).
func workingIntegration(ctx context.Context, tenantID string) (*store.Integration, string, bool, error) {
	integ, err := jobStore.GetIntegration(ctx, tenantID, store.ProviderDropbox)
	if err != nil {
		return nil, "", false, fmt.Errorf("load dropbox integration for %s: %w", tenantID, err)
	}
	if integ == nil {
		log.Debug().Str("tenant_id", tenantID).Msg("No Dropbox integration, skipping export")
		return nil, "", false, nil
	}
	if integ.Broken {
		log.Info().Str("tenant_id", tenantID).Msg("Dropbox integration marked broken, skipping export")
		return nil, "", false, nil
	}

	refreshToken, err := tokenBox.Decrypt(integ.EncryptedRefreshToken)
	if err != nil {
		// An undecryptable token can never work again. Require reconnect.
		log.Error().Err(err).Str("tenant_id", tenantID).Msg("Stored refresh token is unreadable, marking integration broken")
		markBroken(ctx, tenantID)
		return nil, "", false, nil
	}
	return integ, refreshToken, true, nil
}

// uploadWithToken exchanges the refresh token and runs the upload, logging
// chunk progress for large files.
func uploadWithToken(ctx context.Context, tenantID, refreshToken, localPath, dropboxPath string) error {
	accessToken, err := dbxClient.AccessToken(ctx, tenantID, refreshToken)
	if err != nil {
		return err
	}
	return dbxClient.UploadFile(ctx, accessToken, localPath, dropboxPath, func(chunk, totalChunks int, bytesSent int64) {
		log.Debug().
			Str("tenant_id", tenantID).
			Str("dropbox_path", dropboxPath).
			Int("chunk", chunk).
			Int("total_chunks", totalChunks).
			Int64("bytes_sent", bytesSent).
			Msg("Upload progress")
	})
}

// classifyExportError decides which failures retry. Reauth marks the
// integration broken and stops; insufficient space stops (a retry cannot
// free the account); rate limits and everything else propagate for retry.
func classifyExportError(ctx context.Context, tenantID string, err error) error {
	if err == nil {
		return nil
	}

	var reauth *dropbox.ReauthRequiredError
	if errors.As(err, &reauth) {
		log.Error().
			Str("tenant_id", tenantID).
			Str("reason", reauth.Reason).
			Msg("Dropbox re-authorization required, marking integration broken")
		dbxClient.InvalidateToken(tenantID)
		markBroken(ctx, tenantID)
		return nil
	}

	var space *dropbox.InsufficientSpaceError
	if errors.As(err, &space) {
		log.Error().
			Str("tenant_id", tenantID).
			Str("dropbox_path", space.Path).
			Msg("Dropbox account out of space, dropping export")
		return nil
	}

	var limited *dropbox.RateLimitedError
	if errors.As(err, &limited) {
		log.Warn().
			Str("tenant_id", tenantID).
			Int("retry_after_s", limited.RetryAfter).
			Msg("Dropbox rate limited, will retry")
		return err
	}

	return fmt.Errorf("dropbox export for %s: %w", tenantID, err)
}

// exportFolder returns the tenant's configured folder, defaulting for
// integrations connected before folder selection existed. Dropbox paths
// must be absolute.
func exportFolder(integ *store.Integration) string {
	folder := integ.ExportFolder
	if folder == "" {
		folder = "/Clementine"
	}
	if !strings.HasPrefix(folder, "/") {
		folder = "/" + folder
	}
	return folder
}

func markBroken(ctx context.Context, tenantID string) {
	if err := jobStore.MarkIntegrationBroken(ctx, tenantID, store.ProviderDropbox); err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID).Msg("Failed to mark integration broken")
	}
}

// downloadOutput fetches a stored output to a temp file, preserving the
// extension so the Dropbox name keeps the right type.
func downloadOutput(ctx context.Context, key string) (string, func(), error) {
	tmpFile, err := os.CreateTemp("", "clem-export-*"+filepath.Ext(key))
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()

	if err := mediaStore.DownloadToFile(ctx, key, tmpPath); err != nil {
		os.Remove(tmpPath)
		return "", nil, fmt.Errorf("download output %s: %w", key, err)
	}
	return tmpPath, func() { os.Remove(tmpPath) }, nil
}

// exportFilename names the asset by its capture time when the file carries
// one, falling back to job completion time, suffixed with the job ID so two
// guests in the same second never collide.
func exportFilename(localPath string, job *session.JobSnapshot) string {
	stamp, ok := media.CaptureTime(localPath)
	if !ok {
		stamp = time.Unix(job.CompletedAt, 0).UTC()
	}
	return fmt.Sprintf("%s_%s%s", stamp.Format(exportFilenameLayout), job.ID, filepath.Ext(localPath))
}

func sanitizeBundleName(name string) string {
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '-'
	}, name)
	if len(name) > 60 {
		name = name[:60]
	}
	if name == "" {
		name = "session"
	}
	return name
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func flushExportMetrics(tenantID, refID string, size int64, start time.Time, err error) {
	m := metrics.New().
		Dimension("Worker", "export-lambda").
		Metric("ExportDurationMs", float64(time.Since(start).Milliseconds()), metrics.UnitMilliseconds).
		Metric("ExportBytes", float64(size), metrics.UnitBytes).
		Property("tenantId", tenantID).
		Property("refId", refID)
	if err != nil {
		m.Count("ExportFailures")
	} else {
		m.Count("ExportSuccesses")
	}
	m.Flush()
}
