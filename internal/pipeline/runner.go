// Package pipeline executes the transform pipeline for one job snapshot:
// resolve the prompt, load references, call the AI provider, composite the
// overlay, and upload the output. Stages run in a strict order; each stage's
// failure is classified and written back to the job exactly once.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/clementinehq/clementine/internal/jobs"
	"github.com/clementinehq/clementine/internal/media"
	"github.com/clementinehq/clementine/internal/metrics"
	"github.com/clementinehq/clementine/internal/prompt"
	"github.com/clementinehq/clementine/internal/session"
	"github.com/clementinehq/clementine/internal/storage"
	"github.com/clementinehq/clementine/internal/store"
	"github.com/clementinehq/clementine/internal/transform"
)

// ErrorKindUnknown is the writeback kind for failures no stage classified.
const ErrorKindUnknown = "UNKNOWN"

// Runner wires the pipeline stages to their backing services. All fields are
// required; there are no ambient singletons, so tests compose fakes.
type Runner struct {
	Store     store.JobStore
	Media     storage.MediaStore
	Providers *transform.Registry
	Events    EventPublisher
}

// Run executes the pipeline for one job. Re-delivered tasks for terminal
// jobs are acknowledged without re-running. The returned error is reserved
// for infrastructure failures (store unreachable); pipeline failures are
// persisted to the job and do not propagate.
func (r *Runner) Run(ctx context.Context, tenantID, jobID string) error {
	job, err := r.Store.GetJob(ctx, tenantID, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job == nil {
		return fmt.Errorf("job %s not found for tenant %s", jobID, tenantID)
	}
	if job.Terminal() {
		log.Info().
			Str("tenant_id", tenantID).
			Str("job_id", jobID).
			Str("status", job.Status).
			Msg("Job already terminal, acknowledging redelivery")
		return nil
	}

	log.Info().
		Str("tenant_id", tenantID).
		Str("job_id", jobID).
		Dur("queue_delay", job.Age()).
		Msg("Job picked up")

	job.Status = session.JobStatusRunning
	if err := r.Store.PutJob(ctx, job); err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}

	tempDir, err := os.MkdirTemp("", "clem-job-")
	if err != nil {
		return fmt.Errorf("create job temp dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tempDir); err != nil {
			log.Warn().Err(err).Str("dir", tempDir).Msg("Failed to clean up job temp dir")
		}
	}()

	start := time.Now()
	output, runErr := r.execute(ctx, job, tempDir)
	elapsed := time.Since(start)

	m := metrics.New().
		Dimension("Outcome", job.Outcome.Active).
		Metric("PipelineDurationMs", float64(elapsed.Milliseconds()), metrics.UnitMilliseconds).
		Count("PipelineRuns").
		Property("tenantId", tenantID).
		Property("jobId", jobID)

	if runErr != nil {
		kind := classifyKind(runErr)
		m.Count("PipelineFailures").Property("errorKind", kind)
		m.Flush()

		log.Error().
			Err(runErr).
			Str("tenant_id", tenantID).
			Str("job_id", jobID).
			Str("error_kind", kind).
			Dur("duration", elapsed).
			Msg("Pipeline failed")

		if err := r.Store.SetJobError(ctx, tenantID, jobID, kind, runErr.Error()); err != nil {
			return fmt.Errorf("record job failure: %w", err)
		}
		r.publish(ctx, eventTypeFailed, JobEvent{
			TenantID:  tenantID,
			JobID:     jobID,
			SessionID: job.SessionID,
			Status:    session.JobStatusFailed,
			ErrorKind: kind,
		})
		return nil
	}

	m.Count("PipelineSuccesses")
	m.Flush()

	if err := r.Store.SetJobOutput(ctx, tenantID, jobID, output); err != nil {
		return fmt.Errorf("record job output: %w", err)
	}
	r.publish(ctx, eventTypeCompleted, JobEvent{
		TenantID:  tenantID,
		JobID:     jobID,
		SessionID: job.SessionID,
		Status:    session.JobStatusCompleted,
		OutputURL: output.URL,
	})

	log.Info().
		Str("tenant_id", tenantID).
		Str("job_id", jobID).
		Str("output_path", output.OutputPath).
		Dur("duration", elapsed).
		Msg("Pipeline complete")
	return nil
}

// execute runs the stages in order and returns the uploaded output.
func (r *Runner) execute(ctx context.Context, job *session.JobSnapshot, tempDir string) (*session.JobOutput, error) {
	captureStepID, err := activeCaptureStep(&job.Outcome)
	if err != nil {
		return nil, err
	}

	capture := job.CaptureAnswer(captureStepID)
	if capture == nil || len(capture.CapturedMedia) == 0 {
		return nil, transform.NewError(transform.KindInvalidInputImage,
			"no captured media for step %s", captureStepID)
	}
	captureRef := capture.CapturedMedia[0]
	captureKey := captureRef.StoragePath()
	if captureKey == "" {
		return nil, transform.NewError(transform.KindInvalidInputImage,
			"captured media %q has no storage path", captureRef.Name())
	}

	workingPath := filepath.Join(tempDir, "working"+filepath.Ext(captureKey))
	mimeType := transform.MIMEFromKey(captureKey)

	if skipStage(StageTransform, &job.Outcome, job.Overlay) {
		if err := r.Media.DownloadToFile(ctx, captureKey, workingPath); err != nil {
			return nil, transform.WrapError(transform.KindInvalidInputImage, err,
				"download captured photo %s", captureKey)
		}
	} else {
		cfg := job.Outcome.AIImage

		resolved := prompt.Resolve(cfg.PromptTemplate, job.Answers, cfg.ReferenceMedia)
		if resolved.Text == "" {
			return nil, transform.NewError(transform.KindInvalidConfig, "prompt resolved to empty text")
		}

		refs, err := transform.LoadReferences(ctx, r.Media, resolved.MediaRefs)
		if err != nil {
			return nil, err
		}

		input, err := r.Media.Download(ctx, captureKey)
		if err != nil {
			return nil, transform.WrapError(transform.KindInvalidInputImage, err,
				"download captured photo %s", captureKey)
		}

		provider, ok := r.Providers.Get(cfg.Provider)
		if !ok {
			return nil, transform.NewError(transform.KindInvalidConfig,
				"unknown provider %q, registered: %v", cfg.Provider, r.Providers.Names())
		}

		img, err := provider.Transform(ctx, input, transform.Config{
			Provider:    cfg.Provider,
			Model:       cfg.Model,
			Prompt:      resolved.Text,
			TaskMode:    cfg.TaskMode,
			AspectRatio: cfg.AspectRatio,
			ImageSize:   cfg.ImageSize,
			Temperature: cfg.Temperature,
		}, refs)
		if err != nil {
			return nil, err
		}

		mimeType = img.MIMEType
		workingPath = filepath.Join(tempDir, "working"+extForMIME(img.MIMEType))
		if err := os.WriteFile(workingPath, img.Data, 0o600); err != nil {
			return nil, fmt.Errorf("write transformed image: %w", err)
		}
	}

	if !skipStage(StageOverlay, &job.Outcome, job.Overlay) {
		overlayKey := job.Overlay.StoragePath()
		if overlayKey == "" {
			return nil, &media.Error{Kind: media.KindValidation,
				Message: fmt.Sprintf("overlay %q has no storage path", job.Overlay.Name())}
		}
		overlayPath := filepath.Join(tempDir, "overlay"+filepath.Ext(overlayKey))
		if err := r.Media.DownloadToFile(ctx, overlayKey, overlayPath); err != nil {
			return nil, fmt.Errorf("download overlay %s: %w", overlayKey, err)
		}

		composited := filepath.Join(tempDir, "composited"+filepath.Ext(workingPath))
		if err := media.CompositeOverlay(ctx, workingPath, overlayPath, composited); err != nil {
			return nil, err
		}
		workingPath = composited
	}

	return r.upload(ctx, job, workingPath, mimeType)
}

// upload delivers the finished asset and its thumbnail to tenant storage.
func (r *Runner) upload(ctx context.Context, job *session.JobSnapshot, localPath, mimeType string) (*session.JobOutput, error) {
	assetID := jobs.NewAssetID()
	ext := filepath.Ext(localPath)
	outputKey := storage.TenantKey(job.TenantID, "outputs", assetID+ext)

	url, err := r.Media.Upload(ctx, localPath, outputKey, mimeType)
	if err != nil {
		return nil, fmt.Errorf("upload output: %w", err)
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return nil, fmt.Errorf("stat output: %w", err)
	}

	output := &session.JobOutput{
		OutputPath: outputKey,
		URL:        url,
		MIMEType:   mimeType,
		Bytes:      info.Size(),
	}

	// Thumbnails are best-effort: the gallery falls back to the full asset
	// when one is missing.
	thumb, thumbMIME, err := media.GenerateThumbnail(ctx, localPath, media.DefaultThumbnailMaxDimension)
	if err != nil {
		log.Warn().Err(err).Str("job_id", job.ID).Msg("Thumbnail generation failed, continuing without")
		return output, nil
	}
	thumbKey := storage.TenantKey(job.TenantID, "outputs", assetID+"_thumb"+extForMIME(thumbMIME))
	thumbURL, err := r.Media.UploadBytes(ctx, thumb, thumbKey, thumbMIME)
	if err != nil {
		log.Warn().Err(err).Str("job_id", job.ID).Msg("Thumbnail upload failed, continuing without")
		return output, nil
	}
	output.ThumbnailPath = thumbKey
	output.ThumbnailURL = thumbURL
	return output, nil
}

// publish emits a lifecycle event, logging but not failing on errors: the
// job record is the source of truth, events are a convenience.
func (r *Runner) publish(ctx context.Context, detailType string, event JobEvent) {
	if r.Events == nil {
		return
	}
	if err := r.Events.Publish(ctx, detailType, event); err != nil {
		log.Warn().Err(err).Str("job_id", event.JobID).Msg("Failed to publish job event")
	}
}

// activeCaptureStep returns the capture step ID for the active outcome.
func activeCaptureStep(outcome *session.OutcomeConfig) (string, error) {
	switch outcome.Active {
	case session.OutcomeAIImage:
		if outcome.AIImage == nil || outcome.AIImage.CaptureStepID == "" {
			return "", transform.NewError(transform.KindInvalidConfig, "ai.image outcome has no capture step")
		}
		return outcome.AIImage.CaptureStepID, nil
	case session.OutcomePhoto:
		if outcome.Photo == nil || outcome.Photo.CaptureStepID == "" {
			return "", transform.NewError(transform.KindInvalidConfig, "photo outcome has no capture step")
		}
		return outcome.Photo.CaptureStepID, nil
	default:
		return "", transform.NewError(transform.KindInvalidConfig,
			"outcome type %q is not executable", outcome.Active)
	}
}

// classifyKind maps a stage error to the writeback error kind.
func classifyKind(err error) string {
	var terr *transform.Error
	if errors.As(err, &terr) {
		return string(terr.Kind)
	}
	var merr *media.Error
	if errors.As(err, &merr) {
		return string(merr.Kind)
	}
	return ErrorKindUnknown
}

// extForMIME returns the file extension for an output MIME type.
func extForMIME(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}
