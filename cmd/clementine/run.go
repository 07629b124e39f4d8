package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/clementinehq/clementine/internal/config"
	"github.com/clementinehq/clementine/internal/pipeline"
	"github.com/clementinehq/clementine/internal/session"
	"github.com/clementinehq/clementine/internal/storage"
	"github.com/clementinehq/clementine/internal/store"
	"github.com/clementinehq/clementine/internal/transform"
)

var (
	configFlag string
	outputFlag string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one transform job from a TOML run file",
	Run:   runJob,
}

func init() {
	runCmd.Flags().StringVarP(&configFlag, "config", "c", "clementine.toml", "Path to the TOML run file")
	runCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Copy the finished asset to this local path")
}

func runJob(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load run file")
	}

	job := cfg.ToSnapshot(time.Now().Unix())
	mediaStore := storage.NewDirStore(cfg.MediaDir)
	jobStore := newLocalStore()

	ctx := context.Background()
	if err := jobStore.PutJob(ctx, job); err != nil {
		log.Fatal().Err(err).Msg("Failed to stage job")
	}

	var providers []transform.Provider
	if job.Outcome.Active == session.OutcomeAIImage {
		apiKey := os.Getenv("GEMINI_API_KEY")
		if apiKey == "" {
			log.Fatal().Msg("GEMINI_API_KEY is required for ai.image runs")
		}
		providers = append(providers, transform.NewGeminiProvider(apiKey))
	}

	runner := &pipeline.Runner{
		Store:     jobStore,
		Media:     mediaStore,
		Providers: transform.NewRegistry(providers...),
		Events:    logPublisher{},
	}

	log.Info().
		Str("job_id", job.ID).
		Str("tenant_id", job.TenantID).
		Str("outcome", job.Outcome.Active).
		Str("media_dir", cfg.MediaDir).
		Msg("Running job")

	if err := runner.Run(ctx, job.TenantID, job.ID); err != nil {
		log.Fatal().Err(err).Msg("Pipeline run failed")
	}

	done, err := jobStore.GetJob(ctx, job.TenantID, job.ID)
	if err != nil || done == nil {
		log.Fatal().Err(err).Msg("Failed to read back job result")
	}

	switch done.Status {
	case session.JobStatusCompleted:
		log.Info().
			Str("job_id", done.ID).
			Str("output_path", done.Output.OutputPath).
			Str("url", done.Output.URL).
			Msg("Job completed")
		if outputFlag != "" {
			if err := mediaStore.DownloadToFile(ctx, done.Output.OutputPath, outputFlag); err != nil {
				log.Fatal().Err(err).Str("path", outputFlag).Msg("Failed to copy output")
			}
			fmt.Println(outputFlag)
		} else {
			fmt.Println(done.Output.OutputPath)
		}
	case session.JobStatusFailed:
		log.Error().
			Str("job_id", done.ID).
			Str("error_kind", done.ErrorKind).
			Str("error", done.Error).
			Msg("Job failed")
		os.Exit(1)
	default:
		log.Error().Str("status", done.Status).Msg("Job ended in a non-terminal state")
		os.Exit(1)
	}
}

// logPublisher replaces EventBridge for local runs.
type logPublisher struct{}

func (logPublisher) Publish(_ context.Context, detailType string, event pipeline.JobEvent) error {
	log.Info().
		Str("detail_type", detailType).
		Str("job_id", event.JobID).
		Str("status", event.Status).
		Msg("Job event")
	return nil
}

// localStore keeps job snapshots in memory for the lifetime of one CLI run.
// Integrations are not supported locally; export is a worker concern.
type localStore struct {
	mu   sync.Mutex
	jobs map[string]*session.JobSnapshot
}

func newLocalStore() *localStore {
	return &localStore{jobs: make(map[string]*session.JobSnapshot)}
}

func (s *localStore) key(tenantID, jobID string) string {
	return tenantID + "/" + jobID
}

func (s *localStore) PutJob(_ context.Context, job *session.JobSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *job
	s.jobs[s.key(job.TenantID, job.ID)] = &copied
	return nil
}

func (s *localStore) GetJob(_ context.Context, tenantID, jobID string) (*session.JobSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[s.key(tenantID, jobID)]
	if !ok {
		return nil, nil
	}
	copied := *job
	return &copied, nil
}

func (s *localStore) SetJobOutput(_ context.Context, tenantID, jobID string, output *session.JobOutput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[s.key(tenantID, jobID)]
	if !ok || job.Terminal() {
		return nil
	}
	job.Status = session.JobStatusCompleted
	job.Output = output
	job.CompletedAt = time.Now().Unix()
	return nil
}

func (s *localStore) SetJobError(_ context.Context, tenantID, jobID, kind, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[s.key(tenantID, jobID)]
	if !ok || job.Terminal() {
		return nil
	}
	job.Status = session.JobStatusFailed
	job.ErrorKind = kind
	job.Error = message
	job.CompletedAt = time.Now().Unix()
	return nil
}

func (s *localStore) PutIntegration(_ context.Context, _ *store.Integration) error {
	return fmt.Errorf("integrations are not supported in local runs")
}

func (s *localStore) GetIntegration(_ context.Context, _, _ string) (*store.Integration, error) {
	return nil, nil
}

func (s *localStore) MarkIntegrationBroken(_ context.Context, _, _ string) error {
	return nil
}
