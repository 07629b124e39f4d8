// Package main provides the pipeline worker Lambda entry point.
//
// The worker consumes job tasks from the pipeline SQS queue. Each task names
// one job snapshot (tenantId + jobId); the runner loads the snapshot from
// DynamoDB, executes the transform pipeline, and writes the terminal result
// back. Pipeline failures land on the job record, so a task only fails at
// the queue level when infrastructure is unavailable.
//
// Container: Heavy (ffmpeg needed for overlay compositing)
// Memory: 2 GB
// Timeout: 15 minutes
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/clementinehq/clementine/internal/lambdaboot"
	"github.com/clementinehq/clementine/internal/logging"
	"github.com/clementinehq/clementine/internal/pipeline"
	"github.com/clementinehq/clementine/internal/transform"
)

var coldStart = true

var runner *pipeline.Runner

// jobTask is the body of one queue message.
type jobTask struct {
	TenantID string `json:"tenantId"`
	JobID    string `json:"jobId"`
}

func init() {
	initStart := time.Now()
	logging.Init()

	awsClients := lambdaboot.InitAWS()
	mediaStore := lambdaboot.InitMediaStore(awsClients.Config, "MEDIA_BUCKET_NAME")
	jobStore := lambdaboot.InitJobStore(awsClients.Config, "JOBS_TABLE_NAME")
	ebClient, busName := lambdaboot.InitEventBridge(awsClients.Config, "PIPELINE_EVENT_BUS")
	geminiParam := lambdaboot.LoadGeminiKey(awsClients.SSM)

	runner = &pipeline.Runner{
		Store:     jobStore,
		Media:     mediaStore,
		Providers: transform.NewRegistry(transform.NewGeminiProvider(os.Getenv("GEMINI_API_KEY"))),
		Events:    pipeline.NewEventBridgePublisher(ebClient, busName),
	}

	lambdaboot.StartupLog("pipeline-lambda", initStart).
		Bucket("media", os.Getenv("MEDIA_BUCKET_NAME")).
		Table("jobs", os.Getenv("JOBS_TABLE_NAME")).
		EventBus("pipeline", busName).
		SSMParam("geminiApiKey", geminiParam).
		Config("providers", fmt.Sprint(runner.Providers.Names())).
		Emit()
}

func main() {
	lambda.Start(handler)
}

func handler(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	if coldStart {
		coldStart = false
		log.Info().Str("worker", "pipeline-lambda").Msg("Cold start")
	}

	var failures []events.SQSBatchItemFailure
	for _, record := range sqsEvent.Records {
		if err := handleRecord(ctx, record); err != nil {
			log.Error().
				Err(err).
				Str("message_id", record.MessageId).
				Msg("Job task failed, returning to queue")
			failures = append(failures, events.SQSBatchItemFailure{
				ItemIdentifier: record.MessageId,
			})
		}
	}
	return events.SQSEventResponse{BatchItemFailures: failures}, nil
}

func handleRecord(ctx context.Context, record events.SQSMessage) error {
	var task jobTask
	if err := json.Unmarshal([]byte(record.Body), &task); err != nil {
		// A malformed body can never succeed on redelivery. Drop it.
		log.Error().
			Err(err).
			Str("message_id", record.MessageId).
			Msg("Dropping malformed job task")
		return nil
	}
	if task.TenantID == "" || task.JobID == "" {
		log.Error().
			Str("message_id", record.MessageId).
			Str("body", record.Body).
			Msg("Dropping job task with missing tenantId or jobId")
		return nil
	}

	log.Info().
		Str("tenant_id", task.TenantID).
		Str("job_id", task.JobID).
		Msg("Job task received")
	return runner.Run(ctx, task.TenantID, task.JobID)
}
