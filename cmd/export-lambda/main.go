// Package main provides the Dropbox export worker Lambda entry point.
//
// The worker consumes JobCompleted events from the pipeline event bus. For
// each completed job whose tenant has a working Dropbox integration, it
// decrypts the stored refresh token, exchanges it for an access token,
// downloads the finished asset, and uploads it to the tenant's export
// folder. Integrations that need re-authorization are marked broken so the
// admin UI can surface a reconnect prompt; the worker never retries those.
//
// It also handles BundleExportRequested events, which bundle a whole
// session's outputs into one ZIP before uploading.
package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/clementinehq/clementine/internal/dropbox"
	"github.com/clementinehq/clementine/internal/lambdaboot"
	"github.com/clementinehq/clementine/internal/logging"
	"github.com/clementinehq/clementine/internal/pipeline"
	"github.com/clementinehq/clementine/internal/secrets"
	"github.com/clementinehq/clementine/internal/storage"
	"github.com/clementinehq/clementine/internal/store"
)

var coldStart = true

// Cold-start state shared by the event handlers.
var (
	mediaStore storage.MediaStore
	jobStore   store.JobStore
	dbxClient  *dropbox.Client
	tokenBox   *secrets.Cipher
)

// bundleExportRequest is the detail of a BundleExportRequested event. Keys
// are output storage keys collected by the session closer.
type bundleExportRequest struct {
	TenantID   string   `json:"tenantId"`
	SessionID  string   `json:"sessionId"`
	Keys       []string `json:"keys"`
	BundleName string   `json:"bundleName,omitempty"`
}

func init() {
	initStart := time.Now()
	logging.Init()

	awsClients := lambdaboot.InitAWS()
	mediaStore = lambdaboot.InitMediaStore(awsClients.Config, "MEDIA_BUCKET_NAME")
	jobStore = lambdaboot.InitJobStore(awsClients.Config, "JOBS_TABLE_NAME")
	dropboxParam := lambdaboot.LoadDropboxSecret(awsClients.SSM)
	encryptionParam := lambdaboot.LoadEncryptionKey(awsClients.SSM)

	appKey := os.Getenv("DROPBOX_APP_KEY")
	if appKey == "" {
		log.Fatal().Msg("DROPBOX_APP_KEY environment variable is required")
	}
	dbxClient = dropbox.NewClient(appKey, os.Getenv("DROPBOX_APP_SECRET"))

	var err error
	tokenBox, err = secrets.NewCipherFromBase64(os.Getenv("TOKEN_ENCRYPTION_KEY"))
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid token encryption key")
	}

	lambdaboot.StartupLog("export-lambda", initStart).
		Bucket("media", os.Getenv("MEDIA_BUCKET_NAME")).
		Table("jobs", os.Getenv("JOBS_TABLE_NAME")).
		SSMParam("dropboxAppSecret", dropboxParam).
		SSMParam("tokenEncryptionKey", encryptionParam).
		Feature("dropboxExport", true).
		Emit()
}

func main() {
	lambda.Start(handler)
}

func handler(ctx context.Context, event events.CloudWatchEvent) error {
	if coldStart {
		coldStart = false
		log.Info().Str("worker", "export-lambda").Msg("Cold start")
	}

	switch event.DetailType {
	case "JobCompleted":
		var job pipeline.JobEvent
		if err := json.Unmarshal(event.Detail, &job); err != nil {
			log.Error().Err(err).Str("detail_type", event.DetailType).Msg("Ignoring malformed job event")
			return nil
		}
		return exportJob(ctx, job)
	case "BundleExportRequested":
		var req bundleExportRequest
		if err := json.Unmarshal(event.Detail, &req); err != nil {
			log.Error().Err(err).Str("detail_type", event.DetailType).Msg("Ignoring malformed bundle request")
			return nil
		}
		return exportBundle(ctx, req)
	default:
		log.Debug().Str("detail_type", event.DetailType).Msg("Ignoring event")
		return nil
	}
}
