// Package lambdaboot provides shared Lambda cold-start bootstrap logic.
//
// Both workers need some subset of: AWS config, S3, DynamoDB, EventBridge,
// SSM parameter fetch, and startup logging. This package extracts the common
// init patterns so each worker's init() is a short composition of helpers.
package lambdaboot

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/clementinehq/clementine/internal/logging"
	"github.com/clementinehq/clementine/internal/storage"
	"github.com/clementinehq/clementine/internal/store"
)

// AWSClients holds the core AWS SDK clients used across workers.
type AWSClients struct {
	Config aws.Config
	SSM    *ssm.Client
}

// InitAWS loads the default AWS config and returns it with common clients.
func InitAWS() AWSClients {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return AWSClients{
		Config: cfg,
		SSM:    ssm.NewFromConfig(cfg),
	}
}

// InitMediaStore creates the S3-backed media store, reading the bucket name
// from the given environment variable. Fatals if the env var is empty.
func InitMediaStore(cfg aws.Config, bucketEnvVar string) *storage.S3Store {
	bucket := os.Getenv(bucketEnvVar)
	if bucket == "" {
		log.Fatal().Str("env_var", bucketEnvVar).Msg("Media bucket environment variable is required")
	}
	return storage.NewS3Store(s3.NewFromConfig(cfg), bucket)
}

// InitJobStore creates the DynamoDB job store from the table name
// environment variable. Fatals if the env var is empty.
func InitJobStore(cfg aws.Config, tableEnvVar string) *store.DynamoStore {
	tableName := os.Getenv(tableEnvVar)
	if tableName == "" {
		log.Fatal().Str("env_var", tableEnvVar).Msg("Job table environment variable is required")
	}
	return store.NewDynamoStore(dynamodb.NewFromConfig(cfg), tableName)
}

// InitEventBridge creates an EventBridge client. The bus name comes from
// the env var and may be empty, which targets the default bus.
func InitEventBridge(cfg aws.Config, busEnvVar string) (*eventbridge.Client, string) {
	return eventbridge.NewFromConfig(cfg), os.Getenv(busEnvVar)
}

// LoadParam fetches one SSM parameter into the given environment variable
// unless the variable is already set. It returns the parameter path that
// backs the variable so workers can record it in their startup log. Fatals
// on SSM errors so a worker never starts half-configured.
func LoadParam(ssmClient *ssm.Client, envVar, paramEnvVar, defaultParam string) string {
	paramName := os.Getenv(paramEnvVar)
	if paramName == "" {
		paramName = defaultParam
	}
	if os.Getenv(envVar) != "" {
		return paramName
	}
	start := time.Now()
	result, err := ssmClient.GetParameter(context.Background(), &ssm.GetParameterInput{
		Name:           &paramName,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		log.Fatal().Err(err).Str("param", paramName).Msgf("Failed to read %s from SSM", envVar)
	}
	os.Setenv(envVar, *result.Parameter.Value)
	log.Debug().Str("param", paramName).Dur("elapsed", time.Since(start)).Msgf("%s loaded from SSM", envVar)
	return paramName
}

// LoadGeminiKey ensures GEMINI_API_KEY is set, fetching from SSM if needed.
func LoadGeminiKey(ssmClient *ssm.Client) string {
	return LoadParam(ssmClient, "GEMINI_API_KEY", "SSM_GEMINI_KEY_PARAM", "/clementine/prod/gemini-api-key")
}

// LoadDropboxSecret ensures DROPBOX_APP_SECRET is set, fetching from SSM if
// needed. DROPBOX_APP_KEY is plain configuration and stays an env var.
func LoadDropboxSecret(ssmClient *ssm.Client) string {
	return LoadParam(ssmClient, "DROPBOX_APP_SECRET", "SSM_DROPBOX_SECRET_PARAM", "/clementine/prod/dropbox-app-secret")
}

// LoadEncryptionKey ensures TOKEN_ENCRYPTION_KEY is set, fetching from SSM
// if needed.
func LoadEncryptionKey(ssmClient *ssm.Client) string {
	return LoadParam(ssmClient, "TOKEN_ENCRYPTION_KEY", "SSM_ENCRYPTION_KEY_PARAM", "/clementine/prod/token-encryption-key")
}

// StartupLog is a convenience wrapper for the startup logger.
func StartupLog(name string, initStart time.Time) *logging.StartupLogger {
	return logging.NewStartupLogger(name).InitDuration(time.Since(initStart))
}
