package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"

	"github.com/clementinehq/clementine/internal/session"
)

// Single-table key constants.
const (
	pkPrefix      = "TENANT#"
	skJobPrefix   = "JOB#"
	skIntegPrefix = "INTEG#"
)

// DynamoStore implements JobStore on DynamoDB.
type DynamoStore struct {
	client    *dynamodb.Client
	tableName string
}

var _ JobStore = (*DynamoStore)(nil)

// NewDynamoStore creates a DynamoStore for the given table. The client
// should come from the shared AWS config built at cold start.
func NewDynamoStore(client *dynamodb.Client, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName}
}

func tenantPK(tenantID string) string { return pkPrefix + tenantID }
func jobSK(jobID string) string       { return skJobPrefix + jobID }
func integSK(provider string) string  { return skIntegPrefix + provider }

// putItem marshals a domain object and writes it with PK and SK. ttl of zero
// means the record never expires.
func (s *DynamoStore) putItem(ctx context.Context, pk, sk string, data any, ttl time.Duration) error {
	item, err := attributevalue.MarshalMap(data)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	item["PK"] = &types.AttributeValueMemberS{Value: pk}
	item["SK"] = &types.AttributeValueMemberS{Value: sk}
	if ttl > 0 {
		item["expiresAt"] = &types.AttributeValueMemberN{
			Value: strconv.FormatInt(time.Now().Add(ttl).Unix(), 10),
		}
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("PutItem PK=%s SK=%s: %w", pk, sk, err)
	}
	return nil
}

// getItem reads one item into out. Returns false when the item is absent.
func (s *DynamoStore) getItem(ctx context.Context, pk, sk string, out any) (bool, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: sk},
		},
	})
	if err != nil {
		return false, fmt.Errorf("GetItem PK=%s SK=%s: %w", pk, sk, err)
	}
	if result.Item == nil {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(result.Item, out); err != nil {
		return false, fmt.Errorf("unmarshal PK=%s SK=%s: %w", pk, sk, err)
	}
	return true, nil
}

// PutJob writes a frozen snapshot with the retention TTL.
func (s *DynamoStore) PutJob(ctx context.Context, job *session.JobSnapshot) error {
	if err := s.putItem(ctx, tenantPK(job.TenantID), jobSK(job.ID), job, JobTTL); err != nil {
		return err
	}
	log.Debug().
		Str("tenant_id", job.TenantID).
		Str("job_id", job.ID).
		Str("status", job.Status).
		Msg("Job snapshot written")
	return nil
}

// GetJob retrieves a snapshot, restoring the key-derived fields.
func (s *DynamoStore) GetJob(ctx context.Context, tenantID, jobID string) (*session.JobSnapshot, error) {
	var job session.JobSnapshot
	found, err := s.getItem(ctx, tenantPK(tenantID), jobSK(jobID), &job)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	job.ID = jobID
	job.TenantID = tenantID
	return &job, nil
}

// terminalUpdate applies the write-once terminal transition. The condition
// rejects the write when the job already left pending/running, which is how
// re-delivered tasks for finished jobs stay no-ops.
func (s *DynamoStore) terminalUpdate(ctx context.Context, tenantID, jobID string, names map[string]string, values map[string]types.AttributeValue, expr string) error {
	values[":pending"] = &types.AttributeValueMemberS{Value: session.JobStatusPending}
	values[":running"] = &types.AttributeValueMemberS{Value: session.JobStatusRunning}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: tenantPK(tenantID)},
			"SK": &types.AttributeValueMemberS{Value: jobSK(jobID)},
		},
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ConditionExpression:       aws.String("#status IN (:pending, :running)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			log.Warn().
				Str("tenant_id", tenantID).
				Str("job_id", jobID).
				Msg("Terminal state already written, skipping")
			return nil
		}
		return fmt.Errorf("UpdateItem job %s: %w", jobID, err)
	}
	return nil
}

// SetJobOutput marks the job completed.
func (s *DynamoStore) SetJobOutput(ctx context.Context, tenantID, jobID string, output *session.JobOutput) error {
	outputAV, err := attributevalue.Marshal(output)
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	return s.terminalUpdate(ctx, tenantID, jobID,
		map[string]string{"#status": "status", "#output": "output"},
		map[string]types.AttributeValue{
			":status":      &types.AttributeValueMemberS{Value: session.JobStatusCompleted},
			":output":      outputAV,
			":completedAt": &types.AttributeValueMemberN{Value: strconv.FormatInt(time.Now().Unix(), 10)},
		},
		"SET #status = :status, #output = :output, completedAt = :completedAt")
}

// SetJobError marks the job failed with its classified kind.
func (s *DynamoStore) SetJobError(ctx context.Context, tenantID, jobID, kind, message string) error {
	return s.terminalUpdate(ctx, tenantID, jobID,
		map[string]string{"#status": "status", "#error": "error"},
		map[string]types.AttributeValue{
			":status":      &types.AttributeValueMemberS{Value: session.JobStatusFailed},
			":error":       &types.AttributeValueMemberS{Value: message},
			":errorKind":   &types.AttributeValueMemberS{Value: kind},
			":completedAt": &types.AttributeValueMemberN{Value: strconv.FormatInt(time.Now().Unix(), 10)},
		},
		"SET #status = :status, #error = :error, errorKind = :errorKind, completedAt = :completedAt")
}

// PutIntegration writes a workspace integration record with no TTL.
func (s *DynamoStore) PutIntegration(ctx context.Context, integ *Integration) error {
	provider := strings.ToLower(integ.Provider)
	if err := s.putItem(ctx, tenantPK(integ.TenantID), integSK(provider), integ, 0); err != nil {
		return err
	}
	log.Info().
		Str("tenant_id", integ.TenantID).
		Str("provider", provider).
		Str("export_folder", integ.ExportFolder).
		Msg("Integration record written")
	return nil
}

// GetIntegration retrieves an integration record.
func (s *DynamoStore) GetIntegration(ctx context.Context, tenantID, provider string) (*Integration, error) {
	var integ Integration
	found, err := s.getItem(ctx, tenantPK(tenantID), integSK(strings.ToLower(provider)), &integ)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	integ.TenantID = tenantID
	integ.Provider = strings.ToLower(provider)
	return &integ, nil
}

// MarkIntegrationBroken sets the broken flag after a reauth failure.
func (s *DynamoStore) MarkIntegrationBroken(ctx context.Context, tenantID, provider string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: tenantPK(tenantID)},
			"SK": &types.AttributeValueMemberS{Value: integSK(strings.ToLower(provider))},
		},
		UpdateExpression: aws.String("SET broken = :true"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":true": &types.AttributeValueMemberBOOL{Value: true},
		},
	})
	if err != nil {
		return fmt.Errorf("mark integration broken for %s: %w", tenantID, err)
	}
	log.Warn().
		Str("tenant_id", tenantID).
		Str("provider", provider).
		Msg("Integration marked broken, operator reconnection required")
	return nil
}
