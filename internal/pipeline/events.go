package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventbridgetypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/rs/zerolog/log"
)

const (
	eventSource        = "clementine.pipeline"
	eventTypeCompleted = "JobCompleted"
	eventTypeFailed    = "JobFailed"
)

// JobEvent is the completion notification fanned out to gallery refresh and
// export consumers.
type JobEvent struct {
	TenantID  string `json:"tenantId"`
	JobID     string `json:"jobId"`
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
	OutputURL string `json:"outputUrl,omitempty"`
	ErrorKind string `json:"errorKind,omitempty"`
}

// EventPublisher emits job lifecycle events. The EventBridge implementation
// is production; tests supply a recorder.
type EventPublisher interface {
	Publish(ctx context.Context, detailType string, event JobEvent) error
}

// EventBridgePublisher publishes to an EventBridge bus.
type EventBridgePublisher struct {
	client  *eventbridge.Client
	busName string
}

// NewEventBridgePublisher creates a publisher for the given bus.
func NewEventBridgePublisher(client *eventbridge.Client, busName string) *EventBridgePublisher {
	return &EventBridgePublisher{client: client, busName: busName}
}

func (p *EventBridgePublisher) Publish(ctx context.Context, detailType string, event JobEvent) error {
	detail, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal job event: %w", err)
	}

	entry := eventbridgetypes.PutEventsRequestEntry{
		Source:     aws.String(eventSource),
		DetailType: aws.String(detailType),
		Detail:     aws.String(string(detail)),
	}
	if p.busName != "" {
		entry.EventBusName = aws.String(p.busName)
	}

	result, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []eventbridgetypes.PutEventsRequestEntry{entry},
	})
	if err != nil {
		log.Error().Err(err).Str("job_id", event.JobID).Str("detail_type", detailType).Msg("EventBridge PutEvents failed")
		return fmt.Errorf("PutEvents: %w", err)
	}
	if result.FailedEntryCount > 0 {
		for i, e := range result.Entries {
			if e.ErrorCode != nil || e.ErrorMessage != nil {
				log.Error().
					Int("index", i).
					Str("error_code", aws.ToString(e.ErrorCode)).
					Str("error_message", aws.ToString(e.ErrorMessage)).
					Str("job_id", event.JobID).
					Msg("EventBridge PutEvents entry failed")
				return fmt.Errorf("PutEvents entry %d failed: %s - %s", i, aws.ToString(e.ErrorCode), aws.ToString(e.ErrorMessage))
			}
		}
	}

	log.Debug().Str("job_id", event.JobID).Str("detail_type", detailType).Msg("Job event emitted")
	return nil
}
