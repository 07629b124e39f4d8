package session

import "time"

// Job status values.
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// JobOutput records where the finished asset landed.
type JobOutput struct {
	OutputPath    string `json:"outputPath" dynamodbav:"outputPath"`
	URL           string `json:"url" dynamodbav:"url"`
	ThumbnailPath string `json:"thumbnailPath,omitempty" dynamodbav:"thumbnailPath,omitempty"`
	ThumbnailURL  string `json:"thumbnailUrl,omitempty" dynamodbav:"thumbnailUrl,omitempty"`
	MIMEType      string `json:"mimeType,omitempty" dynamodbav:"mimeType,omitempty"`
	Bytes         int64  `json:"bytes,omitempty" dynamodbav:"bytes,omitempty"`
}

// JobSnapshot is an immutable, frozen-at-creation-time copy of everything the
// pipeline needs to run one guest session: the answers, the resolved outcome
// configuration, and any overlay selection. Later edits to the live
// experience or event must not affect an in-flight job: the snapshot is
// written once when the guest completes the session and is read-only for the
// lifetime of the run. Only the terminal fields (Status, Output, Error) are
// written back, once.
type JobSnapshot struct {
	ID           string `json:"id" dynamodbav:"-"`
	TenantID     string `json:"-" dynamodbav:"-"`
	SessionID    string `json:"sessionId" dynamodbav:"sessionId"`
	ExperienceID string `json:"experienceId" dynamodbav:"experienceId"`

	Answers []Answer      `json:"answers" dynamodbav:"answers"`
	Outcome OutcomeConfig `json:"outcome" dynamodbav:"outcome"`

	// Overlay is the selected decoration image, nil when the event has none.
	Overlay *MediaReference `json:"overlay,omitempty" dynamodbav:"overlay,omitempty"`

	Status    string     `json:"status" dynamodbav:"status"`
	Output    *JobOutput `json:"output,omitempty" dynamodbav:"output,omitempty"`
	Error     string     `json:"error,omitempty" dynamodbav:"error,omitempty"`
	ErrorKind string     `json:"errorKind,omitempty" dynamodbav:"errorKind,omitempty"`

	CreatedAt   int64 `json:"createdAt" dynamodbav:"createdAt"`
	CompletedAt int64 `json:"completedAt,omitempty" dynamodbav:"completedAt,omitempty"`
}

// CaptureAnswer returns the answer for the snapshot's capture step, nil when
// the guest never reached it.
func (j *JobSnapshot) CaptureAnswer(captureStepID string) *Answer {
	for i := range j.Answers {
		if j.Answers[i].Matches(captureStepID) {
			return &j.Answers[i]
		}
	}
	return nil
}

// Terminal reports whether the job has already reached a terminal state.
// The pipeline runner uses this for idempotent retries: a re-delivered task
// for a finished job is acknowledged without re-running the pipeline.
func (j *JobSnapshot) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// Age returns how long ago the job was created.
func (j *JobSnapshot) Age() time.Duration {
	return time.Since(time.Unix(j.CreatedAt, 0))
}
