package session

// Outcome type discriminators. GIF and video outcomes are configured by the
// admin product but not yet produced by this pipeline.
const (
	OutcomePhoto   = "photo"
	OutcomeAIImage = "ai.image"
	OutcomeGIF     = "gif"
	OutcomeVideo   = "video"
	OutcomeAIVideo = "ai.video"
)

// PhotoConfig configures a plain captured-photo outcome.
type PhotoConfig struct {
	CaptureStepID string `json:"captureStepId" dynamodbav:"captureStepId"`
	AspectRatio   string `json:"aspectRatio,omitempty" dynamodbav:"aspectRatio,omitempty"`
}

// AIImageConfig configures an AI-transformed photo outcome.
type AIImageConfig struct {
	CaptureStepID  string           `json:"captureStepId" dynamodbav:"captureStepId"`
	AspectRatio    string           `json:"aspectRatio,omitempty" dynamodbav:"aspectRatio,omitempty"`
	ImageSize      string           `json:"imageSize,omitempty" dynamodbav:"imageSize,omitempty"`
	TaskMode       string           `json:"taskMode,omitempty" dynamodbav:"taskMode,omitempty"`
	Provider       string           `json:"provider" dynamodbav:"provider"`
	Model          string           `json:"model" dynamodbav:"model"`
	PromptTemplate string           `json:"promptTemplate" dynamodbav:"promptTemplate"`
	Temperature    *float32         `json:"temperature,omitempty" dynamodbav:"temperature,omitempty"`
	ReferenceMedia []MediaReference `json:"referenceMedia,omitempty" dynamodbav:"referenceMedia,omitempty"`
}

// OutcomeConfig describes what the pipeline should produce for an experience.
//
// Each outcome type owns an independent, addressable config slot. Switching
// the active type must never destroy the other slots: operators flip between
// photo and AI outcomes while configuring an event and expect their earlier
// settings to survive the round trip. Never collapse this into a single
// polymorphic blob keyed by Active.
type OutcomeConfig struct {
	Active string `json:"active" dynamodbav:"active"`

	Photo   *PhotoConfig   `json:"photo,omitempty" dynamodbav:"photo,omitempty"`
	AIImage *AIImageConfig `json:"aiImage,omitempty" dynamodbav:"aiImage,omitempty"`

	// Slots for outcome types the admin product already stores but the
	// pipeline does not execute yet. Kept so a snapshot round-trips intact.
	GIF     map[string]any `json:"gif,omitempty" dynamodbav:"gif,omitempty"`
	Video   map[string]any `json:"video,omitempty" dynamodbav:"video,omitempty"`
	AIVideo map[string]any `json:"aiVideo,omitempty" dynamodbav:"aiVideo,omitempty"`
}

// SetActive switches the active outcome type without touching any slot.
func (o *OutcomeConfig) SetActive(outcomeType string) {
	o.Active = outcomeType
}

// ResolvedPrompt is the ephemeral product of prompt resolution: the final
// prompt text plus the ordered, de-duplicated media references the AI call
// must attach. Created once per pipeline invocation and discarded after.
type ResolvedPrompt struct {
	Text      string
	MediaRefs []MediaReference
}
