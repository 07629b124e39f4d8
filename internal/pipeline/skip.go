package pipeline

import "github.com/clementinehq/clementine/internal/session"

// Stage names in execution order.
const (
	StagePrompt    = "prompt"
	StageLoad      = "load"
	StageTransform = "transform"
	StageOverlay   = "overlay"
	StageUpload    = "upload"
)

// skipStage decides whether a stage runs for a job. Pure so the full truth
// table is testable: the transform stages only run for AI outcomes, the
// overlay only when the event selected one, and the uploader always runs.
func skipStage(stage string, outcome *session.OutcomeConfig, overlay *session.MediaReference) bool {
	aiActive := outcome.Active == session.OutcomeAIImage

	switch stage {
	case StagePrompt, StageLoad, StageTransform:
		return !aiActive
	case StageOverlay:
		return overlay == nil
	case StageUpload:
		return false
	default:
		return true
	}
}
