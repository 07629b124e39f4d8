// Package prompt resolves operator-authored prompt templates against guest
// answers and reference media.
//
// Templates use two placeholder grammars: @{step:<name>} looks up a guest
// answer by step name or id, @{ref:<displayName>} mentions a reference image
// by display name. Resolution never fails: placeholders that cannot be
// resolved are left verbatim in the output so operators can see exactly what
// did not match. Prompt authoring is interactive and partial states are
// expected, so "not found" is a diagnostic, not an error.
package prompt

import (
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/clementinehq/clementine/internal/session"
)

// placeholderPattern matches @{step:name} and @{ref:name} mentions.
var placeholderPattern = regexp.MustCompile(`@\{(step|ref):([^}]+)\}`)

// Resolve substitutes every resolvable placeholder in the template and
// collects the media references the AI call must attach, de-duplicated by
// MediaAssetID in left-to-right first-occurrence order.
func Resolve(template string, answers []session.Answer, referenceMedia []session.MediaReference) session.ResolvedPrompt {
	media := newMediaSet()

	text := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		groups := placeholderPattern.FindStringSubmatch(match)
		kind, name := groups[1], strings.TrimSpace(groups[2])

		switch kind {
		case "step":
			answer := findAnswer(answers, name)
			if answer == nil {
				log.Debug().Str("step", name).Msg("Prompt references unanswered step, leaving placeholder verbatim")
				return match
			}
			return resolveAnswer(answer, media)
		case "ref":
			ref := findReference(referenceMedia, name)
			if ref == nil {
				log.Debug().Str("ref", name).Msg("Prompt references unknown media, leaving placeholder verbatim")
				return match
			}
			media.Add(*ref)
			return token(ref.Name())
		}
		return match
	})

	return session.ResolvedPrompt{Text: text, MediaRefs: media.Refs()}
}

// resolveAnswer dispatches on the step's type-specific value shape.
func resolveAnswer(a *session.Answer, media *mediaSet) string {
	switch a.StepType {
	case session.StepMultiSelect:
		return resolveMultiSelect(a, media)
	case session.StepCapture:
		return resolveCapture(a, media)
	default:
		// Short text, long text, scale, yes/no: the raw string.
		if a.Value.IsList() {
			log.Warn().Str("step", a.StepID).Str("stepType", a.StepType).
				Msg("List value on a string-valued step, treating as empty")
			return ""
		}
		return a.Value.String()
	}
}

// resolveMultiSelect renders each selected option, preferring the authored
// prompt fragment, registering attached media, and falling back to the raw
// value. Selections join with ", ".
func resolveMultiSelect(a *session.Answer, media *mediaSet) string {
	options := selectedOptions(a)
	parts := make([]string, 0, len(options))
	for _, opt := range options {
		var piece string
		if opt.PromptFragment != "" {
			piece = opt.PromptFragment
		}
		if opt.PromptMedia != nil {
			media.Add(*opt.PromptMedia)
			if piece != "" {
				piece += " " + token(opt.PromptMedia.Name())
			} else {
				piece = token(opt.PromptMedia.Name())
			}
		}
		if piece == "" {
			piece = opt.Value
		}
		parts = append(parts, piece)
	}
	return strings.Join(parts, ", ")
}

// selectedOptions returns the structured option list, synthesizing it from
// the raw value list for answers written without context.
func selectedOptions(a *session.Answer) []session.SelectedOption {
	if a.Context != nil && len(a.Context.SelectedOptions) > 0 {
		return a.Context.SelectedOptions
	}
	values := a.Value.List()
	if !a.Value.IsList() && a.Value.String() != "" {
		values = []string{a.Value.String()}
	}
	options := make([]session.SelectedOption, 0, len(values))
	for _, v := range values {
		options = append(options, session.SelectedOption{Value: v})
	}
	return options
}

// resolveCapture substitutes one token per captured item and registers each
// into the media set. Zero captured items substitute the empty string: a
// token for media that will never be attached gives the model a dangling
// reference.
func resolveCapture(a *session.Answer, media *mediaSet) string {
	if len(a.CapturedMedia) == 0 {
		return ""
	}
	tokens := make([]string, 0, len(a.CapturedMedia))
	for _, ref := range a.CapturedMedia {
		media.Add(ref)
		tokens = append(tokens, token(ref.Name()))
	}
	return strings.Join(tokens, " ")
}

// token renders a media placeholder the generation model can address.
func token(name string) string {
	return "<" + name + ">"
}

func findAnswer(answers []session.Answer, name string) *session.Answer {
	for i := range answers {
		if answers[i].Matches(name) {
			return &answers[i]
		}
	}
	return nil
}

func findReference(refs []session.MediaReference, displayName string) *session.MediaReference {
	for i := range refs {
		if refs[i].Name() == displayName || refs[i].DisplayName == displayName {
			return &refs[i]
		}
	}
	return nil
}
