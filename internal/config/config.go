// Package config loads the CLI's TOML run configuration: where local media
// lives and the job definition to execute. The workers never read TOML;
// their configuration is environment plus SSM.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/clementinehq/clementine/internal/jobs"
	"github.com/clementinehq/clementine/internal/session"
)

// Config is the root of a CLI run file.
type Config struct {
	// TenantID namespaces local storage keys. Defaults to "local".
	TenantID string `toml:"tenant_id"`

	// MediaDir is the root of the local media store (captures, references,
	// overlays live under media/{tenant}/... inside it).
	MediaDir string `toml:"media_dir"`

	Outcome     OutcomeConfig  `toml:"outcome"`
	Answers     []AnswerConfig `toml:"answers"`
	OverlayPath string         `toml:"overlay_path"`
}

// OutcomeConfig mirrors the persisted outcome config in TOML-friendly form.
type OutcomeConfig struct {
	Active  string         `toml:"active"`
	Photo   *PhotoConfig   `toml:"photo"`
	AIImage *AIImageConfig `toml:"ai_image"`
}

type PhotoConfig struct {
	CaptureStepID string `toml:"capture_step_id"`
}

type AIImageConfig struct {
	CaptureStepID  string   `toml:"capture_step_id"`
	Provider       string   `toml:"provider"`
	Model          string   `toml:"model"`
	PromptTemplate string   `toml:"prompt_template"`
	TaskMode       string   `toml:"task_mode"`
	AspectRatio    string   `toml:"aspect_ratio"`
	ImageSize      string   `toml:"image_size"`
	Temperature    *float32 `toml:"temperature"`
	ReferencePaths []string `toml:"reference_paths"`
	ReferenceNames []string `toml:"reference_names"`
}

// AnswerConfig is one guest answer in TOML form.
type AnswerConfig struct {
	StepID   string   `toml:"step_id"`
	StepName string   `toml:"step_name"`
	StepType string   `toml:"step_type"`
	Value    string   `toml:"value"`
	Values   []string `toml:"values"`
	Captured []string `toml:"captured"`

	Options []OptionConfig `toml:"options"`
}

// OptionConfig is a selected option for multi-select answers.
type OptionConfig struct {
	Value          string `toml:"value"`
	PromptFragment string `toml:"prompt_fragment"`
	PromptMedia    string `toml:"prompt_media"`
	MediaName      string `toml:"media_name"`
}

// Load reads and validates a run file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.TenantID == "" {
		cfg.TenantID = "local"
	}
	if cfg.MediaDir == "" {
		return nil, fmt.Errorf("config %s: media_dir is required", path)
	}
	if cfg.Outcome.Active == "" {
		return nil, fmt.Errorf("config %s: outcome.active is required", path)
	}
	if cfg.Outcome.Active == session.OutcomeAIImage && cfg.Outcome.AIImage == nil {
		return nil, fmt.Errorf("config %s: outcome.ai_image section is required for ai.image", path)
	}
	if cfg.Outcome.Active == session.OutcomePhoto && cfg.Outcome.Photo == nil {
		return nil, fmt.Errorf("config %s: outcome.photo section is required for photo", path)
	}
	return &cfg, nil
}

// ToSnapshot freezes the run file into a job snapshot the pipeline can
// execute, generating fresh job and session IDs.
func (c *Config) ToSnapshot(now int64) *session.JobSnapshot {
	snap := &session.JobSnapshot{
		ID:        jobs.GenerateID("job-"),
		TenantID:  c.TenantID,
		SessionID: jobs.GenerateID("sess-"),
		Status:    session.JobStatusPending,
		CreatedAt: now,
	}

	snap.Outcome.Active = c.Outcome.Active
	if p := c.Outcome.Photo; p != nil {
		snap.Outcome.Photo = &session.PhotoConfig{CaptureStepID: p.CaptureStepID}
	}
	if ai := c.Outcome.AIImage; ai != nil {
		cfg := &session.AIImageConfig{
			CaptureStepID:  ai.CaptureStepID,
			Provider:       ai.Provider,
			Model:          ai.Model,
			PromptTemplate: ai.PromptTemplate,
			TaskMode:       ai.TaskMode,
			AspectRatio:    ai.AspectRatio,
			ImageSize:      ai.ImageSize,
			Temperature:    ai.Temperature,
		}
		for i, path := range ai.ReferencePaths {
			name := ""
			if i < len(ai.ReferenceNames) {
				name = ai.ReferenceNames[i]
			}
			cfg.ReferenceMedia = append(cfg.ReferenceMedia, session.MediaReference{
				MediaAssetID: jobs.NewAssetID(),
				FilePath:     path,
				DisplayName:  name,
			})
		}
		snap.Outcome.AIImage = cfg
	}

	for _, a := range c.Answers {
		answer := session.Answer{
			StepID:   a.StepID,
			StepName: a.StepName,
			StepType: a.StepType,
		}
		if len(a.Values) > 0 {
			answer.Value = session.ListValue(a.Values)
		} else {
			answer.Value = session.StringValue(a.Value)
		}
		if len(a.Options) > 0 {
			answer.Context = &session.AnswerContext{}
			for _, opt := range a.Options {
				sel := session.SelectedOption{
					Value:          opt.Value,
					PromptFragment: opt.PromptFragment,
				}
				if opt.PromptMedia != "" {
					sel.PromptMedia = &session.MediaReference{
						MediaAssetID: jobs.NewAssetID(),
						FilePath:     opt.PromptMedia,
						DisplayName:  opt.MediaName,
					}
				}
				answer.Context.SelectedOptions = append(answer.Context.SelectedOptions, sel)
			}
		}
		for _, capturedPath := range a.Captured {
			answer.CapturedMedia = append(answer.CapturedMedia, session.MediaReference{
				MediaAssetID: jobs.NewAssetID(),
				FilePath:     capturedPath,
				DisplayName:  "Capture",
			})
		}
		snap.Answers = append(snap.Answers, answer)
	}

	if c.OverlayPath != "" {
		snap.Overlay = &session.MediaReference{
			MediaAssetID: jobs.NewAssetID(),
			FilePath:     c.OverlayPath,
			DisplayName:  "Overlay",
		}
	}
	return snap
}
