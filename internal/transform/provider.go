// Package transform wraps generative AI image providers behind a uniform
// image-to-image contract: reference images plus a captured photo plus
// resolved prompt text in, a generated image out. Provider responses are
// decoded into a validated result at the adapter boundary so nothing
// downstream handles a loosely-typed blob.
package transform

import (
	"context"
	"regexp"
	"sort"
)

// Config carries everything a provider needs for one transform call, frozen
// from the job snapshot's outcome configuration.
type Config struct {
	Provider    string
	Model       string
	Prompt      string
	TaskMode    string
	AspectRatio string
	ImageSize   string
	Temperature *float32
}

// ReferenceImage is a loaded reference buffer with the label the model uses
// to address it.
type ReferenceImage struct {
	ID       string
	Path     string
	MIMEType string
	Data     []byte
}

// Image is the validated output of a transform call.
type Image struct {
	Data     []byte
	MIMEType string
}

// Provider is a generative image backend.
type Provider interface {
	// Name returns the provider discriminator stored in outcome configs.
	Name() string

	// Transform runs an image-to-image generation. Failures are always
	// *transform.Error values.
	Transform(ctx context.Context, input []byte, cfg Config, refs []ReferenceImage) (*Image, error)
}

// Registry maps provider names to adapters. It is built once at process
// start and passed by reference into the pipeline runner; there is no
// ambient global, so tests substitute fake providers freely.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry builds a registry from the given providers.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Get returns the provider for the given name.
func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Names returns the registered provider names, sorted for stable logging.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// referencePathPattern is the storage-path shape reference images must have:
// an object key under a tenant media prefix.
var referencePathPattern = regexp.MustCompile(`^media/[A-Za-z0-9_-]+/.+$`)

// ValidateConfig checks transform preconditions that must fail before any
// network call is made. The registry lookup covers provider recognition;
// this covers everything else.
func ValidateConfig(cfg Config, refs []ReferenceImage) *Error {
	if cfg.Model == "" {
		return NewError(KindInvalidConfig, "model name is empty")
	}
	if cfg.Prompt == "" {
		return NewError(KindInvalidConfig, "prompt is empty")
	}
	for _, ref := range refs {
		if !referencePathPattern.MatchString(ref.Path) {
			return NewError(KindInvalidConfig, "reference path %q is not a tenant media key", ref.Path)
		}
	}
	return nil
}
