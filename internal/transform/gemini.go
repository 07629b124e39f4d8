package transform

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/clementinehq/clementine/internal/metrics"
)

// ProviderGemini is the provider discriminator stored in outcome configs.
const ProviderGemini = "gemini"

// geminiEndpoints routes models to the API endpoint serving them. Preview
// image models are only served from specific regional endpoints; everything
// else goes through the global endpoint.
var geminiEndpoints = map[string]string{
	"gemini-2.5-flash-image":         "https://generativelanguage.googleapis.com",
	"gemini-2.5-flash-image-preview": "https://us-central1-generativelanguage.googleapis.com",
	"gemini-3-pro-image-preview":     "https://global-generativelanguage.googleapis.com",
}

const geminiDefaultEndpoint = "https://generativelanguage.googleapis.com"

// endpointForModel returns the API base URL serving the given model.
func endpointForModel(model string) string {
	if ep, ok := geminiEndpoints[model]; ok {
		return ep
	}
	return geminiDefaultEndpoint
}

// GeminiProvider adapts the Gemini API to the Provider contract. Clients are
// cached per endpoint because preview image models are pinned to regional
// endpoints while text-capable models are not.
type GeminiProvider struct {
	apiKey  string
	limiter *rate.Limiter

	mu      sync.Mutex
	clients map[string]*genai.Client
}

// geminiRequestsPerSecond bounds outbound generation calls. Events run many
// concurrent booths against one API key; without this a busy booth starves
// the rest via provider-side 429s.
const geminiRequestsPerSecond = 2

// NewGeminiProvider creates a Gemini adapter using the given API key.
func NewGeminiProvider(apiKey string) *GeminiProvider {
	return &GeminiProvider{
		apiKey:  apiKey,
		limiter: rate.NewLimiter(rate.Limit(geminiRequestsPerSecond), geminiRequestsPerSecond),
		clients: make(map[string]*genai.Client),
	}
}

func (p *GeminiProvider) Name() string { return ProviderGemini }

// client returns the cached genai client for the endpoint serving model,
// creating it on first use.
func (p *GeminiProvider) client(ctx context.Context, model string) (*genai.Client, error) {
	endpoint := endpointForModel(model)

	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[endpoint]; ok {
		return c, nil
	}

	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: endpoint,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client for %s: %w", endpoint, err)
	}

	log.Debug().Str("endpoint", endpoint).Str("model", model).Msg("Created Gemini client")
	p.clients[endpoint] = c
	return c, nil
}

// Transform runs one image-to-image generation call. Preconditions are
// validated before any network traffic so misconfigured experiences fail
// cheaply and with a kind the operator can act on.
func (p *GeminiProvider) Transform(ctx context.Context, input []byte, cfg Config, refs []ReferenceImage) (*Image, error) {
	if len(input) == 0 {
		return nil, NewError(KindInvalidInputImage, "input image buffer is empty")
	}
	if verr := ValidateConfig(cfg, refs); verr != nil {
		return nil, verr
	}

	client, err := p.client(ctx, cfg.Model)
	if err != nil {
		return nil, WrapError(KindAPIError, err, "gemini client init")
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, WrapError(KindAPIError, err, "rate limit wait")
	}

	contents := []*genai.Content{{Role: "user", Parts: buildParts(input, cfg, refs)}}
	genCfg := buildGenerationConfig(cfg)

	log.Info().
		Str("model", cfg.Model).
		Int("input_bytes", len(input)).
		Int("reference_count", len(refs)).
		Str("task_mode", cfg.TaskMode).
		Msg("Sending transform request to Gemini")

	start := time.Now()
	resp, err := client.Models.GenerateContent(ctx, cfg.Model, contents, genCfg)
	elapsed := time.Since(start)

	m := metrics.New().
		Dimension("Operation", "transform").
		Dimension("Model", cfg.Model).
		Metric("GeminiApiLatencyMs", float64(elapsed.Milliseconds()), metrics.UnitMilliseconds).
		Count("GeminiApiCalls")
	if err != nil {
		m.Count("GeminiApiErrors")
	}
	if resp != nil && resp.UsageMetadata != nil {
		m.Metric("GeminiInputTokens", float64(resp.UsageMetadata.PromptTokenCount), metrics.UnitCount)
		m.Metric("GeminiOutputTokens", float64(resp.UsageMetadata.CandidatesTokenCount), metrics.UnitCount)
	}
	m.Flush()

	if err != nil {
		log.Error().Err(err).Dur("duration", elapsed).Str("model", cfg.Model).Msg("Gemini generation failed")
		return nil, WrapError(KindAPIError, err, "gemini generation")
	}

	img, exErr := extractImage(resp)
	if exErr != nil {
		log.Error().Err(exErr).Str("model", cfg.Model).Msg("Gemini response had no usable image")
		return nil, exErr
	}

	log.Info().
		Int("output_bytes", len(img.Data)).
		Str("output_mime", img.MIMEType).
		Dur("duration", elapsed).
		Msg("Gemini transform complete")
	return img, nil
}

// buildParts assembles the prompt parts in their fixed order: each reference
// as a text label then its image, then the captured input image, then the
// prompt text last. Models weight trailing text heavily, so the instruction
// always closes the sequence.
func buildParts(input []byte, cfg Config, refs []ReferenceImage) []*genai.Part {
	parts := make([]*genai.Part, 0, 2*len(refs)+2)
	for _, ref := range refs {
		parts = append(parts,
			&genai.Part{Text: fmt.Sprintf("Reference ID: %s", ref.ID)},
			&genai.Part{InlineData: &genai.Blob{MIMEType: ref.MIMEType, Data: ref.Data}},
		)
	}
	parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: "image/jpeg", Data: input}})
	parts = append(parts, &genai.Part{Text: cfg.Prompt})
	return parts
}

// buildGenerationConfig maps outcome settings onto the SDK config. Optional
// knobs are only set when configured so the provider's defaults apply
// otherwise.
func buildGenerationConfig(cfg Config) *genai.GenerateContentConfig {
	gc := &genai.GenerateContentConfig{
		CandidateCount:     1,
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}
	if cfg.Temperature != nil {
		gc.Temperature = genai.Ptr(*cfg.Temperature)
	}
	if cfg.AspectRatio != "" || cfg.ImageSize != "" {
		gc.ImageConfig = &genai.ImageConfig{
			AspectRatio: cfg.AspectRatio,
			ImageSize:   cfg.ImageSize,
		}
	}
	return gc
}

// extractImage walks a generation response defensively. Each missing layer
// gets its own message because the remediation differs: no candidates points
// at safety filtering, no parts at a truncated response, no image part at a
// text-only refusal.
func extractImage(resp *genai.GenerateContentResponse) (*Image, *Error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, NewError(KindAPIError, "no candidates in response")
	}
	cand := resp.Candidates[0]
	if cand.Content == nil || len(cand.Content.Parts) == 0 {
		return nil, NewError(KindAPIError, "no content parts in response")
	}
	for _, part := range cand.Content.Parts {
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return &Image{Data: part.InlineData.Data, MIMEType: part.InlineData.MIMEType}, nil
		}
	}
	return nil, NewError(KindAPIError, "no image part in response")
}
