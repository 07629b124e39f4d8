package transform

import (
	"strings"
	"testing"

	"google.golang.org/genai"
)

func TestValidateConfig(t *testing.T) {
	goodRef := ReferenceImage{ID: "asset-1", Path: "media/tenant-1/refs/cat.png"}

	tests := []struct {
		name    string
		cfg     Config
		refs    []ReferenceImage
		wantErr bool
	}{
		{
			name: "valid",
			cfg:  Config{Model: "gemini-2.5-flash-image", Prompt: "make it neon"},
			refs: []ReferenceImage{goodRef},
		},
		{
			name:    "empty model",
			cfg:     Config{Prompt: "make it neon"},
			wantErr: true,
		},
		{
			name:    "empty prompt",
			cfg:     Config{Model: "gemini-2.5-flash-image"},
			wantErr: true,
		},
		{
			name:    "reference outside media prefix",
			cfg:     Config{Model: "gemini-2.5-flash-image", Prompt: "make it neon"},
			refs:    []ReferenceImage{{ID: "asset-1", Path: "uploads/cat.png"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig(tt.cfg, tt.refs)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if err.Kind != KindInvalidConfig {
					t.Errorf("kind = %s, want %s", err.Kind, KindInvalidConfig)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestBuildPartsOrdering(t *testing.T) {
	input := []byte("captured-photo")
	cfg := Config{Model: "gemini-2.5-flash-image", Prompt: "swap the background"}
	refs := []ReferenceImage{
		{ID: "asset-a", MIMEType: "image/png", Data: []byte("ref-a")},
		{ID: "asset-b", MIMEType: "image/jpeg", Data: []byte("ref-b")},
	}

	parts := buildParts(input, cfg, refs)

	if len(parts) != 6 {
		t.Fatalf("len(parts) = %d, want 6", len(parts))
	}
	if got := parts[0].Text; !strings.Contains(got, "asset-a") {
		t.Errorf("parts[0] = %q, want reference label for asset-a", got)
	}
	if parts[1].InlineData == nil || string(parts[1].InlineData.Data) != "ref-a" {
		t.Error("parts[1] should carry asset-a image data")
	}
	if got := parts[2].Text; !strings.Contains(got, "asset-b") {
		t.Errorf("parts[2] = %q, want reference label for asset-b", got)
	}
	if parts[4].InlineData == nil || string(parts[4].InlineData.Data) != "captured-photo" {
		t.Error("parts[4] should carry the captured input image")
	}
	if parts[5].Text != cfg.Prompt {
		t.Errorf("last part = %q, want the prompt text", parts[5].Text)
	}
}

func TestBuildGenerationConfig(t *testing.T) {
	t.Run("defaults when optional knobs unset", func(t *testing.T) {
		gc := buildGenerationConfig(Config{Model: "m", Prompt: "p"})
		if gc.CandidateCount != 1 {
			t.Errorf("CandidateCount = %d, want 1", gc.CandidateCount)
		}
		if gc.Temperature != nil {
			t.Error("Temperature should be unset")
		}
		if gc.ImageConfig != nil {
			t.Error("ImageConfig should be unset")
		}
	})

	t.Run("optional knobs forwarded when set", func(t *testing.T) {
		temp := float32(0.4)
		gc := buildGenerationConfig(Config{
			Model:       "m",
			Prompt:      "p",
			Temperature: &temp,
			AspectRatio: "9:16",
			ImageSize:   "2K",
		})
		if gc.Temperature == nil || *gc.Temperature != 0.4 {
			t.Errorf("Temperature = %v, want 0.4", gc.Temperature)
		}
		if gc.ImageConfig == nil {
			t.Fatal("ImageConfig should be set")
		}
		if gc.ImageConfig.AspectRatio != "9:16" || gc.ImageConfig.ImageSize != "2K" {
			t.Errorf("ImageConfig = %+v", gc.ImageConfig)
		}
	})
}

func TestExtractImage(t *testing.T) {
	t.Run("nil response", func(t *testing.T) {
		_, err := extractImage(nil)
		assertAPIError(t, err, "no candidates in response")
	})

	t.Run("no candidates", func(t *testing.T) {
		_, err := extractImage(&genai.GenerateContentResponse{})
		assertAPIError(t, err, "no candidates in response")
	})

	t.Run("candidate without content parts", func(t *testing.T) {
		resp := &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{Content: &genai.Content{}}},
		}
		_, err := extractImage(resp)
		assertAPIError(t, err, "no content parts in response")
	})

	t.Run("text-only candidate", func(t *testing.T) {
		resp := &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []*genai.Part{{Text: "I cannot edit this image."}}},
			}},
		}
		_, err := extractImage(resp)
		assertAPIError(t, err, "no image part in response")
	})

	t.Run("image part mixed with text", func(t *testing.T) {
		resp := &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []*genai.Part{
					{Text: "Here is your edit."},
					{InlineData: &genai.Blob{MIMEType: "image/png", Data: []byte("png-bytes")}},
				}},
			}},
		}
		img, err := extractImage(resp)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if img.MIMEType != "image/png" || string(img.Data) != "png-bytes" {
			t.Errorf("img = %+v", img)
		}
	})
}

func assertAPIError(t *testing.T, err *Error, wantMsg string) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if err.Kind != KindAPIError {
		t.Errorf("kind = %s, want %s", err.Kind, KindAPIError)
	}
	if err.Message != wantMsg {
		t.Errorf("message = %q, want %q", err.Message, wantMsg)
	}
}

func TestEndpointForModel(t *testing.T) {
	if got := endpointForModel("gemini-3-pro-image-preview"); got == geminiDefaultEndpoint {
		t.Error("preview model should route to a pinned endpoint")
	}
	if got := endpointForModel("gemini-2.0-flash"); got != geminiDefaultEndpoint {
		t.Errorf("unknown model routed to %s, want default endpoint", got)
	}
}

func TestRegistry(t *testing.T) {
	p := NewGeminiProvider("test-key")
	reg := NewRegistry(p)

	got, ok := reg.Get(ProviderGemini)
	if !ok || got != p {
		t.Fatal("registry should return the registered gemini provider")
	}
	if _, ok := reg.Get("dalle"); ok {
		t.Error("unregistered provider should not resolve")
	}
	names := reg.Names()
	if len(names) != 1 || names[0] != ProviderGemini {
		t.Errorf("Names() = %v", names)
	}
}
