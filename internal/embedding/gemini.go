package embedding

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"

	"github.com/kozaktomas/photo-matcher/internal/descriptor"
)

const geminiModel = "gemini-2.5-flash"

// GeminiProvider is the Gemini-backed variant of the scene classifier
// provider. Vectors are comparable with OpenAIProvider output only in shape,
// not in calibration; use one provider per session.
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider creates a provider using the given API key.
func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiProvider{client: client}, nil
}

func (p *GeminiProvider) Name() string {
	return geminiModel
}

func (p *GeminiProvider) Dim() int {
	return len(SceneLabels)
}

// Embed classifies the image and returns the label-score vector.
func (p *GeminiProvider) Embed(ctx context.Context, imageData []byte) ([]float32, error) {
	resized, err := descriptor.ResizeForUpload(imageData, maxClassifierImageSize)
	if err != nil {
		return nil, fmt.Errorf("%w: resize: %v", ErrEmbeddingFailed, err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: classifierPrompt()},
				{InlineData: &genai.Blob{Data: resized, MIMEType: "image/jpeg"}},
			},
		},
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}

	result, err := p.client.Models.GenerateContent(ctx, geminiModel, contents, config)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini API error: %v", ErrEmbeddingFailed, err)
	}

	content := result.Text()
	if content == "" {
		return nil, fmt.Errorf("%w: no response from Gemini", ErrEmbeddingFailed)
	}

	var scores map[string]float64
	if err := json.Unmarshal([]byte(content), &scores); err != nil {
		return nil, fmt.Errorf("%w: failed to parse scores: %v", ErrEmbeddingFailed, err)
	}

	return labelVector(scores), nil
}
