package embedding

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/kozaktomas/photo-matcher/internal/descriptor"
)

const openAIModel = openai.ChatModelGPT4_1Mini

// maxClassifierImageSize caps the image dimension sent to vision models to
// keep token costs down.
const maxClassifierImageSize = 800

// OpenAIProvider produces scene-classification vectors using an OpenAI
// vision model. The model scores the image against the SceneLabels
// vocabulary and the scores become the embedding vector. Coarser than a real
// perceptual embedding, but it needs no self-hosted embedding server.
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider creates a provider using the given API key.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIProvider{client: &client}
}

func (p *OpenAIProvider) Name() string {
	return openAIModel
}

func (p *OpenAIProvider) Dim() int {
	return len(SceneLabels)
}

func classifierPrompt() string {
	return "Score how strongly each of the following labels applies to the image, " +
		"from 0.0 (not present) to 1.0 (dominant). " +
		"Respond with a single JSON object mapping every label to its score, no other keys.\n\n" +
		"Labels: " + strings.Join(SceneLabels, ", ")
}

// Embed classifies the image and returns the label-score vector.
func (p *OpenAIProvider) Embed(ctx context.Context, imageData []byte) ([]float32, error) {
	resized, err := descriptor.ResizeForUpload(imageData, maxClassifierImageSize)
	if err != nil {
		return nil, fmt.Errorf("%w: resize: %v", ErrEmbeddingFailed, err)
	}

	imageURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(resized)

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openAIModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
							openai.TextContentPart(classifierPrompt()),
							openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
								URL:    imageURL,
								Detail: "low",
							}),
						},
					},
				},
			},
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
		MaxTokens: openai.Int(500),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: OpenAI API error: %v", ErrEmbeddingFailed, err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no response from OpenAI", ErrEmbeddingFailed)
	}

	var scores map[string]float64
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &scores); err != nil {
		return nil, fmt.Errorf("%w: failed to parse scores: %v", ErrEmbeddingFailed, err)
	}

	return labelVector(scores), nil
}
