package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiClient generates single-turn completions with Google's Gemini API
type GeminiClient struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int
}

// Ensure GeminiClient implements the Generator interface
var _ Generator = (*GeminiClient)(nil)

// NewGeminiClient creates a new Gemini completion client
func NewGeminiClient(ctx context.Context, config Config) (*GeminiClient, error) {
	config = config.withDefaults()
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client:      client,
		model:       config.Model,
		temperature: config.Temperature,
		maxTokens:   config.MaxTokens,
	}, nil
}

// Name implements Generator
func (g *GeminiClient) Name() string {
	return ProviderGemini
}

// Generate implements Generator
func (g *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	if prompt == "" {
		return "", ErrEmptyPrompt
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(g.temperature),
		MaxOutputTokens: int32(g.maxTokens),
	}

	response, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), config)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	if len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return "", ErrNoChoices
	}

	var text strings.Builder
	for _, part := range response.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			text.WriteString(part.Text)
		}
	}

	if text.Len() == 0 {
		return "", ErrEmptyContent
	}

	return text.String(), nil
}
