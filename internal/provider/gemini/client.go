// Package gemini adapts Google's generative AI models (Imagen, Veo and the
// Gemini text models) to the relay's submit/poll contract.
package gemini

import (
	"context"
	"errors"

	"google.golang.org/genai"
)

// NewClient creates a Gemini API client. The client is safe for concurrent
// use and is shared by all providers.
func NewClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	return genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
}
