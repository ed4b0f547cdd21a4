package gemini

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"

	"telegram-genai-bot/internal/relay"
)

const defaultTextModel = "gemini-2.5-flash"

// Enhancer rewrites prompts with a Gemini text model.
type Enhancer struct {
	client *genai.Client
	model  string
}

// NewEnhancer creates an Enhancer; an empty model selects the default.
func NewEnhancer(client *genai.Client, model string) *Enhancer {
	if strings.TrimSpace(model) == "" {
		model = defaultTextModel
	}
	return &Enhancer{client: client, model: model}
}

func (e *Enhancer) Enhance(ctx context.Context, prompt, instruction string) (string, error) {
	resp, err := e.client.Models.GenerateContent(ctx, e.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(instruction, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.7),
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("gemini returned no text")
	}
	return text, nil
}

var _ relay.Enhancer = (*Enhancer)(nil)
