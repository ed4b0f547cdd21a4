// Package enhance rewrites user prompts with OpenAI's Responses API.
package enhance

import (
	"context"
	"errors"
	"strings"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/responses"
	"github.com/openai/openai-go/v2/shared"

	"telegram-genai-bot/internal/logging"
	"telegram-genai-bot/internal/relay"
)

const defaultModel = "gpt-4o-mini"

// openAIResponses is swapped out in tests.
var openAIResponses = func(ctx context.Context, client *openai.Client, params responses.ResponseNewParams) (string, error) {
	resp, err := client.Responses.New(ctx, params)
	if err != nil {
		return "", err
	}
	return resp.OutputText(), nil
}

// OpenAIEnhancer implements relay.Enhancer on top of an OpenAI model.
type OpenAIEnhancer struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates an enhancer; an empty model selects the default.
func NewOpenAI(apiKey, model string) (*OpenAIEnhancer, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}
	if strings.TrimSpace(model) == "" {
		model = defaultModel
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIEnhancer{client: &client, model: model}, nil
}

func (e *OpenAIEnhancer) Enhance(ctx context.Context, prompt, instruction string) (string, error) {
	params := responses.ResponseNewParams{
		Model:        shared.ResponsesModel(e.model),
		Instructions: openai.String(instruction),
		Input:        responses.ResponseNewParamsInputUnion{OfString: openai.String(prompt)},
	}
	logging.Ctx(ctx).Debug().Str("event", "openai_request").Str("model", e.model).Str("snippet", logging.Snippet(prompt, 30)).Msg("enhancing prompt")
	out, err := openAIResponses(ctx, e.client, params)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", errors.New("openai returned no text")
	}
	return out, nil
}

var _ relay.Enhancer = (*OpenAIEnhancer)(nil)
