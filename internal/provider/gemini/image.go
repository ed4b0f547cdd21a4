package gemini

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"google.golang.org/genai"

	"telegram-genai-bot/internal/logging"
	"telegram-genai-bot/internal/relay"
)

const (
	defaultImageModel      = "imagen-3.0-generate-002"
	defaultGenerateTimeout = 2 * time.Minute
	resultTTL              = 30 * time.Minute
)

// ImageProvider generates images with Imagen. Imagen answers synchronously,
// so Submit starts the call in the background and Poll reads its result
// from a TTL cache keyed by a generated job id.
type ImageProvider struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	results *cache.Cache

	generate func(ctx context.Context, prompt string) (*relay.PollResult, error)
}

// NewImageProvider creates an ImageProvider; empty values select defaults.
func NewImageProvider(client *genai.Client, model string, timeout time.Duration) *ImageProvider {
	if model == "" {
		model = defaultImageModel
	}
	if timeout <= 0 {
		timeout = defaultGenerateTimeout
	}
	p := &ImageProvider{
		client:  client,
		model:   model,
		timeout: timeout,
		results: cache.New(resultTTL, 10*time.Minute),
	}
	p.generate = p.generateImage
	return p
}

// Submit ignores ref; image generation is text-only.
func (p *ImageProvider) Submit(ctx context.Context, prompt string, ref *relay.Image) (string, error) {
	id := uuid.NewString()
	if ref != nil {
		logging.Ctx(ctx).Info().Str("job_id", id).Msg("reference image ignored for image generation")
	}
	p.results.SetDefault(id, &relay.PollResult{Status: relay.PollPending})

	go func() {
		gctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		res, err := p.generate(gctx, prompt)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("job_id", id).Msg("imagen request failed")
			res = &relay.PollResult{Status: relay.PollFailed, Reason: err.Error()}
		}
		p.results.SetDefault(id, res)
	}()
	return id, nil
}

func (p *ImageProvider) Poll(_ context.Context, jobID string) (*relay.PollResult, error) {
	v, ok := p.results.Get(jobID)
	if !ok {
		return nil, fmt.Errorf("unknown image job %s", jobID)
	}
	res := v.(*relay.PollResult)
	if res.Status != relay.PollPending {
		p.results.Delete(jobID)
	}
	return res, nil
}

func (p *ImageProvider) generateImage(ctx context.Context, prompt string) (*relay.PollResult, error) {
	resp, err := p.client.Models.GenerateImages(ctx, p.model, prompt, &genai.GenerateImagesConfig{
		NumberOfImages:   1,
		OutputMIMEType:   "image/png",
		AspectRatio:      "1:1",
		IncludeRAIReason: true,
	})
	if err != nil {
		return nil, err
	}
	return imageResult(resp), nil
}

// imageResult maps an Imagen response to a terminal poll result.
func imageResult(resp *genai.GenerateImagesResponse) *relay.PollResult {
	if resp == nil {
		return &relay.PollResult{Status: relay.PollSucceeded}
	}
	var filtered string
	for _, gi := range resp.GeneratedImages {
		if gi == nil {
			continue
		}
		if gi.Image != nil && len(gi.Image.ImageBytes) > 0 {
			mime := gi.Image.MIMEType
			if mime == "" {
				mime = "image/png"
			}
			return &relay.PollResult{Status: relay.PollSucceeded, Data: gi.Image.ImageBytes, MIMEType: mime}
		}
		if gi.RAIFilteredReason != "" && filtered == "" {
			filtered = gi.RAIFilteredReason
		}
	}
	if filtered != "" {
		return &relay.PollResult{Status: relay.PollFailed, Reason: filtered, Blocked: true}
	}
	return &relay.PollResult{Status: relay.PollSucceeded}
}

var _ relay.Provider = (*ImageProvider)(nil)
