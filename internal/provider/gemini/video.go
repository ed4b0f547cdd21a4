package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"telegram-genai-bot/internal/logging"
	"telegram-genai-bot/internal/relay"
)

const (
	defaultVideoModel  = "veo-2.0-generate-001"
	defaultAspectRatio = "16:9"
)

// downloadVideo fetches a generated video that was not returned inline.
var downloadVideo = func(ctx context.Context, client *genai.Client, v *genai.Video) ([]byte, error) {
	return client.Files.Download(ctx, genai.NewDownloadURIFromVideo(v), nil)
}

// VideoProvider generates videos with Veo. Jobs are long-running operations
// identified by their operation name.
type VideoProvider struct {
	client      *genai.Client
	model       string
	aspectRatio string
}

// NewVideoProvider creates a VideoProvider; empty values select defaults.
func NewVideoProvider(client *genai.Client, model, aspectRatio string) *VideoProvider {
	if model == "" {
		model = defaultVideoModel
	}
	if aspectRatio == "" {
		aspectRatio = defaultAspectRatio
	}
	return &VideoProvider{client: client, model: model, aspectRatio: aspectRatio}
}

func (p *VideoProvider) Submit(ctx context.Context, prompt string, ref *relay.Image) (string, error) {
	var img *genai.Image
	if ref != nil && len(ref.Data) > 0 {
		img = &genai.Image{ImageBytes: ref.Data, MIMEType: ref.MIMEType}
	}
	op, err := p.client.Models.GenerateVideos(ctx, p.model, prompt, img, &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		AspectRatio:    p.aspectRatio,
	})
	if err != nil {
		return "", err
	}
	if op == nil || op.Name == "" {
		return "", errors.New("veo returned no operation name")
	}
	return op.Name, nil
}

func (p *VideoProvider) Poll(ctx context.Context, jobID string) (*relay.PollResult, error) {
	op, err := p.client.Operations.GetVideosOperation(ctx, &genai.GenerateVideosOperation{Name: jobID}, nil)
	if err != nil {
		return nil, err
	}
	res, video := videoResult(op)
	if video == nil || len(res.Data) > 0 {
		return res, nil
	}
	data, err := downloadVideo(ctx, p.client, video)
	if err != nil {
		return nil, fmt.Errorf("download video: %w", err)
	}
	logging.Ctx(ctx).Debug().Str("job_id", jobID).Int("bytes", len(data)).Msg("video downloaded")
	res.Data = data
	return res, nil
}

// videoResult maps an operation to a poll result. When the video still has
// to be downloaded it is returned alongside.
func videoResult(op *genai.GenerateVideosOperation) (*relay.PollResult, *genai.Video) {
	if !op.Done {
		return &relay.PollResult{Status: relay.PollPending}, nil
	}
	if op.Error != nil {
		return &relay.PollResult{Status: relay.PollFailed, Reason: operationError(op.Error)}, nil
	}
	resp := op.Response
	if resp == nil {
		return &relay.PollResult{Status: relay.PollSucceeded}, nil
	}
	for _, gv := range resp.GeneratedVideos {
		if gv == nil || gv.Video == nil {
			continue
		}
		res := &relay.PollResult{Status: relay.PollSucceeded, Data: gv.Video.VideoBytes, MIMEType: gv.Video.MIMEType}
		if res.MIMEType == "" {
			res.MIMEType = "video/mp4"
		}
		if len(res.Data) == 0 && gv.Video.URI != "" {
			return res, gv.Video
		}
		return res, nil
	}
	if resp.RAIMediaFilteredCount > 0 {
		return &relay.PollResult{
			Status:  relay.PollFailed,
			Reason:  strings.Join(resp.RAIMediaFilteredReasons, "; "),
			Blocked: true,
		}, nil
	}
	return &relay.PollResult{Status: relay.PollSucceeded}, nil
}

func operationError(e map[string]any) string {
	if msg, ok := e["message"].(string); ok && msg != "" {
		return msg
	}
	if code, ok := e["code"]; ok {
		return fmt.Sprintf("operation failed with code %v", code)
	}
	return "operation failed"
}

var _ relay.Provider = (*VideoProvider)(nil)
