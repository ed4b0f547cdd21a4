package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	tg "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/patrickmn/go-cache"

	"telegram-genai-bot/internal/logging"
	"telegram-genai-bot/internal/relay"
)

const (
	pendingTTL      = 5 * time.Minute
	jobsListed      = 10
	maxPhotoBytes   = 20 << 20
	videoCaptionTag = "#veo"
)

const helpText = `Hi! I generate images and videos from text.

/photo <description> - generate an image
/video <description> - generate a video
/jobs - show your recent requests
/clear - forget your request history

Send /photo or /video without a description and I will ask for one.
To animate a picture, send a photo with a caption starting with #veo.`

// httpGetFunc downloads Telegram files; swapped out in tests.
var httpGetFunc = http.Get

// Dispatcher starts a generation request in the background.
type Dispatcher interface {
	Dispatch(ctx context.Context, req relay.Request)
}

// JobJournal reads and clears the job history of a chat.
type JobJournal interface {
	// LoadChatJobs returns the most recent jobs of a chat, newest first.
	LoadChatJobs(chatID int64, n int) ([]relay.Job, error)
	ClearChatJobs(chatID int64) (int, error)
}

// Handler routes incoming updates to the image and video relays.
type Handler struct {
	images  Dispatcher
	videos  Dispatcher
	journal JobJournal
	// pending maps a chat id to the relay.Kind it awaits a prompt for.
	pending *cache.Cache
}

// NewHandler creates a Handler. journal may be nil.
func NewHandler(images, videos Dispatcher, journal JobJournal) *Handler {
	return &Handler{
		images:  images,
		videos:  videos,
		journal: journal,
		pending: cache.New(pendingTTL, time.Minute),
	}
}

// HandleUpdate processes a Telegram update. Generation requests are
// dispatched and the call returns without waiting for them.
func (h *Handler) HandleUpdate(ctx context.Context, b Bot, upd *models.Update) {
	if upd == nil || upd.Message == nil {
		return
	}
	msg := upd.Message
	chatID := msg.Chat.ID
	ctx = logging.WithChat(logging.Context(ctx), chatID)
	if msg.From != nil {
		ctx = logging.WithUser(ctx, msg.From.ID)
	}
	log := logging.Ctx(ctx)
	log.Info().Str("event", "telegram_request").Str("snippet", logging.Snippet(msg.Text+msg.Caption, 30)).Msg("incoming message")

	if len(msg.Photo) > 0 {
		h.handlePhoto(ctx, b, msg)
		return
	}

	if cmd, args, ok := parseCommand(msg); ok {
		switch cmd {
		case "start", "help":
			h.pending.Delete(pendingKey(chatID))
			reply(ctx, b, chatID, helpText)
		case "photo", "generate", "image":
			h.request(ctx, b, chatID, relay.KindImage, args)
		case "video":
			h.request(ctx, b, chatID, relay.KindVideo, args)
		case "jobs":
			h.listJobs(ctx, b, chatID)
		case "clear":
			h.clearJobs(ctx, b, chatID)
		default:
			log.Debug().Str("command", cmd).Msg("unknown command ignored")
		}
		return
	}

	if msg.Text == "" {
		return
	}
	if v, ok := h.pending.Get(pendingKey(chatID)); ok {
		h.pending.Delete(pendingKey(chatID))
		h.dispatch(ctx, v.(relay.Kind), relay.Request{ChatID: chatID, Prompt: msg.Text})
		return
	}
	log.Debug().Msg("message ignored")
}

// request dispatches a prompt or, when it is empty, waits for the next text.
func (h *Handler) request(ctx context.Context, b Bot, chatID int64, kind relay.Kind, prompt string) {
	if prompt == "" {
		h.pending.SetDefault(pendingKey(chatID), kind)
		noun := "image"
		if kind == relay.KindVideo {
			noun = "video"
		}
		reply(ctx, b, chatID, fmt.Sprintf("Describe the %s you want in your next message.", noun))
		logging.Ctx(ctx).Info().Str("event", "awaiting_prompt").Str("kind", string(kind)).Msg("waiting for prompt")
		return
	}
	h.pending.Delete(pendingKey(chatID))
	h.dispatch(ctx, kind, relay.Request{ChatID: chatID, Prompt: prompt})
}

func (h *Handler) dispatch(ctx context.Context, kind relay.Kind, req relay.Request) {
	if kind == relay.KindVideo {
		h.videos.Dispatch(ctx, req)
		return
	}
	h.images.Dispatch(ctx, req)
}

// handlePhoto turns a photo captioned with #veo into an image-to-video request.
func (h *Handler) handlePhoto(ctx context.Context, b Bot, msg *models.Message) {
	caption := strings.TrimSpace(msg.Caption)
	if !strings.HasPrefix(strings.ToLower(caption), videoCaptionTag) {
		logging.Ctx(ctx).Debug().Msg("photo without video tag ignored")
		return
	}
	chatID := msg.Chat.ID
	prompt := strings.TrimSpace(caption[len(videoCaptionTag):])

	ref, err := downloadPhoto(ctx, b, largestPhoto(msg.Photo))
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("photo download failed")
		reply(ctx, b, chatID, "❌ Could not download your photo. Please send it again.")
		return
	}
	h.videos.Dispatch(ctx, relay.Request{ChatID: chatID, Prompt: prompt, Reference: ref})
}

func (h *Handler) listJobs(ctx context.Context, b Bot, chatID int64) {
	if h.journal == nil {
		reply(ctx, b, chatID, "Job history is not available.")
		return
	}
	jobs, err := h.journal.LoadChatJobs(chatID, jobsListed)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("load jobs failed")
		reply(ctx, b, chatID, "Could not load your jobs.")
		return
	}
	if len(jobs) == 0 {
		reply(ctx, b, chatID, "No jobs yet.")
		return
	}
	var sb strings.Builder
	sb.WriteString("Recent jobs:\n")
	for _, j := range jobs {
		state := string(j.State)
		if j.Reason != "" {
			state += " (" + j.Reason + ")"
		}
		fmt.Fprintf(&sb, "\n%s · %s · %s\n%s\n", j.SubmittedAt.Format("02 Jan 15:04"), j.Kind, state, logging.Snippet(j.Prompt, 60))
	}
	reply(ctx, b, chatID, sb.String())
}

func (h *Handler) clearJobs(ctx context.Context, b Bot, chatID int64) {
	if h.journal == nil {
		reply(ctx, b, chatID, "Job history is not available.")
		return
	}
	n, err := h.journal.ClearChatJobs(chatID)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("clear jobs failed")
		reply(ctx, b, chatID, "Could not clear your jobs.")
		return
	}
	logging.Ctx(ctx).Info().Str("event", "jobs_cleared").Int("count", n).Msg("job history cleared")
	reply(ctx, b, chatID, fmt.Sprintf("Removed %d job(s) from your history.", n))
}

func reply(ctx context.Context, b Bot, chatID int64, text string) {
	if _, err := b.SendMessage(ctx, &tg.SendMessageParams{ChatID: chatID, Text: text}); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("send message failed")
	}
}

func pendingKey(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

func largestPhoto(sizes []models.PhotoSize) models.PhotoSize {
	best := sizes[0]
	for _, s := range sizes[1:] {
		if s.Width*s.Height > best.Width*best.Height {
			best = s
		}
	}
	return best
}

func downloadPhoto(ctx context.Context, b Bot, p models.PhotoSize) (*relay.Image, error) {
	file, err := b.GetFile(ctx, &tg.GetFileParams{FileID: p.FileID})
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	resp, err := httpGetFunc(b.FileDownloadLink(file))
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 0 && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return &relay.Image{Data: data, MIMEType: "image/jpeg"}, nil
}

// parseCommand extracts a leading bot command, dropping any @botname suffix.
func parseCommand(msg *models.Message) (cmd, args string, ok bool) {
	if msg.Text == "" {
		return "", "", false
	}
	for _, e := range msg.Entities {
		if e.Type == models.MessageEntityTypeBotCommand && e.Offset == 0 && e.Length <= len(msg.Text) {
			cmd = strings.TrimPrefix(msg.Text[:e.Length], "/")
			if i := strings.IndexByte(cmd, '@'); i >= 0 {
				cmd = cmd[:i]
			}
			args = strings.TrimSpace(msg.Text[e.Length:])
			return strings.ToLower(cmd), args, true
		}
	}
	return "", "", false
}
