// Package app wires configuration, providers, relays and the Telegram
// transport together and runs them until the context is cancelled.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tg "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"

	"telegram-genai-bot/internal/config"
	"telegram-genai-bot/internal/crypt"
	"telegram-genai-bot/internal/enhance"
	"telegram-genai-bot/internal/logging"
	"telegram-genai-bot/internal/provider/gemini"
	"telegram-genai-bot/internal/relay"
	"telegram-genai-bot/internal/server"
	"telegram-genai-bot/internal/storage"
	"telegram-genai-bot/internal/telegram"
)

const shutdownTimeout = 10 * time.Second

// Mode selects how updates are received.
type Mode string

const (
	ModeWebhook Mode = "webhook"
	ModePoll    Mode = "poll"
)

// Run starts the bot and blocks until ctx is cancelled or a component fails.
// In-flight generation requests are finished before Run returns.
func Run(ctx context.Context, cfg *config.Config, mode Mode) error {
	log := logging.Ctx(ctx)

	var cipher *crypt.Cipher
	if cfg.MasterKey != "" {
		c, err := crypt.New(cfg.MasterKey)
		if err != nil {
			return fmt.Errorf("master key: %w", err)
		}
		cipher = c
	}
	store, err := storage.Open(cfg.DBPath, storage.WithLimit(cfg.JournalLimit), storage.WithCipher(cipher))
	if err != nil {
		return fmt.Errorf("open journal %s: %w", cfg.DBPath, err)
	}
	defer store.Close()

	gc, err := gemini.NewClient(ctx, cfg.GeminiAPIKey)
	if err != nil {
		return fmt.Errorf("gemini client: %w", err)
	}
	enhancer, err := newEnhancer(cfg, gc)
	if err != nil {
		return err
	}

	var h *telegram.Handler
	b, err := tg.New(cfg.BotToken, tg.WithDefaultHandler(func(ctx context.Context, b *tg.Bot, upd *models.Update) {
		h.HandleUpdate(ctx, b, upd)
	}))
	if err != nil {
		return fmt.Errorf("create bot: %w", err)
	}

	messenger := telegram.NewMessenger(b)
	opts := []relay.Option{relay.WithJournal(store)}
	if enhancer != nil {
		opts = append(opts, relay.WithEnhancer(enhancer))
	}
	images := relay.New(relayConfig(cfg, relay.KindImage), messenger,
		gemini.NewImageProvider(gc, cfg.ImageModel, cfg.ImageTimeout), opts...)
	videos := relay.New(relayConfig(cfg, relay.KindVideo), messenger,
		gemini.NewVideoProvider(gc, cfg.VideoModel, cfg.VideoAspectRatio), opts...)
	h = telegram.NewHandler(images, videos, store)

	var webhook http.Handler
	if mode == ModeWebhook {
		webhook = b.WebhookHandler()
	}
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.NewRouter(cfg.BotToken, webhook, logging.Log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("event", "http_listen").Str("addr", srv.Addr).Msg("http server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	switch mode {
	case ModeWebhook:
		if err := registerWebhook(ctx, b, cfg.WebhookURL()); err != nil {
			log.Error().Err(err).Msg("set webhook failed")
		}
		g.Go(func() error {
			b.StartWebhook(gctx)
			return nil
		})
	default:
		if _, err := b.DeleteWebhook(ctx, &tg.DeleteWebhookParams{}); err != nil {
			log.Warn().Err(err).Msg("delete webhook failed")
		}
		g.Go(func() error {
			b.Start(gctx)
			return nil
		})
	}
	log.Info().Str("event", "bot_started").Str("mode", string(mode)).Msg("bot started")

	err = g.Wait()

	log.Info().Str("event", "shutdown").Msg("waiting for in-flight jobs")
	images.Wait()
	videos.Wait()

	if mode == ModeWebhook && cfg.WebhookURL() != "" {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if _, derr := b.DeleteWebhook(dctx, &tg.DeleteWebhookParams{}); derr != nil {
			log.Warn().Err(derr).Msg("delete webhook failed")
		}
	}
	return err
}

func registerWebhook(ctx context.Context, b *tg.Bot, url string) error {
	if url == "" {
		logging.Ctx(ctx).Warn().Msg("PUBLIC_URL is not set, webhook must be registered manually")
		return nil
	}
	ok, err := b.SetWebhook(ctx, &tg.SetWebhookParams{URL: url})
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("telegram rejected the webhook")
	}
	logging.Ctx(ctx).Info().Str("event", "webhook_set").Msg("webhook registered")
	return nil
}

func relayConfig(cfg *config.Config, kind relay.Kind) relay.Config {
	return relay.Config{
		Kind:          kind,
		PollInterval:  cfg.PollInterval,
		MaxWait:       cfg.MaxWait,
		MaxPollErrors: cfg.MaxPollErrors,
	}
}

// newEnhancer returns nil when enhancement is switched off.
func newEnhancer(cfg *config.Config, gc *genai.Client) (relay.Enhancer, error) {
	switch cfg.Enhancer {
	case config.EnhancerOff:
		return nil, nil
	case config.EnhancerOpenAI:
		e, err := enhance.NewOpenAI(cfg.OpenAIAPIKey, cfg.EnhancerModel)
		if err != nil {
			return nil, fmt.Errorf("openai enhancer: %w", err)
		}
		return e, nil
	default:
		return gemini.NewEnhancer(gc, cfg.EnhancerModel), nil
	}
}
