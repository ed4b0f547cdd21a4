package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"telegram-genai-bot/internal/app"
	"telegram-genai-bot/internal/config"
	"telegram-genai-bot/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "genbot",
		Short: "Telegram bot that generates images and videos with Imagen and Veo",
		Long: `genbot relays /photo and /video requests from Telegram to Google's
generation models and sends the results back to the chat.

Settings are read from the environment (and a .env file if present):
  BOT_TOKEN, GEMINI_API_KEY     required
  ENHANCER                      gemini (default), openai or off
  PUBLIC_URL                    base URL for the webhook in serve mode`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().String("config", "", "Config file path (optional).")

	cmd.AddCommand(newRunCmd("serve", "Receive updates through a webhook", app.ModeWebhook))
	cmd.AddCommand(newRunCmd("poll", "Receive updates by long polling", app.ModePoll))
	return cmd
}

func newRunCmd(use, short string, mode app.Mode) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgFile, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logging.Init(cfg.LogLevel)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx = logging.Log.WithContext(ctx)

			if err := app.Run(ctx, cfg, mode); err != nil && ctx.Err() == nil {
				logging.Log.Error().Err(err).Msg("bot stopped")
				return err
			}
			logging.Log.Info().Msg("bot stopped")
			return nil
		},
	}
}
