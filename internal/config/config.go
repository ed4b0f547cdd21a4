// Package config loads bot settings from the environment, an optional .env
// file and an optional config file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Enhancer backends.
const (
	EnhancerGemini = "gemini"
	EnhancerOpenAI = "openai"
	EnhancerOff    = "off"
)

// Config holds every runtime setting of the bot.
type Config struct {
	BotToken     string
	GeminiAPIKey string
	OpenAIAPIKey string

	Enhancer         string
	EnhancerModel    string
	ImageModel       string
	VideoModel       string
	VideoAspectRatio string
	ImageTimeout     time.Duration

	PollInterval  time.Duration
	MaxWait       time.Duration
	MaxPollErrors int

	Port      string
	PublicURL string

	DBPath       string
	JournalLimit int
	MasterKey    string

	LogLevel string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("enhancer", EnhancerGemini)
	v.SetDefault("image_model", "imagen-3.0-generate-002")
	v.SetDefault("video_model", "veo-2.0-generate-001")
	v.SetDefault("video_aspect_ratio", "16:9")
	v.SetDefault("image_timeout", 2*time.Minute)
	v.SetDefault("poll_interval", 10*time.Second)
	v.SetDefault("max_wait", 10*time.Minute)
	v.SetDefault("max_poll_errors", 5)
	v.SetDefault("port", "8080")
	v.SetDefault("db_path", "bot.db")
	v.SetDefault("journal_limit", 50)
	v.SetDefault("log_level", "info")
}

// Load reads the configuration. A missing .env file is not an error;
// configFile is optional.
func Load(configFile string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	_ = v.BindEnv("public_url", "PUBLIC_URL", "RENDER_EXTERNAL_URL")
	_ = v.BindEnv("master_key", "TBOT_MASTER_KEY")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	cfg := &Config{
		BotToken:         v.GetString("bot_token"),
		GeminiAPIKey:     v.GetString("gemini_api_key"),
		OpenAIAPIKey:     v.GetString("openai_api_key"),
		Enhancer:         strings.ToLower(strings.TrimSpace(v.GetString("enhancer"))),
		EnhancerModel:    v.GetString("enhancer_model"),
		ImageModel:       v.GetString("image_model"),
		VideoModel:       v.GetString("video_model"),
		VideoAspectRatio: v.GetString("video_aspect_ratio"),
		ImageTimeout:     v.GetDuration("image_timeout"),
		PollInterval:     v.GetDuration("poll_interval"),
		MaxWait:          v.GetDuration("max_wait"),
		MaxPollErrors:    v.GetInt("max_poll_errors"),
		Port:             v.GetString("port"),
		PublicURL:        strings.TrimRight(v.GetString("public_url"), "/"),
		DBPath:           v.GetString("db_path"),
		JournalLimit:     v.GetInt("journal_limit"),
		MasterKey:        v.GetString("master_key"),
		LogLevel:         v.GetString("log_level"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every missing or inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.BotToken == "" {
		errs = append(errs, errors.New("BOT_TOKEN is required"))
	}
	if c.GeminiAPIKey == "" {
		errs = append(errs, errors.New("GEMINI_API_KEY is required"))
	}
	switch c.Enhancer {
	case EnhancerGemini, EnhancerOff:
	case EnhancerOpenAI:
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required when ENHANCER=openai"))
		}
	default:
		errs = append(errs, fmt.Errorf("ENHANCER must be one of gemini, openai, off; got %q", c.Enhancer))
	}
	if c.PollInterval <= 0 || c.MaxWait <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL and MAX_WAIT must be positive"))
	}
	return errors.Join(errs...)
}

// WebhookURL is the public URL Telegram posts updates to, or empty when the
// bot has no public address.
func (c *Config) WebhookURL() string {
	if c.PublicURL == "" {
		return ""
	}
	return c.PublicURL + "/webhook/" + c.BotToken
}
