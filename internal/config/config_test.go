package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("GEMINI_API_KEY", "g")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Enhancer != EnhancerGemini {
		t.Errorf("enhancer = %q", cfg.Enhancer)
	}
	if cfg.PollInterval != 10*time.Second || cfg.MaxWait != 10*time.Minute || cfg.MaxPollErrors != 5 {
		t.Errorf("poll settings = %v %v %d", cfg.PollInterval, cfg.MaxWait, cfg.MaxPollErrors)
	}
	if cfg.Port != "8080" || cfg.DBPath != "bot.db" || cfg.JournalLimit != 50 {
		t.Errorf("port=%s db=%s limit=%d", cfg.Port, cfg.DBPath, cfg.JournalLimit)
	}
	if cfg.WebhookURL() != "" {
		t.Errorf("webhook url = %q, want empty", cfg.WebhookURL())
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("GEMINI_API_KEY", "g")
	t.Setenv("ENHANCER", "OpenAI")
	t.Setenv("OPENAI_API_KEY", "o")
	t.Setenv("POLL_INTERVAL", "3s")
	t.Setenv("MAX_WAIT", "90s")
	t.Setenv("RENDER_EXTERNAL_URL", "https://genbot.onrender.com/")
	t.Setenv("TBOT_MASTER_KEY", "key")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Enhancer != EnhancerOpenAI || cfg.OpenAIAPIKey != "o" {
		t.Errorf("enhancer = %q key = %q", cfg.Enhancer, cfg.OpenAIAPIKey)
	}
	if cfg.PollInterval != 3*time.Second || cfg.MaxWait != 90*time.Second {
		t.Errorf("poll=%v wait=%v", cfg.PollInterval, cfg.MaxWait)
	}
	if got := cfg.WebhookURL(); got != "https://genbot.onrender.com/webhook/123:abc" {
		t.Errorf("webhook url = %q", got)
	}
	if cfg.MasterKey != "key" {
		t.Errorf("master key = %q", cfg.MasterKey)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genbot.yaml")
	data := "bot_token: file-token\ngemini_api_key: file-key\nvideo_aspect_ratio: \"9:16\"\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BotToken != "file-token" || cfg.VideoAspectRatio != "9:16" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{Enhancer: "magic", PollInterval: time.Second, MaxWait: time.Minute}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"BOT_TOKEN", "GEMINI_API_KEY", "ENHANCER"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}

	cfg = &Config{BotToken: "t", GeminiAPIKey: "g", Enhancer: EnhancerOpenAI, PollInterval: time.Second, MaxWait: time.Minute}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Fatalf("err = %v", err)
	}
}
