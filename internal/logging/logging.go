package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Log is the base logger used throughout the application.
var Log = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Init configures the global logger. An empty level falls back to the
// LOG_LEVEL environment variable and then to info.
func Init(level string) {
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	lvl := zerolog.InfoLevel
	if level != "" {
		if l, err := zerolog.ParseLevel(strings.ToLower(level)); err == nil {
			lvl = l
		}
	}
	zerolog.TimeFieldFormat = time.RFC3339
	Log = zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
}

// Context returns a new context with a request scoped logger containing a
// generated trace_id field.
func Context(ctx context.Context) context.Context {
	logger := Log.With().Str("trace_id", uuid.NewString()).Logger()
	return logger.WithContext(ctx)
}

// WithChat attaches the chat id to the logger stored in ctx.
func WithChat(ctx context.Context, chatID int64) context.Context {
	logger := Ctx(ctx).With().Int64("chat_id", chatID).Logger()
	return logger.WithContext(ctx)
}

// WithUser attaches the user id to the logger stored in ctx.
func WithUser(ctx context.Context, userID int64) context.Context {
	logger := Ctx(ctx).With().Int64("user_id", userID).Logger()
	return logger.WithContext(ctx)
}

// Ctx extracts the logger from the context or returns the base logger.
func Ctx(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &Log
}

// Snippet returns the first n runes of s.
func Snippet(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
