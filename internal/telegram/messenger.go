// Package telegram connects the relays to the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"errors"

	tg "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"telegram-genai-bot/internal/relay"
)

// Bot is the subset of *bot.Bot the package depends on.
type Bot interface {
	SendMessage(ctx context.Context, params *tg.SendMessageParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *tg.EditMessageTextParams) (*models.Message, error)
	DeleteMessage(ctx context.Context, params *tg.DeleteMessageParams) (bool, error)
	SendPhoto(ctx context.Context, params *tg.SendPhotoParams) (*models.Message, error)
	SendVideo(ctx context.Context, params *tg.SendVideoParams) (*models.Message, error)
	GetFile(ctx context.Context, params *tg.GetFileParams) (*models.File, error)
	FileDownloadLink(file *models.File) string
}

var _ Bot = (*tg.Bot)(nil)

// Messenger implements relay.Messenger on top of a Bot.
type Messenger struct {
	b Bot
}

// NewMessenger wraps b.
func NewMessenger(b Bot) *Messenger {
	return &Messenger{b: b}
}

func (m *Messenger) SendText(ctx context.Context, chatID int64, text string) (relay.MessageRef, error) {
	msg, err := m.b.SendMessage(ctx, &tg.SendMessageParams{ChatID: chatID, Text: text})
	if err != nil {
		return relay.MessageRef{}, err
	}
	if msg == nil {
		return relay.MessageRef{}, errors.New("telegram returned no message")
	}
	return relay.MessageRef{ChatID: chatID, MessageID: msg.ID}, nil
}

func (m *Messenger) EditText(ctx context.Context, ref relay.MessageRef, text string) error {
	_, err := m.b.EditMessageText(ctx, &tg.EditMessageTextParams{
		ChatID:    ref.ChatID,
		MessageID: ref.MessageID,
		Text:      text,
	})
	return err
}

func (m *Messenger) DeleteMessage(ctx context.Context, ref relay.MessageRef) error {
	ok, err := m.b.DeleteMessage(ctx, &tg.DeleteMessageParams{ChatID: ref.ChatID, MessageID: ref.MessageID})
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("message was not deleted")
	}
	return nil
}

func (m *Messenger) SendPhoto(ctx context.Context, chatID int64, data []byte, caption string) error {
	_, err := m.b.SendPhoto(ctx, &tg.SendPhotoParams{
		ChatID:  chatID,
		Photo:   &models.InputFileUpload{Filename: "image.png", Data: bytes.NewReader(data)},
		Caption: caption,
	})
	return err
}

func (m *Messenger) SendVideo(ctx context.Context, chatID int64, data []byte, caption string) error {
	_, err := m.b.SendVideo(ctx, &tg.SendVideoParams{
		ChatID:  chatID,
		Video:   &models.InputFileUpload{Filename: "video.mp4", Data: bytes.NewReader(data)},
		Caption: caption,
	})
	return err
}

var _ relay.Messenger = (*Messenger)(nil)
