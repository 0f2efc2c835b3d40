package sink

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

// TelegramConfig configures the Telegram sink.
type TelegramConfig struct {
	Token  string
	ChatID int64
}

// Telegram forwards reminders to a Telegram chat. Send is best-effort;
// the chain reports failures and moves on.
type Telegram struct {
	bot  *tele.Bot
	chat tele.ChatID
}

func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		Token: cfg.Token,
		// Bound API calls so a broken network can't hang a tick.
		Client: &http.Client{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, err
	}
	return &Telegram{bot: b, chat: tele.ChatID(cfg.ChatID)}, nil
}

func (t *Telegram) Notify(_ context.Context, title, body string) error {
	msg := title
	if body != "" {
		msg = title + "\n\n" + body
	}
	_, err := t.bot.Send(t.chat, msg, &tele.SendOptions{DisableWebPagePreview: true})
	return err
}
