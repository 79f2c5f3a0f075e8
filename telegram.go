package notifykit

import (
	"context"
	"fmt"
	"time"

	"github.com/omne42/notify-kit/internal/urlguard"
)

const telegramHost = "api.telegram.org"

// TelegramConfig configures the Telegram bot sink.
type TelegramConfig struct {
	// Token is the bot token. It becomes part of the request path and is
	// never echoed in errors or logs.
	Token string

	// ChatID identifies the destination chat.
	ChatID string

	MaxChars int
	Timeout  time.Duration
}

// TelegramSink delivers events through the Telegram bot sendMessage API.
type TelegramSink struct {
	*httpSink
	chatID string
}

// NewTelegramSink validates the configuration and builds the sink.
func NewTelegramSink(cfg TelegramConfig) (*TelegramSink, error) {
	return newTelegramSink(cfg, false)
}

// NewTelegramSinkStrict additionally runs the DNS preflight at construction.
func NewTelegramSinkStrict(cfg TelegramConfig) (*TelegramSink, error) {
	return newTelegramSink(cfg, true)
}

func newTelegramSink(cfg TelegramConfig, strict bool) (*TelegramSink, error) {
	token, err := urlguard.CleanField("token", cfg.Token)
	if err != nil {
		return nil, err
	}
	chatID, err := urlguard.CleanField("chat id", cfg.ChatID)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("https://%s/bot%s/sendMessage", telegramHost, token)
	base, err := newHTTPSink(urlguardConfig(endpoint, []string{telegramHost}, "/bot"+token, strict), cfg.Timeout, cfg.MaxChars)
	if err != nil {
		return nil, err
	}
	return &TelegramSink{httpSink: base, chatID: chatID}, nil
}

func (s *TelegramSink) Name() string { return "telegram" }

func (s *TelegramSink) String() string {
	return fmt.Sprintf("telegram{chat=%s}", s.chatID)
}

func (s *TelegramSink) Send(ctx context.Context, event *Event) error {
	payload := make(map[string]string, 2)
	payload["chat_id"] = s.chatID
	payload["text"] = s.compose(event)

	return s.postJSON(ctx, payload, func(status int, body []byte, parsed map[string]interface{}) error {
		// The API reports success in the body; 2xx alone is not enough.
		if ok, isBool := parsed["ok"].(bool); isBool {
			if ok {
				return nil
			}
			// description is actionable ("chat not found", "bot was
			// blocked") and carries no secret, keep it.
			if desc := jsonString(parsed, "description"); desc != "" {
				return fmt.Errorf("telegram api error: %s", desc)
			}
			if code, has := jsonNumber(parsed, "error_code"); has {
				return fmt.Errorf("telegram api error %d", code)
			}
			return fmt.Errorf("telegram api reported failure")
		}
		return s.checkStatus(status, body)
	})
}
