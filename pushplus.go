package notifykit

import (
	"context"
	"fmt"
	"time"

	"github.com/omne42/notify-kit/internal/urlguard"
)

const pushPlusHost = "www.pushplus.plus"

// PushPlusConfig configures the PushPlus sink.
type PushPlusConfig struct {
	// Token is the PushPlus token. It travels in the request body and is
	// never echoed in errors or logs.
	Token string

	MaxChars int
	Timeout  time.Duration
}

// PushPlusSink delivers events through the PushPlus push API.
type PushPlusSink struct {
	*httpSink
	token string
}

// NewPushPlusSink validates the configuration and builds the sink.
func NewPushPlusSink(cfg PushPlusConfig) (*PushPlusSink, error) {
	return newPushPlusSink(cfg, false)
}

// NewPushPlusSinkStrict additionally runs the DNS preflight at construction.
func NewPushPlusSinkStrict(cfg PushPlusConfig) (*PushPlusSink, error) {
	return newPushPlusSink(cfg, true)
}

func newPushPlusSink(cfg PushPlusConfig, strict bool) (*PushPlusSink, error) {
	token, err := urlguard.CleanField("token", cfg.Token)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("https://%s/send", pushPlusHost)
	base, err := newHTTPSink(urlguardConfig(endpoint, []string{pushPlusHost}, "/send", strict), cfg.Timeout, cfg.MaxChars)
	if err != nil {
		return nil, err
	}
	return &PushPlusSink{httpSink: base, token: token}, nil
}

func (s *PushPlusSink) Name() string { return "pushplus" }

func (s *PushPlusSink) String() string {
	return "pushplus{}"
}

func (s *PushPlusSink) Send(ctx context.Context, event *Event) error {
	payload := make(map[string]string, 3)
	payload["token"] = s.token
	payload["title"] = event.Title()
	payload["content"] = s.compose(event)

	return s.postJSON(ctx, payload, func(status int, body []byte, parsed map[string]interface{}) error {
		if status < 200 || status >= 300 {
			return statusError(status, body)
		}
		if code, has := jsonNumber(parsed, "code"); has && code != 200 {
			// msg is actionable ("token invalid", quota errors), keep it.
			if msg := jsonString(parsed, "msg"); msg != "" {
				return fmt.Errorf("pushplus api returned code %d: %s", code, msg)
			}
			return fmt.Errorf("pushplus api returned code %d", code)
		}
		return nil
	})
}
