package notifykit

import (
	"context"
	"fmt"
	"time"

	"github.com/omne42/notify-kit/internal/urlguard"
)

const serverChanHost = "sctapi.ftqq.com"

// ServerChanConfig configures the ServerChan (Server酱) sink.
type ServerChanConfig struct {
	// SendKey is the ServerChan send key. It becomes part of the request
	// path and is never echoed in errors or logs.
	SendKey string

	MaxChars int
	Timeout  time.Duration
}

// ServerChanSink delivers events through the ServerChan push API.
type ServerChanSink struct {
	*httpSink
}

// NewServerChanSink validates the configuration and builds the sink.
func NewServerChanSink(cfg ServerChanConfig) (*ServerChanSink, error) {
	return newServerChanSink(cfg, false)
}

// NewServerChanSinkStrict additionally runs the DNS preflight at construction.
func NewServerChanSinkStrict(cfg ServerChanConfig) (*ServerChanSink, error) {
	return newServerChanSink(cfg, true)
}

func newServerChanSink(cfg ServerChanConfig, strict bool) (*ServerChanSink, error) {
	key, err := urlguard.CleanField("send key", cfg.SendKey)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("https://%s/%s.send", serverChanHost, key)
	base, err := newHTTPSink(urlguardConfig(endpoint, []string{serverChanHost}, "/"+key+".send", strict), cfg.Timeout, cfg.MaxChars)
	if err != nil {
		return nil, err
	}
	return &ServerChanSink{httpSink: base}, nil
}

func (s *ServerChanSink) Name() string { return "serverchan" }

func (s *ServerChanSink) String() string {
	return "serverchan{}"
}

func (s *ServerChanSink) Send(ctx context.Context, event *Event) error {
	payload := make(map[string]string, 2)
	payload["title"] = event.Title()
	payload["desp"] = s.compose(event)

	return s.postJSON(ctx, payload, func(status int, body []byte, parsed map[string]interface{}) error {
		if status < 200 || status >= 300 {
			// Third-party body text is not echoed for this provider.
			return fmt.Errorf("serverchan endpoint returned status %d", status)
		}
		if code, has := jsonNumber(parsed, "code"); has && code != 0 {
			return fmt.Errorf("serverchan api returned code %d", code)
		}
		return nil
	})
}
