package notifykit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/omne42/notify-kit/internal/urlguard"
)

const defaultBarkServer = "https://api.day.app"

// BarkConfig configures the Bark (iOS push) sink.
type BarkConfig struct {
	// Server is the Bark server base URL, https://api.day.app by default.
	// Self-hosted servers are supported; the host must still pass the URL
	// policy.
	Server string

	// DeviceKey identifies the target device. It becomes part of the request
	// path and is never echoed in errors or logs.
	DeviceKey string

	// AllowedHosts defaults to the host of Server.
	AllowedHosts []string

	MaxChars int
	Timeout  time.Duration
}

// BarkSink delivers events through a Bark push server.
type BarkSink struct {
	*httpSink
}

// NewBarkSink validates the configuration and builds the sink.
func NewBarkSink(cfg BarkConfig) (*BarkSink, error) {
	return newBarkSink(cfg, false)
}

// NewBarkSinkStrict additionally runs the DNS preflight at construction.
func NewBarkSinkStrict(cfg BarkConfig) (*BarkSink, error) {
	return newBarkSink(cfg, true)
}

func newBarkSink(cfg BarkConfig, strict bool) (*BarkSink, error) {
	key, err := urlguard.CleanField("device key", cfg.DeviceKey)
	if err != nil {
		return nil, err
	}

	server := strings.TrimRight(cfg.Server, "/")
	if server == "" {
		server = defaultBarkServer
	}

	u, err := url.Parse(server)
	if err != nil {
		return nil, fmt.Errorf("parsing server url: %w", err)
	}
	hosts := cfg.AllowedHosts
	if len(hosts) == 0 {
		if h := strings.ToLower(u.Hostname()); h != "" {
			hosts = []string{h}
		}
	}

	endpoint := server + "/" + key
	base, err := newHTTPSink(urlguard.Config{
		RawURL:       endpoint,
		AllowedHosts: hosts,
		PathPrefix:   strings.TrimRight(u.Path, "/") + "/" + key,
		Strict:       strict,
	}, cfg.Timeout, cfg.MaxChars)
	if err != nil {
		return nil, err
	}
	return &BarkSink{httpSink: base}, nil
}

func (s *BarkSink) Name() string { return "bark" }

func (s *BarkSink) String() string {
	return fmt.Sprintf("bark{host=%s}", s.policy.Host)
}

func (s *BarkSink) Send(ctx context.Context, event *Event) error {
	payload := make(map[string]string, 2)
	payload["title"] = event.Title()
	payload["body"] = s.compose(event)

	return s.postJSON(ctx, payload, func(status int, body []byte, parsed map[string]interface{}) error {
		if status < 200 || status >= 300 {
			return statusError(status, body)
		}
		if code, has := jsonNumber(parsed, "code"); has && code != 200 {
			if msg := jsonString(parsed, "message"); msg != "" {
				return fmt.Errorf("bark server returned code %d: %s", code, msg)
			}
			return fmt.Errorf("bark server returned code %d", code)
		}
		return nil
	})
}
