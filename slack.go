package notifykit

import (
	"context"
	"fmt"
	"time"
)

// SlackConfig configures the Slack incoming-webhook sink.
type SlackConfig struct {
	// WebhookURL is the incoming webhook endpoint. The URL embeds the hook
	// credentials and is therefore never echoed in errors or logs.
	WebhookURL string

	// AllowedHosts defaults to hooks.slack.com.
	AllowedHosts []string

	// PathPrefix defaults to /services.
	PathPrefix string

	MaxChars int
	Timeout  time.Duration
}

// SlackSink delivers events to a Slack incoming webhook as `{ "text": … }`.
type SlackSink struct {
	*httpSink
}

// NewSlackSink validates the configuration and builds the sink.
func NewSlackSink(cfg SlackConfig) (*SlackSink, error) {
	return newSlackSink(cfg, false)
}

// NewSlackSinkStrict additionally runs the DNS preflight at construction. The
// allow-list and path prefix defaults are the same as for NewSlackSink.
func NewSlackSinkStrict(cfg SlackConfig) (*SlackSink, error) {
	return newSlackSink(cfg, true)
}

func newSlackSink(cfg SlackConfig, strict bool) (*SlackSink, error) {
	hosts := cfg.AllowedHosts
	if len(hosts) == 0 {
		hosts = []string{"hooks.slack.com"}
	}
	prefix := cfg.PathPrefix
	if prefix == "" {
		prefix = "/services"
	}

	base, err := newHTTPSink(urlguardConfig(cfg.WebhookURL, hosts, prefix, strict), cfg.Timeout, cfg.MaxChars)
	if err != nil {
		return nil, err
	}
	return &SlackSink{httpSink: base}, nil
}

func (s *SlackSink) Name() string { return "slack" }

func (s *SlackSink) String() string {
	return fmt.Sprintf("slack{host=%s}", s.policy.Host)
}

func (s *SlackSink) Send(ctx context.Context, event *Event) error {
	payload := make(map[string]string, 1)
	payload["text"] = s.compose(event)
	return s.postJSON(ctx, payload, nil)
}
