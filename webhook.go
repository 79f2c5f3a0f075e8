package notifykit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/omne42/notify-kit/internal/urlguard"
)

const defaultPayloadField = "text"

// WebhookConfig configures the generic HTTPS webhook sink.
type WebhookConfig struct {
	// URL is the endpoint. https only, no credentials, no IP literals.
	URL string

	// PayloadField is the JSON field carrying the composed text,
	// "text" by default.
	PayloadField string

	// AllowedHosts, PathPrefix and DisablePublicIPCheck feed the URL policy.
	AllowedHosts         []string
	PathPrefix           string
	DisablePublicIPCheck bool

	// MaxChars caps the composed message length in characters.
	MaxChars int

	// Timeout bounds each delivery request.
	Timeout time.Duration
}

// WebhookSink POSTs `{ <field>: <composed text> }` to a validated endpoint.
type WebhookSink struct {
	*httpSink
	field string
}

// NewWebhookSink validates the configuration and builds the sink.
func NewWebhookSink(cfg WebhookConfig) (*WebhookSink, error) {
	return newWebhookSink(cfg, "", false)
}

// NewWebhookSinkWithSecret is NewWebhookSink for endpoints that require a
// signed URL: a timestamp and an HMAC-SHA256 signature over it are appended
// to the query at construction, so the URL is never rewritten at send time.
func NewWebhookSinkWithSecret(cfg WebhookConfig, secret string) (*WebhookSink, error) {
	if _, err := urlguard.CleanField("secret", secret); err != nil {
		return nil, err
	}
	return newWebhookSink(cfg, secret, false)
}

// NewWebhookSinkStrict is NewWebhookSink with strict policy: a non-empty host
// allow-list and path prefix are required, the public IP check cannot be
// disabled, and the DNS preflight runs at construction.
func NewWebhookSinkStrict(cfg WebhookConfig) (*WebhookSink, error) {
	return newWebhookSink(cfg, "", true)
}

// NewWebhookSinkWithSecretStrict combines the signed-URL and strict variants.
func NewWebhookSinkWithSecretStrict(cfg WebhookConfig, secret string) (*WebhookSink, error) {
	if _, err := urlguard.CleanField("secret", secret); err != nil {
		return nil, err
	}
	return newWebhookSink(cfg, secret, true)
}

func newWebhookSink(cfg WebhookConfig, secret string, strict bool) (*WebhookSink, error) {
	field := defaultPayloadField
	if cfg.PayloadField != "" {
		f, err := urlguard.CleanField("payload field", cfg.PayloadField)
		if err != nil {
			return nil, err
		}
		field = f
	}

	rawURL := cfg.URL
	if secret != "" {
		secret, err := urlguard.CleanField("secret", secret)
		if err != nil {
			return nil, err
		}
		signed, err := signURL(rawURL, secret, time.Now())
		if err != nil {
			return nil, err
		}
		rawURL = signed
	}

	base, err := newHTTPSink(urlguard.Config{
		RawURL:               rawURL,
		AllowedHosts:         cfg.AllowedHosts,
		PathPrefix:           cfg.PathPrefix,
		DisablePublicIPCheck: cfg.DisablePublicIPCheck,
		Strict:               strict,
	}, cfg.Timeout, cfg.MaxChars)
	if err != nil {
		return nil, err
	}

	return &WebhookSink{httpSink: base, field: field}, nil
}

func (s *WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) String() string {
	return fmt.Sprintf("webhook{host=%s}", s.policy.Host)
}

func (s *WebhookSink) Send(ctx context.Context, event *Event) error {
	payload := make(map[string]string, 1)
	payload[s.field] = s.compose(event)
	return s.postJSON(ctx, payload, nil)
}

// signURL appends timestamp and sign query parameters: the signature is
// base64(HMAC-SHA256(secret, "<timestamp-ms>\n<secret>")).
func signURL(rawURL, secret string, now time.Time) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing url: %w", err)
	}

	ts := now.UnixMilli()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d\n%s", ts, secret)
	sign := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	q := u.Query()
	q.Set("timestamp", strconv.FormatInt(ts, 10))
	q.Set("sign", sign)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
