package notifykit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/omne42/notify-kit/internal/clientcache"
	"github.com/omne42/notify-kit/internal/dnsguard"
	"github.com/omne42/notify-kit/internal/urlguard"
)

const (
	defaultSinkTimeout  = 8 * time.Second
	defaultMaxChars     = 4000
	maxResponseBytes    = 16 << 10
	maxBodySummaryChars = 200
)

// Process-wide DNS preflight and pinned-client caches, shared by every HTTP
// sink so concurrent deliveries to the same host deduplicate resolution and
// reuse connections.
var (
	sharedOnce    sync.Once
	sharedChecker *dnsguard.Checker
	sharedClients *clientcache.Cache
)

func sharedGuards() (*dnsguard.Checker, *clientcache.Cache) {
	sharedOnce.Do(func() {
		sharedChecker = dnsguard.New(dnsguard.Config{})
		sharedClients = clientcache.New(clientcache.Config{})
	})
	return sharedChecker, sharedClients
}

// httpSink is the shared skeleton of every network sink: compose text, run
// the DNS preflight, acquire a pinned client, POST, decode a capped response
// and classify the outcome. Provider sinks embed it and supply framing.
type httpSink struct {
	policy   *urlguard.Policy
	checker  *dnsguard.Checker
	clients  *clientcache.Cache
	timeout  time.Duration
	maxChars int

	client *http.Client // overrides the pinned-client pipeline; for test purposes only
}

func newHTTPSink(cfg urlguard.Config, timeout time.Duration, maxChars int) (*httpSink, error) {
	policy, err := urlguard.New(cfg)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = defaultSinkTimeout
	}
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	checker, clients := sharedGuards()
	s := &httpSink{
		policy:   policy,
		checker:  checker,
		clients:  clients,
		timeout:  timeout,
		maxChars: maxChars,
	}

	// Strict construction runs the preflight up front, with the same budget
	// and concurrency discipline as at send time.
	if policy.Strict {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if _, err := checker.Check(ctx, policy.Host); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// urlguardConfig is shorthand for provider sinks whose policy is fully
// determined by endpoint, allow-list and prefix.
func urlguardConfig(rawURL string, hosts []string, prefix string, strict bool) urlguard.Config {
	return urlguard.Config{
		RawURL:       rawURL,
		AllowedHosts: hosts,
		PathPrefix:   prefix,
		Strict:       strict,
	}
}

// compose renders the event through the sink's character budget.
func (s *httpSink) compose(event *Event) string {
	return composeText(event.Title(), event.Body(), event.tags, s.maxChars)
}

// responseCheck classifies a provider response once the transport succeeded.
// body is capped and parsed is the decoded JSON object when the body looked
// like JSON, nil otherwise.
type responseCheck func(status int, body []byte, parsed map[string]interface{}) error

// postJSON runs the shared pipeline against the sink's validated URL.
func (s *httpSink) postJSON(ctx context.Context, payload interface{}, check responseCheck) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	client := s.client
	if client == nil {
		var pinned []netip.Addr
		if s.policy.PublicIPCheck {
			pinned, err = s.checker.Check(ctx, s.policy.Host)
			if err != nil {
				return err
			}
		}
		client, err = s.clients.Get(s.policy.Host, s.timeout, pinned)
		if err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.policy.URL.String(), bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return s.sanitizeTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("reading response from %s: body read failed", s.policy.Host)
	}

	var parsed map[string]interface{}
	if looksLikeJSON(resp.Header.Get("Content-Type"), body) {
		if err := json.Unmarshal(body, &parsed); err != nil {
			// Arrays and scalars are valid JSON but not an object; only a
			// genuinely broken body is an error.
			var probe interface{}
			if jerr := json.Unmarshal(body, &probe); jerr != nil {
				return fmt.Errorf("decoding response from %s: %w", s.policy.Host, jerr)
			}
			parsed = nil
		}
	}

	if check != nil {
		return check(resp.StatusCode, body, parsed)
	}
	return s.checkStatus(resp.StatusCode, body)
}

// checkStatus is the default outcome classification: 2xx is success,
// everything else reports the status with a truncated body summary.
func (s *httpSink) checkStatus(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	return statusError(status, body)
}

func statusError(status int, body []byte) error {
	summary := summarizeBody(body)
	if summary == "" {
		return fmt.Errorf("endpoint returned status %d", status)
	}
	return fmt.Errorf("endpoint returned status %d: %s", status, summary)
}

// sanitizeTransportError maps a transport failure to a coarse category. The
// raw error is discarded: *url.Error strings embed the full request URL,
// which may carry tokens or signatures.
func (s *httpSink) sanitizeTransportError(err error) error {
	host := s.policy.Host
	if errors.Is(err, clientcache.ErrRedirect) {
		return fmt.Errorf("request to %s failed: endpoint attempted a redirect", host)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("request to %s failed: canceled", host)
	}
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("request to %s failed: timeout", host)
	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("request to %s failed: timeout", host)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Errorf("request to %s failed: connect", host)
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("request to %s failed: %s", host, ue.Op)
	}
	return fmt.Errorf("request to %s failed: request error", host)
}

// looksLikeJSON sniffs a response body: declared content type, or a leading
// '{' / '[' after whitespace.
func looksLikeJSON(contentType string, body []byte) bool {
	if strings.Contains(contentType, "application/json") {
		return true
	}
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}

// summarizeBody collapses whitespace and truncates the body for inclusion in
// an error message.
func summarizeBody(body []byte) string {
	collapsed := strings.Join(strings.Fields(string(body)), " ")
	return firstRunes(collapsed, maxBodySummaryChars)
}

// jsonString returns the string value of a field in a decoded body.
func jsonString(parsed map[string]interface{}, key string) string {
	if parsed == nil {
		return ""
	}
	if v, ok := parsed[key].(string); ok {
		return v
	}
	return ""
}

// jsonNumber returns the numeric value of a field in a decoded body, with ok
// reporting whether the field was present and numeric.
func jsonNumber(parsed map[string]interface{}, key string) (int64, bool) {
	if parsed == nil {
		return 0, false
	}
	if v, ok := parsed[key].(float64); ok {
		return int64(v), true
	}
	return 0, false
}
