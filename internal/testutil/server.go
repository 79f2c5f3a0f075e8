// Package testutil provides shared helpers for exercising notification sinks
// in tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// EndpointServer acts as a mock HTTPS endpoint that records the JSON payloads
// a sink delivers.
type EndpointServer struct {
	URL  string
	Host string

	mu       sync.Mutex
	payloads []map[string]interface{}

	status int
	body   string
}

// NewEndpointServer starts a TLS mock endpoint answering every POST with the
// given status and body. The returned http.Client trusts the server
// certificate.
func NewEndpointServer(t *testing.T, status int, body string) (*EndpointServer, *http.Client) {
	t.Helper()

	es := &EndpointServer{status: status, body: body}

	s := httptest.NewTLSServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "application/json", r.Header.Get("Content-Type"))

			var payload map[string]interface{}
			err := json.NewDecoder(r.Body).Decode(&payload)
			require.NoError(t, err)

			es.mu.Lock()
			es.payloads = append(es.payloads, payload)
			es.mu.Unlock()

			w.WriteHeader(es.status)
			_, _ = w.Write([]byte(es.body))
		}))

	t.Cleanup(func() {
		s.Close()
	})

	es.URL = s.URL
	es.Host = s.Listener.Addr().String()
	return es, s.Client()
}

// Payloads returns a snapshot of the recorded request bodies.
func (es *EndpointServer) Payloads() []map[string]interface{} {
	es.mu.Lock()
	defer es.mu.Unlock()
	out := make([]map[string]interface{}, len(es.payloads))
	copy(out, es.payloads)
	return out
}
