package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mail-archivist/internal/model"
	"mail-archivist/pkg/circuitbreaker"
)

type staticKey string

func (k staticKey) APIKey() string { return string(k) }

func geminiServer(t *testing.T, status int, text string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1beta/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("key"))

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "application/json", req.GenerationConfig.ResponseMimeType)

		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{
				map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": text}}}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(baseURL string, key KeySource) *Client {
	return NewClient(Config{BaseURL: baseURL, Model: "gemini-test", Categories: []string{"Finance", "Dev"}}, key)
}

func TestClient_ProposeRules(t *testing.T) {
	srv := geminiServer(t, http.StatusOK, "```json\n{\"a@x.com\": \"Finance\", \"b@y.com\": \"Unclassified\"}\n```")
	c := newTestClient(srv.URL, staticKey("secret"))

	got, err := c.ProposeRules(context.Background(), []string{"a@x.com", "b@y.com"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a@x.com": "Finance", "b@y.com": "Unclassified"}, got)
}

func TestClient_Categorize(t *testing.T) {
	srv := geminiServer(t, http.StatusOK, `{"category": "Dev"}`)
	c := newTestClient(srv.URL, staticKey("secret"))

	got, err := c.Categorize(context.Background(), model.Email{Sender: "ci@github.com", Subject: "Build failed"})
	require.NoError(t, err)
	assert.Equal(t, "Dev", got)
}

func TestClient_NoKey(t *testing.T) {
	c := newTestClient("http://127.0.0.1:0", staticKey(""))
	_, err := c.Categorize(context.Background(), model.Email{})
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestClient_ServerErrorsOpenBreaker(t *testing.T) {
	srv := geminiServer(t, http.StatusServiceUnavailable, "")
	c := newTestClient(srv.URL, staticKey("secret"))

	for i := 0; i < 3; i++ {
		_, err := c.Categorize(context.Background(), model.Email{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "agent service 5xx")
	}
	_, err := c.Categorize(context.Background(), model.Email{})
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitBreakerOpen)
}
