package gemini

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"proactive/internal/suggest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), discardLogger(), Config{
		APIKey:     "test-key",
		BaseURL:    srv.URL + "/",
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)
	return c
}

func candidate(text string) map[string]any {
	return map[string]any{
		"candidates": []map[string]any{{
			"content": map[string]any{
				"role":  "model",
				"parts": []map[string]string{{"text": text}},
			},
		}},
	}
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient(context.Background(), discardLogger(), Config{})
	assert.Error(t, err)
}

func TestGenerate_FreeText(t *testing.T) {
	var body string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "models/"+DefaultModel+":generateContent"), r.URL.Path)
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(candidate("- Agenda: Reunião às 10h."))
	})

	assert.Equal(t, DefaultModel, c.ModelName())

	got, err := c.Generate(context.Background(), suggest.Request{Prompt: "olá"})
	require.NoError(t, err)
	assert.Equal(t, "- Agenda: Reunião às 10h.", got)
	assert.Contains(t, body, "olá")
	assert.NotContains(t, body, "application/json")
}

func TestGenerate_StructuredRequestsJSON(t *testing.T) {
	var body string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(candidate(`{"status":"nothing","suggestions":[]}`))
	})

	got, err := c.Generate(context.Background(), suggest.Request{Prompt: "p", Structured: true})
	require.NoError(t, err)
	assert.Contains(t, body, "application/json")
	assert.Contains(t, body, "suggestions")

	rendered, err := suggest.RenderReply(got)
	require.NoError(t, err)
	assert.Equal(t, suggest.NothingToReport, rendered)
}

func TestGenerate_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`)
	})

	_, err := c.Generate(context.Background(), suggest.Request{Prompt: "p"})
	assert.Error(t, err)
}
