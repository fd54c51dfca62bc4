package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/consult-sh/consult/types"
)

func TestClient_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/generate", r.URL.Path)

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "app-architecture-expert", req.Model)
		assert.False(t, req.Stream)

		json.NewEncoder(w).Encode(generateResponse{Response: "You should use SSR here.", Done: true})
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL}, zap.NewNop())

	out, err := client.Generate(context.Background(), "app-architecture-expert", "SSR or SPA?")
	require.NoError(t, err)
	assert.Equal(t, "You should use SSR here.", out)
}

func TestClient_Generate_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "model 'nope' not found"})
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL}, zap.NewNop())

	_, err := client.Generate(context.Background(), "nope", "hi")
	require.Error(t, err)
	assert.Equal(t, types.ErrTransport, types.GetErrorCode(err))
	assert.Contains(t, err.Error(), "HTTP 404")
	assert.Contains(t, err.Error(), "model 'nope' not found")
}

func TestClient_Generate_TruncatesLongDiagnostics(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write(long)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL}, zap.NewNop())

	_, err := client.Generate(context.Background(), "m", "p")
	require.Error(t, err)
	var terr *types.Error
	require.ErrorAs(t, err, &terr)
	assert.LessOrEqual(t, len(terr.Message), maxDiagnosticLen+len("HTTP 502: "))
	assert.True(t, terr.Retryable)
}

func TestTruncate_RuneBoundaries(t *testing.T) {
	// Multibyte upstream error text must not be cut mid-rune.
	long := strings.Repeat("连接超时", 50)
	got := truncate(long)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, maxDiagnosticLen, utf8.RuneCountInString(got))

	short := strings.Repeat("错", maxDiagnosticLen-1)
	assert.Equal(t, short, truncate(short))
}

func TestClient_Generate_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL}, zap.NewNop())

	_, err := client.Generate(context.Background(), "m", "p")
	require.Error(t, err)
	assert.Equal(t, types.ErrTransport, types.GetErrorCode(err))
	assert.Contains(t, err.Error(), "malformed response body")
}

func TestClient_Generate_DeadlinePassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Generate(ctx, "m", "p")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_HealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		w.Write([]byte(`{"models":[]}`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL}, zap.NewNop())

	latency, err := client.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.Greater(t, latency, time.Duration(0))
}

func TestNewClient_DefaultBaseURL(t *testing.T) {
	client := NewClient(Config{}, zap.NewNop())
	assert.Equal(t, "http://localhost:11434", client.cfg.BaseURL)
}
