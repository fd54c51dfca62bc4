// Package ollama implements the generation-endpoint client used by the
// dispatcher. Each expert id is an Ollama model name; one Generate call maps
// to one POST /api/generate with streaming disabled.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/consult-sh/consult/internal/tlsutil"
	"github.com/consult-sh/consult/types"
)

// maxDiagnosticLen caps the upstream error text carried into an
// ExpertResult. Long HTML error pages are useless past the first line.
const maxDiagnosticLen = 100

// Config holds the endpoint settings.
type Config struct {
	// BaseURL of the Ollama server, e.g. http://localhost:11434.
	BaseURL string `yaml:"base_url" json:"base_url"`
}

// Client talks to a single Ollama server. Per-call deadlines come from the
// caller's context, so the underlying http.Client carries no timeout of its
// own. Safe for concurrent use.
type Client struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// NewClient creates a new Ollama client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Transport: tlsutil.SecureTransport()},
		logger: logger.With(zap.String("component", "ollama")),
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate runs one prompt against one model and returns the full response
// text. Transport failures, non-2xx statuses and malformed payloads come
// back as *types.Error with code TRANSPORT_ERROR; context cancellation and
// deadline errors pass through unwrapped so the caller can classify them.
func (c *Client) Generate(ctx context.Context, model, prompt string) (string, error) {
	payload, _ := json.Marshal(generateRequest{Model: model, Prompt: prompt, Stream: false})

	endpoint := fmt.Sprintf("%s/api/generate", strings.TrimRight(c.cfg.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", types.NewError(types.ErrTransport, truncate(err.Error())).WithCause(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			// Deadline or cancellation: let the dispatcher classify it.
			return "", ctx.Err()
		}
		return "", types.NewError(types.ErrTransport, truncate(err.Error())).
			WithRetryable(true).
			WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := readErrMsg(resp.Body)
		return "", types.NewError(types.ErrTransport,
			fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(msg))).
			WithHTTPStatus(resp.StatusCode).
			WithRetryable(resp.StatusCode >= 500)
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", types.NewError(types.ErrTransport,
			fmt.Sprintf("malformed response body: %s", truncate(err.Error()))).
			WithCause(err)
	}

	return genResp.Response, nil
}

// HealthCheck probes the server's tag listing endpoint.
func (c *Client) HealthCheck(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	endpoint := fmt.Sprintf("%s/api/tags", strings.TrimRight(c.cfg.BaseURL, "/"))
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)

	resp, err := c.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return latency, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := readErrMsg(resp.Body)
		return latency, fmt.Errorf("ollama health check failed: status=%d msg=%s", resp.StatusCode, truncate(msg))
	}
	return latency, nil
}

type ollamaErrorResp struct {
	Error string `json:"error"`
}

func readErrMsg(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, 4096))
	var errResp ollamaErrorResp
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error != "" {
		return errResp.Error
	}
	return strings.TrimSpace(string(data))
}

// truncate caps diagnostic text at maxDiagnosticLen runes, never
// splitting a multibyte character.
func truncate(s string) string {
	if len(s) <= maxDiagnosticLen {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxDiagnosticLen {
		return s
	}
	return string(runes[:maxDiagnosticLen])
}
