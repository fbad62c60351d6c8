// Package executor calls tools hosted by the managed wallet service.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/DevWeb3Jogja/batch-5-fe/core"
	"github.com/DevWeb3Jogja/batch-5-fe/logger"
)

const (
	executePath      = "/v1/tools/execute"
	executeWritePath = "/v1/tools/execute-write"
)

type tokenKey struct{}

// WithAuthToken attaches the end user's bearer token to ctx. The server
// sets it per connection so tool calls act as that user.
func WithAuthToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// AuthToken returns the bearer token attached to ctx.
func AuthToken(ctx context.Context) string {
	tok, _ := ctx.Value(tokenKey{}).(string)
	return tok
}

// HTTPExecutorConfig configures an HTTPExecutor.
type HTTPExecutorConfig struct {
	BaseURL string

	// APIKey authenticates the agent itself when no user token is present.
	APIKey string

	// Timeout bounds a single request. Defaults to 30s.
	Timeout time.Duration

	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// HTTPExecutor implements core.ToolExecutor over HTTP/JSON.
type HTTPExecutor struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewHTTPExecutor creates an executor for the service at cfg.BaseURL.
func NewHTTPExecutor(cfg HTTPExecutorConfig) *HTTPExecutor {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPExecutor{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: client,
		log:        logger.GetForComponent("executor"),
	}
}

// Execute implements core.ToolExecutor.
func (e *HTTPExecutor) Execute(ctx context.Context, req *core.ExecuteRequest) (*core.ExecuteResponse, error) {
	return e.do(ctx, executePath, req)
}

// ExecuteWrite implements core.ToolExecutor.
func (e *HTTPExecutor) ExecuteWrite(ctx context.Context, req *core.ExecuteRequest) (*core.ExecuteResponse, error) {
	return e.do(ctx, executeWritePath, req)
}

func (e *HTTPExecutor) do(ctx context.Context, path string, req *core.ExecuteRequest) (*core.ExecuteResponse, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", req.RequestID)
	if tok := AuthToken(ctx); tok != "" {
		httpReq.Header.Set("Authorization", "Bearer "+tok)
	} else if e.apiKey != "" {
		httpReq.Header.Set("X-API-Key", e.apiKey)
	}

	start := time.Now()
	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	e.log.Debug().
		Str("tool", req.Tool).
		Str("request_id", req.RequestID).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("tool executed")

	var out core.ExecuteResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, fmt.Errorf("executor returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		}
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		msg := out.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("executor returned %d: %s", resp.StatusCode, msg)
	}
	if resp.StatusCode >= http.StatusBadRequest && out.Error == "" {
		out.Success = false
		out.Error = http.StatusText(resp.StatusCode)
	}
	return &out, nil
}
