package codec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

const maxErrorBody = 4096

// #region http-config
// HTTPConfig configures an OpenAI-compatible chat completions endpoint.
type HTTPConfig struct {
	BaseURL    string // e.g. https://api.openai.com/v1
	APIKey     string
	HTTPClient *http.Client
}

// HTTPTransport calls {BaseURL}/chat/completions.
type HTTPTransport struct {
	cfg HTTPConfig
}

// NewHTTPTransport builds an HTTPTransport. A nil client selects http.DefaultClient.
func NewHTTPTransport(cfg HTTPConfig) *HTTPTransport {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	return &HTTPTransport{cfg: cfg}
}

// #endregion http-config

// #region http-complete
// Complete posts the request and extracts the first choice's content.
func (t *HTTPTransport) Complete(ctx context.Context, req Request) (string, error) {
	if t.cfg.BaseURL == "" {
		return "", fmt.Errorf("base url is required")
	}

	payload := map[string]any{
		"model":    req.Model,
		"messages": req.Messages,
	}
	if req.Temperature > 0 {
		payload["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}
	if req.JSON {
		payload["response_format"] = map[string]string{"type": "json_object"}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if t.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)
	}

	res, err := t.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return "", &CallError{
			Kind:   KindHTTP,
			Status: res.StatusCode,
			Body:   strings.TrimSpace(string(errBody)),
		}
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return "", &CallError{Kind: KindMalformed, Err: fmt.Errorf("read completion body: %w", err)}
	}
	return parseCompletion(raw)
}

// parseCompletion pulls choices[0].message.content out of a response body.
func parseCompletion(raw []byte) (string, error) {
	if !gjson.ValidBytes(raw) {
		return "", &CallError{Kind: KindMalformed, Body: "response is not json"}
	}
	content := gjson.GetBytes(raw, "choices.0.message.content")
	if !content.Exists() || content.Type != gjson.String {
		return "", &CallError{Kind: KindMalformed, Body: "response has no message content"}
	}
	return content.String(), nil
}

// #endregion http-complete
