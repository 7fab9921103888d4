// Package backend is the HTTP client for the medical-assistant API. Every
// endpoint answers with the envelope {"ok", "message", "data", "code",
// "errors"}.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/comigor/medchat-go/internal/config"
	"github.com/comigor/medchat-go/internal/logger"
)

// Client is a client for the medical-assistant API
type Client struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter

	mu    sync.RWMutex
	token string
}

// NewClient creates a new Client
func NewClient(cfg config.BackendConfig, token string) *Client {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
		token:   token,
	}
}

// SetToken replaces the API token used for subsequent requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the current API token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type envelope struct {
	OK      *bool           `json:"ok"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Errors  json.RawMessage `json:"errors"`
	Data    json.RawMessage `json:"data"`
}

// do sends a JSON request (body may be nil) and decodes the envelope's data
// into out (which may be nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	_, err := c.doJSON(ctx, method, path, body, out)
	return err
}

// doMessage sends a JSON request and returns the envelope's message.
func (c *Client) doMessage(ctx context.Context, method, path string, body any) (string, error) {
	return c.doJSON(ctx, method, path, body, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) (string, error) {
	var reader io.Reader
	contentType := ""
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return "", err
		}
		reader = bytes.NewReader(b)
		contentType = "application/json"
	}
	return c.exchange(ctx, method, path, reader, contentType, out)
}

func (c *Client) send(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	_, err := c.exchange(ctx, method, path, body, contentType, out)
	return err
}

// exchange performs one request and returns the envelope's message.
func (c *Client) exchange(ctx context.Context, method, path string, body io.Reader, contentType string, out any) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/%s", c.baseURL, strings.TrimLeft(path, "/"))
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return "", err
	}

	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Token %s", token))
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		logger.L.Warn("backend request failed", "method", method, "path", path, "error", err)
		return "", err
	}
	defer resp.Body.Close()
	logger.L.Debug("backend request", "method", method, "path", path, "status", resp.StatusCode, "elapsed", time.Since(start))

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var env envelope
	decoded := json.Unmarshal(raw, &env) == nil

	if resp.StatusCode < 200 || resp.StatusCode > 299 || (decoded && env.OK != nil && !*env.OK) {
		apiErr := &APIError{Status: resp.StatusCode, Message: env.Message, Code: env.Code}
		if apiErr.Message == "" {
			apiErr.Message = fmt.Sprintf("Request failed with status %d", resp.StatusCode)
		}
		if len(env.Errors) > 0 {
			fields := map[string]string{}
			if json.Unmarshal(env.Errors, &fields) == nil {
				apiErr.Fields = fields
			}
		}
		return "", apiErr
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return env.Message, nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return "", fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return env.Message, nil
}

// ID is an identifier the backend sends either as a JSON number or string.
type ID string

// UnmarshalJSON accepts numbers, strings and null.
func (id *ID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*id = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*id = ID(v)
		return nil
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return fmt.Errorf("invalid id %s", s)
	}
	*id = ID(s)
	return nil
}

// String returns the id as text.
func (id ID) String() string { return string(id) }
