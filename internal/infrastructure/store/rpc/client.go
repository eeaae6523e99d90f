package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Macrina/Listify-Agent-sub000/internal/infrastructure/store"
)

const maxErrorBody = 2048

type Config struct {
	URL       string
	Token     string
	RateLimit float64
	Burst     int
	Timeout   time.Duration
}

// Client sends statements to a remote store over HTTP, one POST per statement.
type Client struct {
	url        string
	token      string
	limiter    *rate.Limiter
	httpClient *http.Client
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return &Client{
		url:        strings.TrimRight(cfg.URL, "/"),
		token:      cfg.Token,
		limiter:    limiter,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Execute(ctx context.Context, req store.Request) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("store rate limit wait: %w", err)
	}

	params := req.Params
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(store.Request{Session: req.Session, SQL: req.SQL, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshal statement: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create statement request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("store statement request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &store.StatusError{Status: resp.StatusCode, Message: errorMessage(raw)}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read store response: %w", err)
	}
	return raw, nil
}

func errorMessage(raw []byte) string {
	var payload struct {
		Error   any    `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		switch typed := payload.Error.(type) {
		case string:
			if typed != "" {
				return typed
			}
		case map[string]any:
			if msg, ok := typed["message"].(string); ok {
				return msg
			}
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return strings.TrimSpace(string(raw))
}
