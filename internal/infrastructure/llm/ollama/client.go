package ollama

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Macrina/Listify-Agent-sub000/internal/core/domain"
	"github.com/Macrina/Listify-Agent-sub000/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.httpClient = client }
}

func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) { c.executor = executor }
}

func New(baseURL, model string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.executor == nil {
		c.executor = resilience.NewExecutor(resilience.SingleShotConfig())
	}
	return c
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Format  any             `json:"format,omitempty"`
	Images  []string        `json:"images,omitempty"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// Complete sends one generate call. It is never retried; the executor only
// keeps a circuit breaker in front of the model server.
func (c *Client) Complete(ctx context.Context, req domain.ModelRequest) (string, error) {
	body := generateRequest{
		Model:  c.model,
		Prompt: buildPrompt(req),
		Stream: false,
		Options: generateOptions{
			Temperature: req.Temperature,
			TopP:        req.TopP,
			NumPredict:  req.MaxTokens,
		},
	}
	switch {
	case len(req.ResponseSchema) > 0:
		body.Format = req.ResponseSchema
	case req.ResponseFormat != "":
		body.Format = "json"
	}
	if req.Image != nil {
		body.Images = []string{req.Image.Base64}
	}

	start := time.Now()
	var response struct {
		Response string `json:"response"`
	}
	err := c.executor.Execute(ctx, "ollama.generate", func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/api/generate", body, &response, "generate")
	}, classifyOllamaError)
	if err != nil {
		slog.Error("llm.complete_failed", "provider", "ollama", "model", c.model, "elapsed_ms", time.Since(start).Milliseconds(), "error", err)
		return "", wrapModelError("ollama.generate", err)
	}

	text := strings.TrimSpace(response.Response)
	if text == "" {
		return "", domain.WrapError(domain.ErrModel, "ollama.generate", errors.New("empty model response"))
	}
	slog.Info("llm.complete", "provider", "ollama", "model", c.model, "reply_len", len(text), "elapsed_ms", time.Since(start).Milliseconds())
	return text, nil
}

func buildPrompt(req domain.ModelRequest) string {
	if strings.TrimSpace(req.Content) == "" {
		return req.Instruction
	}
	return req.Instruction + "\nContent:\n" + req.Content
}
