// Package llm talks to an OpenAI compatible chat completion API and builds
// the classification and reply drafting steps on top of it.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/teemow/venuedesk/internal/instrumentation"
	"github.com/teemow/venuedesk/internal/logging"
)

// Message roles.
const (
	RoleSystem = openai.ChatMessageRoleSystem
	RoleUser   = openai.ChatMessageRoleUser
)

// Message is one chat turn.
type Message struct {
	Role    string
	Content string
}

// Options tune a single completion. With Schema set the model must answer
// with a JSON document matching it.
type Options struct {
	Temperature float32
	MaxTokens   int
	Schema      *jsonschema.Definition
	SchemaName  string
}

// Response is the first choice of a completion.
type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Decode unmarshals a structured response into v.
func (r Response) Decode(v any) error {
	if err := json.Unmarshal([]byte(r.Content), v); err != nil {
		return fmt.Errorf("failed to decode model response: %w", err)
	}
	return nil
}

// LanguageModel generates chat completions.
type LanguageModel interface {
	Generate(ctx context.Context, messages []Message, opts Options) (Response, error)
}

// Config configures a Client.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	Timeout     time.Duration

	// MaxAttempts bounds retries of rate limited or failed calls.
	MaxAttempts int
	BaseDelay   time.Duration
}

// Client is a LanguageModel backed by go-openai.
type Client struct {
	api     *openai.Client
	cfg     Config
	logger  *slog.Logger
	metrics *instrumentation.Metrics
	sleep   func(context.Context, time.Duration) error
}

// NewClient creates a Client. metrics may be nil.
func NewClient(cfg Config, logger *slog.Logger, metrics *instrumentation.Metrics) *Client {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	apiCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Client{
		api:     openai.NewClientWithConfig(apiCfg),
		cfg:     cfg,
		logger:  logging.WithComponent(logger, "llm"),
		metrics: metrics,
		sleep:   sleepContext,
	}
}

// Generate runs one chat completion. Rate limits and server errors are
// retried with exponential backoff.
func (c *Client) Generate(ctx context.Context, messages []Message, opts Options) (Response, error) {
	if len(messages) == 0 {
		return Response{}, fmt.Errorf("at least one message is required")
	}

	req := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	if opts.Temperature > 0 {
		req.Temperature = opts.Temperature
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	if opts.Schema != nil {
		name := opts.SchemaName
		if name == "" {
			name = "response"
		}
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   name,
				Schema: opts.Schema,
				Strict: true,
			},
		}
	}

	var (
		resp openai.ChatCompletionResponse
		err  error
	)
	delay := c.cfg.BaseDelay
	for attempt := 1; ; attempt++ {
		resp, err = c.api.CreateChatCompletion(ctx, req)
		if err == nil || attempt >= c.cfg.MaxAttempts || !isRetryable(err) {
			break
		}
		c.logger.WarnContext(ctx, "chat completion failed, retrying",
			slog.Int("attempt", attempt),
			logging.Duration(delay),
			logging.Err(err))
		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			err = errors.Join(err, sleepErr)
			break
		}
		delay *= 2
	}
	if err != nil {
		return Response{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("no response choices")
	}

	return Response{
		Content:          resp.Choices[0].Message.Content,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
