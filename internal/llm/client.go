package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/michaelbrown/javarena/internal/logging"
)

// ErrNoChoices is returned when the provider answers without a completion.
var ErrNoChoices = errors.New("no choices returned")

// Client is the interface for LLM interactions.
type Client interface {
	ChatCompletion(ctx context.Context, messages []Message) (*Response, error)
	ChatCompletionStream(ctx context.Context, messages []Message, handler StreamHandler) (*Response, error)
}

// OpenAICompatClient works with any OpenAI-compatible API (OpenRouter, Ollama, OpenAI).
type OpenAICompatClient struct {
	client    *openai.Client
	model     string
	retryBase time.Duration
	log       *slog.Logger
}

// NewClient creates an LLM client for the given provider. Completions are
// requested at temperature 0.
func NewClient(baseURL, apiKey, model string, logger *slog.Logger) *OpenAICompatClient {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	)
	return &OpenAICompatClient{
		client:    &client,
		model:     model,
		retryBase: time.Second,
		log:       logging.Or(logger),
	}
}

func (c *OpenAICompatClient) params(messages []Message) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    convertMessages(messages),
		Temperature: param.NewOpt(0.0),
	}
}

func (c *OpenAICompatClient) ChatCompletion(ctx context.Context, messages []Message) (*Response, error) {
	params := c.params(messages)

	var completion *openai.ChatCompletion
	err := c.retry(ctx, func() error {
		var err error
		completion, err = c.client.Chat.Completions.New(ctx, params)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	if len(completion.Choices) == 0 {
		return nil, ErrNoChoices
	}
	choice := completion.Choices[0]
	return &Response{
		Message:      AssistantMessage(choice.Message.Content),
		FinishReason: choice.FinishReason,
	}, nil
}

// retry runs call up to three times, backing off only when the provider
// rate limits us (2s, 4s with the default base).
func (c *OpenAICompatClient) retry(ctx context.Context, call func() error) error {
	var err error
	for attempt := range 3 {
		if err = call(); err == nil {
			return nil
		}
		if !rateLimited(err) || attempt == 2 {
			return err
		}
		wait := c.retryBase * time.Duration(2<<attempt)
		c.log.Warn("llm rate limited, retrying", "wait", wait)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func rateLimited(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return strings.Contains(err.Error(), "429")
}

func convertMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		}
	}
	return out
}
