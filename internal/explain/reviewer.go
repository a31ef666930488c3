package explain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/michaelbrown/javarena/internal/llm"
	"github.com/michaelbrown/javarena/internal/logging"
)

const systemPrompt = "You are an expert Java programming tutor. A student is using an online Java playground " +
	"(the file is always Main.java). They hit an error. Your job is to:\n" +
	"1. Identify the error clearly.\n" +
	"2. Explain why it happened in simple, beginner-friendly language.\n" +
	"3. Point to the exact line(s) if possible.\n" +
	"4. Provide a concrete fix or code suggestion.\n" +
	"Keep the answer concise (under 200 words). Use bullet points. " +
	"Do NOT repeat the full error text back; the student already sees it."

// AIReviewer asks a language model to explain an error.
type AIReviewer struct {
	client  llm.Client
	timeout time.Duration
	log     *slog.Logger
}

// NewAIReviewer wraps client. A zero timeout means the caller's context
// alone bounds each request.
func NewAIReviewer(client llm.Client, timeout time.Duration, logger *slog.Logger) *AIReviewer {
	return &AIReviewer{client: client, timeout: timeout, log: logging.Or(logger)}
}

func messages(errText, source string, compile bool) []llm.Message {
	kind := TypeRuntime
	if compile {
		kind = TypeCompilation
	}
	user := fmt.Sprintf("Error type: %s\n\n--- Java Source Code ---\n%s\n\n--- Error Output ---\n%s",
		kind, source, errText)
	return []llm.Message{llm.SystemMessage(systemPrompt), llm.UserMessage(user)}
}

func (r *AIReviewer) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout > 0 {
		return context.WithTimeout(ctx, r.timeout)
	}
	return context.WithCancel(ctx)
}

// Review returns the model's explanation, or "" when the request fails or
// the answer is empty. Failures are logged, never returned.
func (r *AIReviewer) Review(ctx context.Context, errText, source string, compile bool) string {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	resp, err := r.client.ChatCompletion(ctx, messages(errText, source, compile))
	if err != nil {
		r.log.Warn("ai review failed", "err", err)
		return ""
	}
	content := strings.TrimSpace(resp.Message.Content)
	if content == "" {
		r.log.Warn("ai review returned empty content")
		return ""
	}
	r.log.Debug("ai review received", "chars", len(content))
	return content
}

// Stream is Review with incremental delivery: handler sees each text
// delta as it arrives.
func (r *AIReviewer) Stream(ctx context.Context, errText, source string, compile bool, handler llm.StreamHandler) (string, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	resp, err := r.client.ChatCompletionStream(ctx, messages(errText, source, compile), handler)
	if err != nil {
		return "", fmt.Errorf("ai review: %w", err)
	}
	return strings.TrimSpace(resp.Message.Content), nil
}
