package explain

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/michaelbrown/javarena/internal/llm"
)

type fakeClient struct {
	content string
	err     error
	delay   time.Duration
	got     []llm.Message
}

func (f *fakeClient) ChatCompletion(ctx context.Context, messages []llm.Message) (*llm.Response, error) {
	f.got = messages
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Message: llm.AssistantMessage(f.content)}, nil
}

func (f *fakeClient) ChatCompletionStream(ctx context.Context, messages []llm.Message, handler llm.StreamHandler) (*llm.Response, error) {
	resp, err := f.ChatCompletion(ctx, messages)
	if err != nil {
		return nil, err
	}
	for _, word := range strings.SplitAfter(f.content, " ") {
		handler(word)
	}
	return resp, nil
}

func TestAIReviewerReview(t *testing.T) {
	client := &fakeClient{content: "  - Add a semicolon on line 3.\n"}
	r := NewAIReviewer(client, time.Second, nil)

	got := r.Review(t.Context(), "Main.java:3: error: ';' expected", "class Main {}", true)
	if got != "- Add a semicolon on line 3." {
		t.Errorf("review = %q", got)
	}
	if len(client.got) != 2 || client.got[0].Role != llm.RoleSystem {
		t.Fatalf("messages = %+v", client.got)
	}
	user := client.got[1].Content
	for _, want := range []string{"Error type: compilation", "--- Java Source Code ---\nclass Main {}", "--- Error Output ---\nMain.java:3"} {
		if !strings.Contains(user, want) {
			t.Errorf("user message missing %q:\n%s", want, user)
		}
	}
}

func TestAIReviewerFailuresAreEmpty(t *testing.T) {
	tests := []struct {
		name   string
		client *fakeClient
	}{
		{"error", &fakeClient{err: errors.New("boom")}},
		{"blank", &fakeClient{content: "   "}},
		{"timeout", &fakeClient{content: "late", delay: time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewAIReviewer(tt.client, 20*time.Millisecond, nil)
			if got := r.Review(t.Context(), "boom", "", false); got != "" {
				t.Errorf("review = %q, want empty", got)
			}
		})
	}
}

func TestAIReviewerStream(t *testing.T) {
	r := NewAIReviewer(&fakeClient{content: "check the index"}, 0, nil)
	var b strings.Builder
	got, err := r.Stream(t.Context(), "java.lang.ArrayIndexOutOfBoundsException", "", false, func(d string) {
		b.WriteString(d)
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if got != "check the index" || b.String() != "check the index" {
		t.Errorf("got %q, streamed %q", got, b.String())
	}
}
