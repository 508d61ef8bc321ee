package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/germinal-ai/germinal/internal/domain/service"
)

// fakeProvider serves scripted chat-completions responses and records the
// requests it saw.
type fakeProvider struct {
	t        *testing.T
	replies  []fakeReply
	requests []Request
}

type fakeReply struct {
	content      string
	finishReason string
}

func (f *fakeProvider) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			f.t.Errorf("bad request body: %v", err)
		}
		f.requests = append(f.requests, req)

		reply := f.replies[len(f.replies)-1]
		if len(f.requests)-1 < len(f.replies) {
			reply = f.replies[len(f.requests)-1]
		}
		resp := Response{
			Choices: []Choice{{
				Message:      ResponseMessage{Role: "assistant", Content: reply.content},
				FinishReason: reply.finishReason,
			}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func newTestClient(t *testing.T, replies ...fakeReply) (*Client, *fakeProvider, func()) {
	t.Helper()
	provider := &fakeProvider{t: t, replies: replies}
	server := httptest.NewServer(provider.handler())
	client := NewClient(Config{
		Endpoints: []ModelEndpoint{{Model: "test-model", BaseURL: server.URL, APIKey: "sk-test"}},
	}, zap.NewNop())
	return client, provider, server.Close
}

func TestExtractParsesResponse(t *testing.T) {
	client, provider, closeFn := newTestClient(t, fakeReply{
		content:      `{"reasoning": "pong", "tool_call": null}`,
		finishReason: "stop",
	})
	defer closeFn()

	resp, text, err := client.Extract(context.Background(), "test-model",
		[]service.Message{{Role: "user", Content: "ping"}}, 0)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if resp.Reasoning != "pong" || resp.ToolCall != nil {
		t.Errorf("response: %+v", resp)
	}
	if !strings.Contains(text, `"reasoning":"pong"`) {
		t.Errorf("assistant text: %q", text)
	}

	// JSON mode must be requested.
	if provider.requests[0].ResponseFormat == nil || provider.requests[0].ResponseFormat.Type != "json_object" {
		t.Errorf("response_format not set: %+v", provider.requests[0].ResponseFormat)
	}
}

func TestExtractParsesToolCall(t *testing.T) {
	client, _, closeFn := newTestClient(t, fakeReply{
		content:      `{"reasoning": "listing", "tool_call": {"tool": "list_directory", "parameters": {"path": "/tmp"}}}`,
		finishReason: "stop",
	})
	defer closeFn()

	resp, _, err := client.Extract(context.Background(), "test-model", nil, 0)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if resp.ToolCall == nil || resp.ToolCall.Tool != "list_directory" {
		t.Fatalf("tool call: %+v", resp.ToolCall)
	}
	if resp.ToolCall.Parameters["path"] != "/tmp" {
		t.Errorf("parameters: %+v", resp.ToolCall.Parameters)
	}
}

func TestExtractValidationRetry(t *testing.T) {
	client, provider, closeFn := newTestClient(t,
		fakeReply{content: `this is not json`, finishReason: "stop"},
		fakeReply{content: `{"tool_call": null}`, finishReason: "stop"}, // missing reasoning
		fakeReply{content: `{"reasoning": "third time lucky", "tool_call": null}`, finishReason: "stop"},
	)
	defer closeFn()

	resp, _, err := client.Extract(context.Background(), "test-model",
		[]service.Message{{Role: "user", Content: "hi"}}, 0)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if resp.Reasoning != "third time lucky" {
		t.Errorf("reasoning: got %q", resp.Reasoning)
	}
	if len(provider.requests) != 3 {
		t.Fatalf("requests: got %d, want 3", len(provider.requests))
	}
	// The retry prompt carries the validation error back to the model.
	last := provider.requests[2].Messages
	if !strings.Contains(last[len(last)-1].Content, "not a valid response object") {
		t.Errorf("retry prompt: %q", last[len(last)-1].Content)
	}
	// The caller's history is never mutated: first message of every request
	// is still the original user turn.
	if provider.requests[2].Messages[0].Content != "hi" {
		t.Errorf("history head: %q", provider.requests[2].Messages[0].Content)
	}
}

func TestExtractValidationRetryCap(t *testing.T) {
	client, provider, closeFn := newTestClient(t,
		fakeReply{content: `still not json`, finishReason: "stop"},
	)
	defer closeFn()

	_, _, err := client.Extract(context.Background(), "test-model", nil, 0)
	if err == nil {
		t.Fatal("expected validation failure")
	}
	// Initial attempt + maxValidationRetries re-prompts.
	if len(provider.requests) != defaultMaxValidationRetries+1 {
		t.Errorf("requests: got %d, want %d", len(provider.requests), defaultMaxValidationRetries+1)
	}
}

func TestExtractTruncationSignal(t *testing.T) {
	client, _, closeFn := newTestClient(t, fakeReply{
		content:      `{"reasoning": "cut off mid`,
		finishReason: "length",
	})
	defer closeFn()

	_, _, err := client.Extract(context.Background(), "test-model", nil, 0)
	if !errors.Is(err, service.ErrResponseTruncated) {
		t.Fatalf("error: got %v, want ErrResponseTruncated", err)
	}
}

func TestExtractStripsCodeFence(t *testing.T) {
	client, _, closeFn := newTestClient(t, fakeReply{
		content:      "```json\n{\"reasoning\": \"fenced\", \"tool_call\": null}\n```",
		finishReason: "stop",
	})
	defer closeFn()

	resp, _, err := client.Extract(context.Background(), "test-model", nil, 0)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if resp.Reasoning != "fenced" {
		t.Errorf("reasoning: got %q", resp.Reasoning)
	}
}

func TestExtractRejectsEmptyToolName(t *testing.T) {
	client, _, closeFn := newTestClient(t,
		fakeReply{content: `{"reasoning": "r", "tool_call": {"tool": "", "parameters": {}}}`, finishReason: "stop"},
		fakeReply{content: `{"reasoning": "fixed", "tool_call": null}`, finishReason: "stop"},
	)
	defer closeFn()

	resp, _, err := client.Extract(context.Background(), "test-model", nil, 0)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if resp.Reasoning != "fixed" {
		t.Errorf("reasoning: got %q (empty tool name should have been re-prompted)", resp.Reasoning)
	}
}

func TestCompletePlainText(t *testing.T) {
	client, provider, closeFn := newTestClient(t, fakeReply{
		content:      "a dense factual summary",
		finishReason: "stop",
	})
	defer closeFn()

	out, err := client.Complete(context.Background(), "test-model", "summarise this")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "a dense factual summary" {
		t.Errorf("output: got %q", out)
	}
	// Plain completions must not request JSON mode.
	if provider.requests[0].ResponseFormat != nil {
		t.Error("response_format set on plain completion")
	}
}

func TestChatCompletionHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(Config{
		Endpoints: []ModelEndpoint{{Model: "test-model", BaseURL: server.URL}},
	}, zap.NewNop())

	_, _, err := client.Extract(context.Background(), "test-model", nil, 0)
	if err == nil || !strings.Contains(err.Error(), "API error 429") {
		t.Errorf("error: got %v", err)
	}
}
