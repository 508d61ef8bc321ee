package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/germinal-ai/germinal/internal/domain/entity"
	"github.com/germinal-ai/germinal/internal/domain/repository"
	"github.com/germinal-ai/germinal/internal/domain/service"
	"github.com/germinal-ai/germinal/internal/infrastructure/persistence"
)

type handlerFixture struct {
	engine  *gin.Engine
	queue   *service.EventQueue
	events  *persistence.MemoryEventRepository
	waiters *service.Waiters
}

func newHandlerFixture(t *testing.T, timeout time.Duration) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	events := persistence.NewMemoryEventRepository()
	queue := service.NewEventQueue(events, zap.NewNop())
	waiters := service.NewWaiters()

	h := NewOpenAIHandler(queue, waiters, OpenAIHandlerConfig{
		ModelName:        "orchestrator",
		DefaultAgentType: "task_agent",
		DefaultProjectID: "default",
		RequestTimeout:   timeout,
	}, zap.NewNop())

	engine := gin.New()
	engine.POST("/v1/chat/completions", h.ChatCompletions)
	engine.GET("/v1/models", h.ListModels)

	return &handlerFixture{engine: engine, queue: queue, events: events, waiters: waiters}
}

// resolveNext emulates the supervisor: dequeue the next event, complete it,
// and resolve its waiter with the given result.
func (f *handlerFixture) resolveNext(t *testing.T, result *service.InvokeResult) {
	t.Helper()
	ctx := context.Background()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		event, err := f.queue.Dequeue(ctx)
		if err != nil {
			t.Errorf("Dequeue: %v", err)
			return
		}
		if event != nil {
			_ = f.queue.Complete(ctx, event.ID)
			f.waiters.Resolve(event.ID, result)
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("no event appeared on the queue")
}

func postChat(engine *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestChatCompletionRoundTrip(t *testing.T) {
	f := newHandlerFixture(t, 5*time.Second)

	go f.resolveNext(t, &service.InvokeResult{
		InvocationID: "inv_abc",
		Status:       entity.InvocationDone,
		Response:     "hello",
	})

	w := postChat(f.engine, `{"model":"orchestrator","messages":[{"role":"user","content":"hi"}],"stream":false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}

	var resp ChatCompletionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Choices[0].Message.Content != "hello" {
		t.Errorf("content: %q", resp.Choices[0].Message.Content)
	}
	if resp.Choices[0].FinishReason != "stop" {
		t.Errorf("finish_reason: %q", resp.Choices[0].FinishReason)
	}
	if resp.Model != "orchestrator" {
		t.Errorf("model: %q", resp.Model)
	}
	if resp.ID != "chatcmpl-inv_abc" {
		t.Errorf("id: %q", resp.ID)
	}
	if resp.Usage.TotalTokens != 0 {
		t.Errorf("usage should be zeros: %+v", resp.Usage)
	}

	// The queued event carries source=http and ends done.
	events, _ := f.events.List(context.Background(), listAll())
	if len(events) != 1 || events[0].Source != "http" || events[0].Status != entity.EventDone {
		t.Errorf("events: %+v", events)
	}
}

func TestChatCompletionFailedInvocationIs200(t *testing.T) {
	// Backend faults surface as 200 with finish_reason=length, never 500.
	f := newHandlerFixture(t, 5*time.Second)
	go f.resolveNext(t, &service.InvokeResult{
		InvocationID: "inv_bad",
		Status:       entity.InvocationFailed,
		Response:     "Iteration cap reached without task completion.",
	})

	w := postChat(f.engine, `{"model":"m","messages":[{"role":"user","content":"loop"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var resp ChatCompletionResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Choices[0].FinishReason != "length" {
		t.Errorf("finish_reason: %q", resp.Choices[0].FinishReason)
	}
}

func TestChatCompletionMissingUserMessage(t *testing.T) {
	f := newHandlerFixture(t, time.Second)
	w := postChat(f.engine, `{"model":"m","messages":[{"role":"system","content":"rules only"}]}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "invalid_request_error") {
		t.Errorf("body: %s", w.Body.String())
	}
}

func TestChatCompletionLastUserMessageWins(t *testing.T) {
	f := newHandlerFixture(t, 5*time.Second)
	go f.resolveNext(t, &service.InvokeResult{InvocationID: "inv_x", Status: entity.InvocationDone, Response: "ok"})

	w := postChat(f.engine, `{"model":"m","messages":[
		{"role":"user","content":"first"},
		{"role":"assistant","content":"reply"},
		{"role":"user","content":"second"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}

	events, _ := f.events.List(context.Background(), listAll())
	if events[0].Payload["message"] != "second" {
		t.Errorf("task: %v", events[0].Payload["message"])
	}
}

func TestChatCompletionTimeout(t *testing.T) {
	f := newHandlerFixture(t, 50*time.Millisecond)

	// Nobody resolves: the request times out, but the event must stay queued.
	w := postChat(f.engine, `{"model":"m","messages":[{"role":"user","content":"slow"}]}`)
	if w.Code != http.StatusGatewayTimeout {
		t.Fatalf("status: got %d", w.Code)
	}
	if f.waiters.Len() != 0 {
		t.Errorf("waiter leaked after timeout")
	}
	events, _ := f.events.List(context.Background(), listAll())
	if len(events) != 1 || events[0].Status != entity.EventPending {
		t.Errorf("event should remain pending: %+v", events)
	}
}

func TestChatCompletionStreaming(t *testing.T) {
	f := newHandlerFixture(t, 5*time.Second)
	go f.resolveNext(t, &service.InvokeResult{
		InvocationID: "inv_s",
		Status:       entity.InvocationDone,
		Response:     "streamed answer",
	})

	w := postChat(f.engine, `{"model":"m","messages":[{"role":"user","content":"hi"}],"stream":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("content type: %q", ct)
	}

	body := w.Body.String()
	chunks := 0
	sawDone := false
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			sawDone = true
			continue
		}
		chunks++
		var chunk ChatStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			t.Errorf("bad chunk %q: %v", payload, err)
		}
	}
	if chunks != 3 {
		t.Errorf("chunks: got %d, want 3 (role, content, finish)", chunks)
	}
	if !sawDone {
		t.Error("missing [DONE] terminator")
	}
	if !strings.Contains(body, "streamed answer") {
		t.Error("content delta missing")
	}
}

func TestListModels(t *testing.T) {
	f := newHandlerFixture(t, time.Second)
	req := httptest.NewRequest("GET", "/v1/models", nil)
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	var resp struct {
		Object string        `json:"object"`
		Data   []OpenAIModel `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if resp.Object != "list" || len(resp.Data) != 1 || resp.Data[0].ID != "orchestrator" {
		t.Errorf("models: %+v", resp)
	}
	if resp.Data[0].OwnedBy != "orchestrator" || resp.Data[0].Created != 0 {
		t.Errorf("model entry: %+v", resp.Data[0])
	}
}

func TestBuildResponseText(t *testing.T) {
	result := &service.InvokeResult{
		Response: "final answer",
		Steps: []service.Step{
			{Reasoning: "checking the file", Tool: "read_file", Parameters: map[string]interface{}{"path": "/tmp/a"}},
			{Reasoning: "", Tool: "notify_user", Parameters: nil},
		},
	}
	text := buildResponseText(result)
	for _, want := range []string{
		"checking the file",
		`[Tool: read_file | Parameters: {"path":"/tmp/a"}]`,
		"[Tool: notify_user | Parameters: {}]",
		"final answer",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in:\n%s", want, text)
		}
	}

	bare := buildResponseText(&service.InvokeResult{Response: "just this"})
	if bare != "just this" {
		t.Errorf("no-steps text: %q", bare)
	}
}

func listAll() repository.EventFilter {
	return repository.EventFilter{Limit: 50}
}
