package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/germinal-ai/germinal/internal/domain/entity"
	"github.com/germinal-ai/germinal/internal/domain/tool"
	"github.com/germinal-ai/germinal/internal/infrastructure/persistence"
)

// scriptedLLM replays a fixed sequence of structured responses. When the
// script is exhausted it repeats the last entry, which makes iteration-cap
// tests trivial to express.
type scriptedLLM struct {
	script   []scriptTurn
	extracts int
}

type scriptTurn struct {
	resp *AgentResponse
	err  error
}

func (s *scriptedLLM) Extract(ctx context.Context, model string, messages []Message, maxTokens int) (*AgentResponse, string, error) {
	turn := s.script[len(s.script)-1]
	if s.extracts < len(s.script) {
		turn = s.script[s.extracts]
	}
	s.extracts++
	if turn.err != nil {
		return nil, "", turn.err
	}
	raw, _ := json.Marshal(turn.resp)
	return turn.resp, string(raw), nil
}

func (s *scriptedLLM) Complete(ctx context.Context, model, prompt string) (string, error) {
	return "summary", nil
}

type invokerFixture struct {
	invoker     *AgentInvoker
	llm         *scriptedLLM
	invocations *persistence.MemoryInvocationRepository
	toolCalls   *persistence.MemoryToolCallRepository
	projects    *persistence.MemoryProjectRepository
	history     *persistence.MemoryHistoryRepository
	registry    *tool.Registry
}

func newInvokerFixture(t *testing.T, script ...scriptTurn) *invokerFixture {
	t.Helper()
	llm := &scriptedLLM{script: script}
	invocations := persistence.NewMemoryInvocationRepository()
	toolCalls := persistence.NewMemoryToolCallRepository()
	projects := persistence.NewMemoryProjectRepository()
	history := persistence.NewMemoryHistoryRepository(projects)
	cm := NewContextManager(projects, history, llm, ContextConfig{RecentBufferTokens: 100000}, zap.NewNop())

	return &invokerFixture{
		invoker:     NewAgentInvoker(llm, invocations, toolCalls, cm, zap.NewNop()),
		llm:         llm,
		invocations: invocations,
		toolCalls:   toolCalls,
		projects:    projects,
		history:     history,
		registry:    tool.NewRegistry(),
	}
}

func (f *invokerFixture) request(task string) InvokeRequest {
	return InvokeRequest{
		Task:          task,
		AgentType:     "task_agent",
		Model:         "test-model",
		MaxIterations: 10,
		Registry:      f.registry,
	}
}

func toolTurn(reasoning, toolName string, params map[string]interface{}) scriptTurn {
	return scriptTurn{resp: &AgentResponse{
		Reasoning: reasoning,
		ToolCall:  &ToolCallRequest{Tool: toolName, Parameters: params},
	}}
}

func doneTurn(reasoning string) scriptTurn {
	return scriptTurn{resp: &AgentResponse{Reasoning: reasoning}}
}

// === scenarios ===

func TestInvokeImmediateCompletion(t *testing.T) {
	f := newInvokerFixture(t, doneTurn("pong"))
	ctx := context.Background()

	req := f.request("ping")
	req.ProjectID = "proj"
	_ = f.projects.InsertIgnore(ctx, &entity.Project{ID: "proj", Name: "proj"})

	result := f.invoker.Invoke(ctx, req)

	if result.Status != entity.InvocationDone {
		t.Fatalf("status: got %s, want done", result.Status)
	}
	if result.Response != "pong" {
		t.Errorf("response: got %q, want pong", result.Response)
	}
	if len(result.ToolCalls) != 0 {
		t.Errorf("tool calls: got %d, want 0", len(result.ToolCalls))
	}

	// Two history rows: user task + agent response.
	rows, _ := f.history.FindByProject(ctx, "proj", false)
	if len(rows) != 2 {
		t.Fatalf("history rows: got %d, want 2", len(rows))
	}
	if rows[0].Role != entity.RoleUser || rows[0].Content != "ping" {
		t.Errorf("first row: %+v", rows[0])
	}
	if rows[1].Role != entity.RoleAgent || rows[1].Content != "pong" {
		t.Errorf("second row: %+v", rows[1])
	}

	inv, err := f.invocations.FindByID(ctx, result.InvocationID)
	if err != nil {
		t.Fatalf("invocation row: %v", err)
	}
	if inv.Status != entity.InvocationDone || inv.Response != "pong" {
		t.Errorf("invocation row: %+v", inv)
	}
	if inv.FinishedAt == nil {
		t.Error("finished_at not stamped")
	}
}

func TestInvokeChainedToolCalls(t *testing.T) {
	files := map[string]string{}
	f := newInvokerFixture(t,
		toolTurn("writing the file", "write_file", map[string]interface{}{"path": "/tmp/a.txt", "content": "hello"}),
		toolTurn("reading it back", "read_file", map[string]interface{}{"path": "/tmp/a.txt"}),
		doneTurn("round trip complete"),
	)
	ctx := context.Background()

	mustRegister(t, f.registry, tool.MustNew("write_file", "write", objectSchema(map[string]interface{}{
		"path":    map[string]interface{}{"type": "string"},
		"content": map[string]interface{}{"type": "string"},
	}, "path", "content"), tool.RiskMedium, func(p map[string]interface{}) (map[string]interface{}, error) {
		files[p["path"].(string)] = p["content"].(string)
		return map[string]interface{}{"success": true}, nil
	}))
	mustRegister(t, f.registry, tool.MustNew("read_file", "read", objectSchema(map[string]interface{}{
		"path": map[string]interface{}{"type": "string"},
	}, "path"), tool.RiskLow, func(p map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"content": files[p["path"].(string)]}, nil
	}))

	result := f.invoker.Invoke(ctx, f.request("write then read"))

	if result.Status != entity.InvocationDone {
		t.Fatalf("status: got %s", result.Status)
	}
	if len(result.ToolCalls) != 2 {
		t.Fatalf("tool calls: got %d, want 2", len(result.ToolCalls))
	}
	if result.ToolCalls[0].Tool != "write_file" || result.ToolCalls[1].Tool != "read_file" {
		t.Errorf("tool order: %s then %s", result.ToolCalls[0].Tool, result.ToolCalls[1].Tool)
	}
	if got := result.ToolCalls[1].Result["content"]; got != "hello" {
		t.Errorf("read-back content: got %v, want hello", got)
	}

	rows := f.toolCalls.InOrder()
	if len(rows) != 2 {
		t.Fatalf("tool call rows: got %d, want 2", len(rows))
	}
	for _, row := range rows {
		if row.Status != entity.ToolCallExecuted {
			t.Errorf("row %s status: got %s, want executed", row.ToolName, row.Status)
		}
	}
	if len(result.Steps) != 2 || result.Steps[0].Reasoning != "writing the file" {
		t.Errorf("steps: %+v", result.Steps)
	}
}

func TestInvokeUnknownToolRecovery(t *testing.T) {
	f := newInvokerFixture(t,
		toolTurn("trying something odd", "does_not_exist", map[string]interface{}{}),
		toolTurn("fine, the real one", "noop", map[string]interface{}{}),
		doneTurn("recovered"),
	)
	ctx := context.Background()
	mustRegister(t, f.registry, noopTool(t))

	result := f.invoker.Invoke(ctx, f.request("do a thing"))

	if result.Status != entity.InvocationDone {
		t.Fatalf("status: got %s", result.Status)
	}
	rows := f.toolCalls.InOrder()
	if len(rows) != 2 {
		t.Fatalf("tool call rows: got %d, want 2", len(rows))
	}
	if rows[0].Status != entity.ToolCallFailed {
		t.Errorf("unknown tool row status: got %s, want failed", rows[0].Status)
	}
	if rows[0].RiskLevel != string(tool.RiskUnknown) {
		t.Errorf("unknown tool risk: got %s, want unknown", rows[0].RiskLevel)
	}
	msg, _ := rows[0].Result["error"].(string)
	if !strings.Contains(msg, "Unknown tool") {
		t.Errorf("unknown tool error: got %q", msg)
	}
	if rows[1].Status != entity.ToolCallExecuted {
		t.Errorf("second row status: got %s, want executed", rows[1].Status)
	}
}

func TestInvokeHighRiskDenied(t *testing.T) {
	executed := false
	f := newInvokerFixture(t,
		toolTurn("deleting everything", "dangerous", map[string]interface{}{}),
		doneTurn("acknowledged the denial"),
	)
	ctx := context.Background()

	mustRegister(t, f.registry, tool.MustNew("dangerous", "dangerous op", objectSchema(nil), tool.RiskHigh,
		func(p map[string]interface{}) (map[string]interface{}, error) {
			executed = true
			return map[string]interface{}{}, nil
		}))
	f.invoker.SetGate(func(ctx context.Context, toolName string, params map[string]interface{}, agentType, projectID, toolCallID string) bool {
		return false
	})

	result := f.invoker.Invoke(ctx, f.request("wipe it"))

	if executed {
		t.Fatal("high-risk callable ran despite gate denial")
	}
	if result.Status != entity.InvocationDone {
		t.Errorf("status: got %s, want done", result.Status)
	}
	rows := f.toolCalls.InOrder()
	if len(rows) != 1 || rows[0].Status != entity.ToolCallDenied {
		t.Fatalf("tool call rows: %+v", rows)
	}
	msg, _ := rows[0].Result["error"].(string)
	if !strings.Contains(msg, "denied by approval gate") {
		t.Errorf("denial error: got %q", msg)
	}
}

func TestInvokeHighRiskApproved(t *testing.T) {
	executed := false
	f := newInvokerFixture(t,
		toolTurn("going ahead", "dangerous", map[string]interface{}{}),
		doneTurn("done"),
	)
	mustRegister(t, f.registry, tool.MustNew("dangerous", "dangerous op", objectSchema(nil), tool.RiskHigh,
		func(p map[string]interface{}) (map[string]interface{}, error) {
			executed = true
			return map[string]interface{}{"ok": true}, nil
		}))
	f.invoker.SetGate(func(ctx context.Context, toolName string, params map[string]interface{}, agentType, projectID, toolCallID string) bool {
		return true
	})

	result := f.invoker.Invoke(context.Background(), f.request("go"))

	if !executed {
		t.Fatal("approved callable did not run")
	}
	rows := f.toolCalls.InOrder()
	if rows[0].Status != entity.ToolCallExecuted {
		t.Errorf("row status: got %s, want executed", rows[0].Status)
	}
	if result.Status != entity.InvocationDone {
		t.Errorf("status: got %s", result.Status)
	}
}

func TestInvokeMediumRiskGatedWhenConfigured(t *testing.T) {
	executed := false
	f := newInvokerFixture(t,
		toolTurn("editing", "editor", map[string]interface{}{}),
		doneTurn("stopped"),
	)
	mustRegister(t, f.registry, tool.MustNew("editor", "edits things", objectSchema(nil), tool.RiskMedium,
		func(p map[string]interface{}) (map[string]interface{}, error) {
			executed = true
			return map[string]interface{}{}, nil
		}))
	f.invoker.SetGate(func(ctx context.Context, toolName string, params map[string]interface{}, agentType, projectID, toolCallID string) bool {
		return false
	})

	req := f.request("edit")
	req.ApprovalFor = []string{"high", "medium"}
	result := f.invoker.Invoke(context.Background(), req)

	if executed {
		t.Fatal("medium-risk callable ran despite configured gating")
	}
	if rows := f.toolCalls.InOrder(); rows[0].Status != entity.ToolCallDenied {
		t.Errorf("row status: got %s, want denied", rows[0].Status)
	}
	if result.Status != entity.InvocationDone {
		t.Errorf("status: got %s", result.Status)
	}
}

func TestInvokeToolExecutionError(t *testing.T) {
	f := newInvokerFixture(t,
		toolTurn("attempt", "broken", map[string]interface{}{}),
		doneTurn("gave up"),
	)
	mustRegister(t, f.registry, tool.MustNew("broken", "always errors", objectSchema(nil), tool.RiskLow,
		func(p map[string]interface{}) (map[string]interface{}, error) {
			return nil, errors.New("disk on fire")
		}))

	result := f.invoker.Invoke(context.Background(), f.request("try it"))

	if result.Status != entity.InvocationDone {
		t.Fatalf("status: got %s (tool errors must not fail the invocation)", result.Status)
	}
	rows := f.toolCalls.InOrder()
	if rows[0].Status != entity.ToolCallFailed {
		t.Errorf("row status: got %s, want failed", rows[0].Status)
	}
	if msg, _ := rows[0].Result["error"].(string); msg != "disk on fire" {
		t.Errorf("error: got %q", msg)
	}
}

func TestInvokeValidationErrorFedBack(t *testing.T) {
	f := newInvokerFixture(t,
		toolTurn("bad params", "noop", map[string]interface{}{"unexpected": 1}),
		doneTurn("corrected course"),
	)
	mustRegister(t, f.registry, noopTool(t))

	result := f.invoker.Invoke(context.Background(), f.request("go"))

	if result.Status != entity.InvocationDone {
		t.Fatalf("status: got %s", result.Status)
	}
	// Validation failure is recorded as an executed call whose result carries
	// the error — the callable itself never ran.
	rows := f.toolCalls.InOrder()
	if len(rows) != 1 {
		t.Fatalf("rows: got %d", len(rows))
	}
	msg, _ := rows[0].Result["error"].(string)
	if !strings.Contains(msg, "Parameter validation failed") {
		t.Errorf("result: got %v", rows[0].Result)
	}
}

func TestInvokeIterationCap(t *testing.T) {
	f := newInvokerFixture(t,
		toolTurn("again", "noop", map[string]interface{}{}),
	)
	mustRegister(t, f.registry, noopTool(t))

	req := f.request("loop forever")
	req.MaxIterations = 3
	result := f.invoker.Invoke(context.Background(), req)

	if result.Status != entity.InvocationFailed {
		t.Fatalf("status: got %s, want failed", result.Status)
	}
	if !strings.Contains(result.Response, "Iteration cap reached") {
		t.Errorf("response: got %q", result.Response)
	}
	if len(result.ToolCalls) != 3 {
		t.Errorf("tool calls: got %d, want exactly 3", len(result.ToolCalls))
	}
	if f.llm.extracts != 3 {
		t.Errorf("model turns: got %d, want 3", f.llm.extracts)
	}
}

func TestInvokeContinuationCap(t *testing.T) {
	f := newInvokerFixture(t, scriptTurn{err: ErrResponseTruncated})

	result := f.invoker.Invoke(context.Background(), f.request("long answer"))

	if result.Status != entity.InvocationFailed {
		t.Fatalf("status: got %s, want failed", result.Status)
	}
	if !strings.Contains(result.Response, "truncated") {
		t.Errorf("response: got %q", result.Response)
	}
	// Exactly maxContinuations+1 attempts for the single iteration.
	if f.llm.extracts != defaultMaxContinuations+1 {
		t.Errorf("model attempts: got %d, want %d", f.llm.extracts, defaultMaxContinuations+1)
	}
}

func TestInvokeTransportError(t *testing.T) {
	f := newInvokerFixture(t, scriptTurn{err: errors.New("connection refused")})

	result := f.invoker.Invoke(context.Background(), f.request("hi"))

	if result.Status != entity.InvocationFailed {
		t.Fatalf("status: got %s, want failed", result.Status)
	}
	if !strings.Contains(result.Response, "LLM call failed") {
		t.Errorf("response: got %q", result.Response)
	}
	// A transport error is terminal for the iteration: no continuation retries.
	if f.llm.extracts != 1 {
		t.Errorf("model attempts: got %d, want 1", f.llm.extracts)
	}
}

func TestInvokeSanitizerApplied(t *testing.T) {
	f := newInvokerFixture(t,
		toolTurn("leaky", "leaky", map[string]interface{}{}),
		doneTurn("done"),
	)
	mustRegister(t, f.registry, tool.MustNew("leaky", "leaks a secret", objectSchema(nil), tool.RiskLow,
		func(p map[string]interface{}) (map[string]interface{}, error) {
			return map[string]interface{}{"output": "token=sk-aaaaaaaaaaaaaaaa"}, nil
		}))
	f.invoker.SetSanitizer(func(result map[string]interface{}) map[string]interface{} {
		return map[string]interface{}{"output": "[MASKED]"}
	})

	result := f.invoker.Invoke(context.Background(), f.request("leak"))

	if got := result.ToolCalls[0].Result["output"]; got != "[MASKED]" {
		t.Errorf("sanitized output: got %v", got)
	}
}

// === helpers ===

func mustRegister(t *testing.T, r *tool.Registry, tl *tool.Tool) {
	t.Helper()
	if err := r.Register(tl); err != nil {
		t.Fatalf("Register %s: %v", tl.Name, err)
	}
}

func noopTool(t *testing.T) *tool.Tool {
	t.Helper()
	return tool.MustNew("noop", "does nothing", objectSchema(nil), tool.RiskLow,
		func(p map[string]interface{}) (map[string]interface{}, error) {
			return map[string]interface{}{"ok": true}, nil
		})
}

func objectSchema(props map[string]interface{}, required ...string) map[string]interface{} {
	if props == nil {
		props = map[string]interface{}{}
	}
	schema := map[string]interface{}{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
