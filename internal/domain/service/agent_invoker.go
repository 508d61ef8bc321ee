package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/germinal-ai/germinal/internal/domain/entity"
	"github.com/germinal-ai/germinal/internal/domain/repository"
	"github.com/germinal-ai/germinal/internal/domain/tool"
)

// Iteration cap prevents runaway loops. An agent that needs more than this
// for a sensible task is almost certainly stuck.
const DefaultMaxIterations = 100

// Maximum continuation requests after a truncated response before giving up.
// Partial JSON chunks cannot be concatenated into a valid structure, so each
// continuation asks the model to regenerate from scratch.
const defaultMaxContinuations = 5

// GateFunc 审批门回调签名
//
// A nil gate means high-risk tools proceed unguarded — only the production
// supervisor wires a gate in; unit tests may run without one.
type GateFunc func(ctx context.Context, toolName string, parameters map[string]interface{}, agentType, projectID, toolCallID string) bool

// SanitizeFunc 工具输出净化回调 (security pipeline)
type SanitizeFunc func(result map[string]interface{}) map[string]interface{}

// InvokeRequest 一次 agent 调用的输入
type InvokeRequest struct {
	Task          string
	AgentType     string
	Model         string
	MaxTokens     int
	ProjectID     string // "" = no project binding
	EventID       string
	MaxIterations int
	Registry      *tool.Registry

	// ApprovalFor lists the risk levels that must pass the approval gate.
	// Empty means the default: high only.
	ApprovalFor []string
}

func (r InvokeRequest) needsApproval(risk tool.RiskLevel) bool {
	levels := r.ApprovalFor
	if len(levels) == 0 {
		levels = []string{string(tool.RiskHigh)}
	}
	for _, level := range levels {
		if level == string(risk) {
			return true
		}
	}
	return false
}

// Step 每次工具调用前的推理片段
//
// Captured so UIs can show what the agent was thinking while it worked,
// not only the final answer.
type Step struct {
	Reasoning  string                 `json:"reasoning"`
	Tool       string                 `json:"tool"`
	Parameters map[string]interface{} `json:"parameters"`
}

// ToolCallLog 单次工具调用摘要
type ToolCallLog struct {
	ID         string                 `json:"id"`
	Tool       string                 `json:"tool"`
	Parameters map[string]interface{} `json:"parameters"`
	Result     map[string]interface{} `json:"result"`
}

// InvokeResult 调用结果
type InvokeResult struct {
	InvocationID string                  `json:"invocation_id"`
	Status       entity.InvocationStatus `json:"status"`
	Response     string                  `json:"response"`
	ToolCalls    []ToolCallLog           `json:"tool_calls"`
	Steps        []Step                  `json:"steps"`
}

// AgentInvoker drives one agent invocation to completion: prompt assembly,
// structured model turns, tool dispatch through the registry and the
// approval gate, and finalisation into history and the invocation row.
type AgentInvoker struct {
	llm         LLMClient
	invocations repository.InvocationRepository
	toolCalls   repository.ToolCallRepository
	contextMgr  *ContextManager
	gate        GateFunc
	sanitize    SanitizeFunc
	metrics     MetricsRecorder
	logger      *zap.Logger

	maxContinuations int
	now              func() time.Time
}

// NewAgentInvoker 创建调用引擎
func NewAgentInvoker(
	llm LLMClient,
	invocations repository.InvocationRepository,
	toolCalls repository.ToolCallRepository,
	contextMgr *ContextManager,
	logger *zap.Logger,
) *AgentInvoker {
	return &AgentInvoker{
		llm:              llm,
		invocations:      invocations,
		toolCalls:        toolCalls,
		contextMgr:       contextMgr,
		logger:           logger.With(zap.String("component", "agent-invoker")),
		maxContinuations: defaultMaxContinuations,
		now:              time.Now,
	}
}

// SetGate 安装审批门
func (a *AgentInvoker) SetGate(gate GateFunc) {
	a.gate = gate
}

// SetSanitizer 安装工具输出净化管道
func (a *AgentInvoker) SetSanitizer(fn SanitizeFunc) {
	a.sanitize = fn
}

// SetMetrics 安装指标记录器
func (a *AgentInvoker) SetMetrics(m MetricsRecorder) {
	a.metrics = m
}

// Invoke runs a single agent invocation to completion.
//
// The tool loop is fault tolerant: unknown tools, validation failures,
// approval denials, and tool execution errors are fed back to the model as
// tool results so it can recover or give up cleanly. Only transport errors
// and the truncation/iteration caps terminate the invocation as failed.
func (a *AgentInvoker) Invoke(ctx context.Context, req InvokeRequest) *InvokeResult {
	invocationID := newID("inv")
	startedAt := a.now().UTC()
	maxIterations := req.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	messages := []Message{
		{Role: "system", Content: BuildSystemPrompt(req.Registry.SchemaForAgent())},
	}
	if req.ProjectID != "" {
		if block, err := a.contextMgr.Assemble(ctx, req.ProjectID); err != nil {
			a.logger.Warn("Context assembly failed — continuing without context", zap.Error(err))
		} else if block != "" {
			messages = append(messages, Message{Role: "user", Content: block})
		}
	}
	messages = append(messages, Message{Role: "user", Content: req.Task})

	contextJSON, _ := json.Marshal(messages)
	if err := a.invocations.Insert(ctx, &entity.Invocation{
		ID:        invocationID,
		EventID:   req.EventID,
		AgentType: req.AgentType,
		Model:     req.Model,
		ProjectID: req.ProjectID,
		Context:   string(contextJSON),
		Status:    entity.InvocationRunning,
		StartedAt: startedAt,
	}); err != nil {
		a.logger.Error("Failed to insert invocation row", zap.Error(err))
		return &InvokeResult{
			InvocationID: invocationID,
			Status:       entity.InvocationFailed,
			Response:     "store error: " + err.Error(),
		}
	}

	finalResponse := ""
	status := entity.InvocationFailed
	var steps []Step
	var toolCallsLog []ToolCallLog

	iteration := 0
loop:
	for ; iteration < maxIterations; iteration++ {
		a.logger.Info("→ LLM",
			zap.String("agent", req.AgentType),
			zap.String("model", req.Model),
			zap.Int("iter", iteration+1),
			zap.Int("max_iter", maxIterations),
			zap.Int("msgs", len(messages)),
		)

		response, assistantText, err := a.collectFullResponse(ctx, req.Model, messages, req.MaxTokens, iteration)
		switch {
		case err == nil:
		case errors.Is(err, ErrResponseTruncated):
			a.logger.Warn("LLM response truncated — continuation cap exhausted",
				zap.String("agent", req.AgentType),
				zap.Int("iter", iteration+1),
			)
			finalResponse = "Response truncated by model token limit (continuation cap exhausted)."
			break loop
		default:
			a.logger.Error("LLM call failed",
				zap.String("agent", req.AgentType),
				zap.Int("iter", iteration+1),
				zap.Error(err),
			)
			finalResponse = fmt.Sprintf("LLM call failed: %v", err)
			break loop
		}

		// Append the re-serialised structured reply so the next prompt has a
		// coherent history matching what the model produced.
		messages = append(messages, Message{Role: "assistant", Content: assistantText})

		if response.ToolCall == nil {
			// No tool call — the agent declares the work complete. The
			// orchestrator has no independent view of whether it actually is;
			// it trusts tool_call=null.
			finalResponse = response.Reasoning
			status = entity.InvocationDone
			break
		}

		steps = append(steps, Step{
			Reasoning:  response.Reasoning,
			Tool:       response.ToolCall.Tool,
			Parameters: response.ToolCall.Parameters,
		})

		tcID := newID("tc")
		result := a.runTool(ctx, tcID, invocationID, req, response.ToolCall)
		toolCallsLog = append(toolCallsLog, ToolCallLog{
			ID:         tcID,
			Tool:       response.ToolCall.Tool,
			Parameters: response.ToolCall.Parameters,
			Result:     result,
		})

		// Feed the tool result back so the agent can reason about it before
		// deciding what to do next.
		resultJSON, _ := json.MarshalIndent(result, "", "  ")
		messages = append(messages, Message{
			Role:    "user",
			Content: "<tool_result>\n" + string(resultJSON) + "\n</tool_result>",
		})
	}
	if iteration == maxIterations {
		finalResponse = "Iteration cap reached without task completion."
		status = entity.InvocationFailed
	}

	// Persist the task and response to history so the next invocation sees
	// what happened, then compact if the buffer overflowed. Done here rather
	// than in the supervisor so it also runs for REPL and one-shot calls.
	if req.ProjectID != "" {
		if err := a.contextMgr.Append(ctx, req.ProjectID, entity.RoleUser, req.Task); err != nil {
			a.logger.Error("Failed to append user history", zap.Error(err))
		}
		if err := a.contextMgr.Append(ctx, req.ProjectID, entity.RoleAgent, finalResponse); err != nil {
			a.logger.Error("Failed to append agent history", zap.Error(err))
		}
		if err := a.contextMgr.MaybeSummarise(ctx, req.ProjectID, req.Model); err != nil {
			a.logger.Error("History compaction failed", zap.Error(err))
		}
	}

	logJSON, _ := json.Marshal(toolCallsLog)
	if err := a.invocations.Finish(ctx, invocationID, finalResponse, string(logJSON), status, a.now().UTC()); err != nil {
		a.logger.Error("Failed to finish invocation row", zap.Error(err))
	}
	if a.metrics != nil {
		a.metrics.RecordInvocation(status == entity.InvocationFailed)
	}

	return &InvokeResult{
		InvocationID: invocationID,
		Status:       status,
		Response:     finalResponse,
		ToolCalls:    toolCallsLog,
		Steps:        steps,
	}
}

// collectFullResponse drives one model turn, retrying with a continuation
// prompt while the transport reports truncation.
//
// Continuation turns stay in a LOCAL copy of the message list — the caller's
// history is untouched. The partial output is discarded each time because a
// JSON chunk boundary can land anywhere inside the object; the model is
// asked to regenerate from the beginning instead.
//
// Exhausting the cap re-raises ErrResponseTruncated so Invoke can mark the
// invocation failed. Validation retries happen one layer down, inside
// LLMClient.Extract.
func (a *AgentInvoker) collectFullResponse(ctx context.Context, model string, messages []Message, maxTokens, iteration int) (*AgentResponse, string, error) {
	local := make([]Message, len(messages))
	copy(local, messages)

	for attempt := 0; ; attempt++ {
		if a.metrics != nil {
			a.metrics.RecordModelCall()
		}
		response, assistantText, err := a.llm.Extract(ctx, model, local, maxTokens)
		if err == nil {
			return response, assistantText, nil
		}
		if !errors.Is(err, ErrResponseTruncated) {
			return nil, "", err
		}
		if attempt >= a.maxContinuations {
			a.logger.Warn("Continuation cap reached — response still truncated",
				zap.Int("iter", iteration+1),
				zap.Int("cap", a.maxContinuations),
			)
			return nil, "", err
		}
		a.logger.Warn("Response truncated — requesting regeneration",
			zap.Int("iter", iteration+1),
			zap.Int("continuation", attempt+1),
			zap.Int("cap", a.maxContinuations),
		)
		local = append(local, Message{
			Role: "user",
			Content: "[CONTINUE] Your previous JSON response was cut off by the " +
				"token limit. Please regenerate your complete response from " +
				"the beginning.",
		})
	}
}

// runTool resolves, gates, executes, and records a single tool call.
//
// The pending row is inserted before execution so there is always a record,
// even if execution crashes the process.
func (a *AgentInvoker) runTool(ctx context.Context, tcID, invocationID string, req InvokeRequest, call *ToolCallRequest) map[string]interface{} {
	createdAt := a.now().UTC()
	params := call.Parameters
	if params == nil {
		params = map[string]interface{}{}
	}

	t, known := req.Registry.Get(call.Tool)
	risk := tool.RiskUnknown
	if known {
		risk = t.RiskLevel
	}

	row := &entity.ToolCall{
		ID:           tcID,
		InvocationID: invocationID,
		ToolName:     call.Tool,
		Parameters:   params,
		RiskLevel:    string(risk),
		Status:       entity.ToolCallPending,
		CreatedAt:    createdAt,
	}

	if !known {
		result := map[string]interface{}{"error": fmt.Sprintf("Unknown tool: %q", call.Tool)}
		row.Status = entity.ToolCallFailed
		row.Result = result
		now := a.now().UTC()
		row.ExecutedAt = &now
		if err := a.toolCalls.Insert(ctx, row); err != nil {
			a.logger.Error("Failed to record unknown-tool call", zap.Error(err))
		}
		if a.metrics != nil {
			a.metrics.RecordToolCall(false)
		}
		return result
	}

	if err := a.toolCalls.Insert(ctx, row); err != nil {
		a.logger.Error("Failed to record pending tool call", zap.Error(err))
	}

	// Risky tools require explicit human approval before execution. Which
	// risk levels count is per-agent config; high always does by default.
	if a.gate != nil && req.needsApproval(risk) {
		if !a.gate(ctx, call.Tool, params, req.AgentType, req.ProjectID, tcID) {
			result := map[string]interface{}{
				"error": fmt.Sprintf("Tool call %q denied by approval gate.", call.Tool),
			}
			a.finishToolCall(ctx, tcID, result, entity.ToolCallDenied)
			if a.metrics != nil {
				a.metrics.RecordToolCall(false)
			}
			return result
		}
	}

	result, err := t.Execute(params)
	if err != nil {
		result = map[string]interface{}{"error": err.Error()}
		a.finishToolCall(ctx, tcID, result, entity.ToolCallFailed)
		if a.metrics != nil {
			a.metrics.RecordToolCall(false)
		}
		return result
	}
	if result == nil {
		result = map[string]interface{}{}
	}
	if a.sanitize != nil {
		result = a.sanitize(result)
	}
	a.finishToolCall(ctx, tcID, result, entity.ToolCallExecuted)
	if a.metrics != nil {
		a.metrics.RecordToolCall(true)
	}
	return result
}

func (a *AgentInvoker) finishToolCall(ctx context.Context, tcID string, result map[string]interface{}, status entity.ToolCallStatus) {
	if err := a.toolCalls.UpdateResult(ctx, tcID, result, status, a.now().UTC()); err != nil {
		a.logger.Error("Failed to update tool call row", zap.Error(err))
	}
}

func newID(prefix string) string {
	return prefix + "_" + shortID()
}
