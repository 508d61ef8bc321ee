package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/germinal-ai/germinal/internal/domain/entity"
	"github.com/germinal-ai/germinal/internal/domain/service"
)

// OpenAIHandler implements the OpenAI Chat Completions compatible surface.
//
// A request becomes an event on the queue; the handler then blocks on the
// event's completion handle. Conversation continuity comes from the
// orchestrator's own project context — the client's message history is
// deliberately ignored except for the last user turn.
type OpenAIHandler struct {
	queue   *service.EventQueue
	waiters *service.Waiters
	logger  *zap.Logger

	// The single advertised model name. Clients must send it (the protocol
	// requires a model field) but the value never influences routing — the
	// orchestrator chooses agent and model.
	modelName        string
	defaultAgentType string
	defaultProjectID string
	requestTimeout   time.Duration
}

// OpenAIHandlerConfig 处理器配置
type OpenAIHandlerConfig struct {
	ModelName        string
	DefaultAgentType string
	DefaultProjectID string
	RequestTimeout   time.Duration
}

// OpenAI API types

// ChatCompletionRequest mirrors OpenAI's request format
type ChatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream,omitempty"`
}

// ChatMessage represents a message in the conversation
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionResponse mirrors OpenAI's response format
type ChatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   ChatUsage    `json:"usage"`
}

// ChatChoice represents a completion choice
type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// ChatUsage represents token usage. The orchestrator does not track token
// counts; zeros are reported and clients treat them as informational.
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatStreamChunk represents a streaming chunk
type ChatStreamChunk struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []ChatStreamChoice `json:"choices"`
}

// ChatStreamChoice represents a streaming choice delta
type ChatStreamChoice struct {
	Index        int             `json:"index"`
	Delta        ChatStreamDelta `json:"delta"`
	FinishReason *string         `json:"finish_reason"`
}

// ChatStreamDelta represents the delta in a streaming choice
type ChatStreamDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// OpenAIModel represents a model in the /v1/models response
type OpenAIModel struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// NewOpenAIHandler creates the OpenAI-compatible handler.
func NewOpenAIHandler(queue *service.EventQueue, waiters *service.Waiters, cfg OpenAIHandlerConfig, logger *zap.Logger) *OpenAIHandler {
	if cfg.ModelName == "" {
		cfg.ModelName = "orchestrator"
	}
	if cfg.DefaultAgentType == "" {
		cfg.DefaultAgentType = "task_agent"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 300 * time.Second
	}
	return &OpenAIHandler{
		queue:            queue,
		waiters:          waiters,
		logger:           logger.With(zap.String("component", "openai-handler")),
		modelName:        cfg.ModelName,
		defaultAgentType: cfg.DefaultAgentType,
		defaultProjectID: cfg.DefaultProjectID,
		requestTimeout:   cfg.RequestTimeout,
	}
}

// ChatCompletions handles POST /v1/chat/completions
func (h *OpenAIHandler) ChatCompletions(c *gin.Context) {
	var req ChatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid JSON body: "+err.Error(), "invalid_request_error"))
		return
	}

	task := lastUserMessage(req.Messages)
	if task == "" {
		c.JSON(http.StatusBadRequest, errorBody("No user message found in messages array.", "invalid_request_error"))
		return
	}

	// The unique per-request timestamp keeps identical messages sent twice
	// within the same hour from deduplicating into one event.
	eventID, err := h.queue.Push(c.Request.Context(), "http", "message", map[string]interface{}{
		"message":    task,
		"agent_type": h.defaultAgentType,
		"project_id": h.defaultProjectID,
		"_ts":        time.Now().UnixMilli(),
	}, h.defaultProjectID, 3)
	if err != nil {
		h.logger.Error("Failed to enqueue HTTP event", zap.Error(err))
		c.JSON(http.StatusOK, h.completionBody("inv_unavailable", "The orchestrator could not accept the request: "+err.Error(), "length"))
		return
	}

	handle := h.waiters.Register(eventID)
	h.logger.Info("Chat completion queued",
		zap.String("event_id", eventID),
		zap.Bool("stream", req.Stream),
	)

	var result *service.InvokeResult
	select {
	case result = <-handle:
	case <-time.After(h.requestTimeout):
		// The event stays in the queue and will still be processed; its
		// eventual completion resolves into a removed waiter (a no-op).
		h.waiters.Cancel(eventID)
		c.JSON(http.StatusGatewayTimeout, errorBody(
			fmt.Sprintf("Agent did not respond within %s. The event remains queued and will still be processed.", h.requestTimeout),
			"timeout",
		))
		return
	}

	text := buildResponseText(result)
	finishReason := "length"
	if result.Status == entity.InvocationDone {
		finishReason = "stop"
	}
	completionID := "chatcmpl-" + result.InvocationID

	if req.Stream {
		h.streamResponse(c, completionID, text, finishReason)
		return
	}
	c.JSON(http.StatusOK, ChatCompletionResponse{
		ID:      completionID,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   h.modelName,
		Choices: []ChatChoice{{
			Index:        0,
			Message:      ChatMessage{Role: "assistant", Content: text},
			FinishReason: finishReason,
		}},
	})
}

// streamResponse writes the completed response as a minimal SSE stream:
// role announcement, the full content as one delta, a terminal delta with
// the finish reason, then [DONE]. Real token streaming would need the
// invocation pipeline restructured; this satisfies stream:true clients.
func (h *OpenAIHandler) streamResponse(c *gin.Context, completionID, text, finishReason string) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	created := time.Now().Unix()

	h.writeSSEChunk(c.Writer, ChatStreamChunk{
		ID: completionID, Object: "chat.completion.chunk", Created: created, Model: h.modelName,
		Choices: []ChatStreamChoice{{Index: 0, Delta: ChatStreamDelta{Role: "assistant"}}},
	})
	h.writeSSEChunk(c.Writer, ChatStreamChunk{
		ID: completionID, Object: "chat.completion.chunk", Created: created, Model: h.modelName,
		Choices: []ChatStreamChoice{{Index: 0, Delta: ChatStreamDelta{Content: text}}},
	})
	h.writeSSEChunk(c.Writer, ChatStreamChunk{
		ID: completionID, Object: "chat.completion.chunk", Created: created, Model: h.modelName,
		Choices: []ChatStreamChoice{{Index: 0, Delta: ChatStreamDelta{}, FinishReason: &finishReason}},
	})
	_, _ = io.WriteString(c.Writer, "data: [DONE]\n\n")
	c.Writer.Flush()
}

// ListModels handles GET /v1/models
func (h *OpenAIHandler) ListModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data": []OpenAIModel{{
			ID:      h.modelName,
			Object:  "model",
			Created: 0,
			OwnedBy: "orchestrator",
		}},
	})
}

func (h *OpenAIHandler) completionBody(invocationID, text, finishReason string) ChatCompletionResponse {
	return ChatCompletionResponse{
		ID:      "chatcmpl-" + invocationID,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   h.modelName,
		Choices: []ChatChoice{{
			Index:        0,
			Message:      ChatMessage{Role: "assistant", Content: text},
			FinishReason: finishReason,
		}},
	}
}

func (h *OpenAIHandler) writeSSEChunk(w gin.ResponseWriter, chunk ChatStreamChunk) {
	data, err := json.Marshal(chunk)
	if err != nil {
		h.logger.Error("Failed to marshal SSE chunk", zap.Error(err))
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	w.Flush()
}

func errorBody(message, errType string) gin.H {
	return gin.H{"error": gin.H{"message": message, "type": errType}}
}

// lastUserMessage returns the content of the last role=="user" message.
func lastUserMessage(messages []ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

// buildResponseText composes the assistant text from an invocation result.
// Intermediate reasoning steps are prepended so the user sees what the agent
// was thinking while it worked, not just the bare final answer.
func buildResponseText(result *service.InvokeResult) string {
	if len(result.Steps) == 0 {
		return result.Response
	}
	var parts []string
	for _, step := range result.Steps {
		if r := strings.TrimSpace(step.Reasoning); r != "" {
			parts = append(parts, r)
		}
		params := "{}"
		if len(step.Parameters) > 0 {
			if raw, err := json.Marshal(step.Parameters); err == nil {
				params = string(raw)
			}
		}
		parts = append(parts, fmt.Sprintf("[Tool: %s | Parameters: %s]", step.Tool, params))
	}
	if result.Response != "" {
		parts = append(parts, result.Response)
	}
	return strings.Join(parts, "\n\n")
}
