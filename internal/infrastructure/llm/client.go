package llm

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/germinal-ai/germinal/internal/domain/service"
)

// How many times a response that fails to parse as AgentResponse is
// re-prompted with the validation error before Extract gives up. Each retry
// feeds the error back so the model can correct its output.
const defaultMaxValidationRetries = 3

// ModelEndpoint 单个模型的接入配置
type ModelEndpoint struct {
	Model   string // model identifier sent on the wire
	BaseURL string // "" = https://api.openai.com/v1
	APIKey  string // resolved credential (env var already read)
}

// Config LLM 客户端配置
type Config struct {
	Endpoints            []ModelEndpoint
	MaxValidationRetries int
}

// Client is an OpenAI-compatible chat-completions client.
//
// Extract runs in JSON mode and owns validation-retry; truncation
// (finish_reason = "length") surfaces as service.ErrResponseTruncated so the
// engine can drive its continuation protocol. Compatible with OpenAI,
// Ollama, vLLM, and the other OpenAI-style providers.
type Client struct {
	endpoints            map[string]ModelEndpoint
	client               *http.Client
	logger               *zap.Logger
	maxValidationRetries int
}

// Compile-time interface check
var _ service.LLMClient = (*Client)(nil)

// NewClient 创建 LLM 客户端
func NewClient(cfg Config, logger *zap.Logger) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: 300 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   5,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}

	retries := cfg.MaxValidationRetries
	if retries <= 0 {
		retries = defaultMaxValidationRetries
	}

	endpoints := make(map[string]ModelEndpoint, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		endpoints[ep.Model] = ep
	}

	return &Client{
		endpoints:            endpoints,
		client:               &http.Client{Transport: transport},
		logger:               logger.With(zap.String("component", "llm-client")),
		maxValidationRetries: retries,
	}
}

// Extract drives one structured model turn in JSON mode.
//
// On a parse or shape failure the raw output and the validation error are
// appended to a local copy of the history and the model is re-called, up to
// the retry cap. The returned assistant text is the re-serialised parsed
// structure, not the raw model output — retries may have corrected it.
func (c *Client) Extract(ctx context.Context, model string, messages []service.Message, maxTokens int) (*service.AgentResponse, string, error) {
	local := make([]service.Message, len(messages))
	copy(local, messages)

	var lastErr error
	for attempt := 0; attempt <= c.maxValidationRetries; attempt++ {
		content, finishReason, err := c.chatCompletion(ctx, model, local, maxTokens, true)
		if err != nil {
			return nil, "", err
		}
		if finishReason == "length" {
			return nil, "", service.ErrResponseTruncated
		}

		response, err := parseAgentResponse(content)
		if err == nil {
			assistantText, _ := json.Marshal(response)
			return response, string(assistantText), nil
		}

		lastErr = err
		c.logger.Warn("Structured response failed validation — re-prompting",
			zap.String("model", model),
			zap.Int("attempt", attempt+1),
			zap.Int("cap", c.maxValidationRetries),
			zap.Error(err),
		)
		local = append(local,
			service.Message{Role: "assistant", Content: content},
			service.Message{Role: "user", Content: fmt.Sprintf(
				"Your previous response was not a valid response object: %v. "+
					"Reply again with a single JSON object containing \"reasoning\" "+
					"(string) and \"tool_call\" (object or null).", err)},
		)
	}
	return nil, "", fmt.Errorf("response failed validation after %d retries: %w", c.maxValidationRetries, lastErr)
}

// Complete 单轮纯文本补全 (用于摘要)
func (c *Client) Complete(ctx context.Context, model, prompt string) (string, error) {
	content, _, err := c.chatCompletion(ctx, model, []service.Message{{Role: "user", Content: prompt}}, 0, false)
	return content, err
}

// chatCompletion 发送一次 chat/completions 请求
func (c *Client) chatCompletion(ctx context.Context, model string, messages []service.Message, maxTokens int, jsonMode bool) (content, finishReason string, err error) {
	ep := c.endpoints[model]
	baseURL := strings.TrimRight(ep.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	apiReq := &Request{
		Model:     model,
		MaxTokens: maxTokens,
	}
	if jsonMode {
		apiReq.ResponseFormat = &ResponseFormat{Type: "json_object"}
	}
	for _, msg := range messages {
		apiReq.Messages = append(apiReq.Messages, Message{Role: msg.Role, Content: msg.Content})
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return "", "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if ep.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+ep.APIKey)
	}

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResp Response
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", "", fmt.Errorf("parse response: %w", err)
	}
	if apiResp.Error != nil {
		return "", "", fmt.Errorf("API error: %s", apiResp.Error.Message)
	}
	if len(apiResp.Choices) == 0 {
		return "", "", fmt.Errorf("empty choices in response")
	}

	choice := apiResp.Choices[0]
	c.logger.Debug("← LLM",
		zap.String("model", model),
		zap.String("finish_reason", choice.FinishReason),
		zap.Int("chars", len(choice.Message.Content)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return choice.Message.Content, choice.FinishReason, nil
}

// parseAgentResponse validates the model output against the structured
// response contract: a JSON object with a string "reasoning" and an optional
// "tool_call" that, when present, names a tool.
func parseAgentResponse(content string) (*service.AgentResponse, error) {
	content = stripCodeFence(content)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("not a JSON object: %v", err)
	}
	if _, ok := raw["reasoning"]; !ok {
		return nil, fmt.Errorf("missing required field \"reasoning\"")
	}

	var response service.AgentResponse
	if err := json.Unmarshal([]byte(content), &response); err != nil {
		return nil, fmt.Errorf("invalid response shape: %v", err)
	}
	if response.ToolCall != nil && response.ToolCall.Tool == "" {
		return nil, fmt.Errorf("tool_call present but \"tool\" is empty")
	}
	return &response, nil
}

// stripCodeFence removes a markdown ```json fence some models wrap around
// JSON-mode output despite instructions.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
