package tool

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// RiskLevel 工具风险等级 — 驱动审批策略
type RiskLevel string

const (
	RiskLow     RiskLevel = "low"     // 只读或无副作用操作
	RiskMedium  RiskLevel = "medium"  // 修改文件等可恢复操作
	RiskHigh    RiskLevel = "high"    // 需要人工审批的危险操作
	RiskUnknown RiskLevel = "unknown" // 未注册工具
)

// ExecuteFunc 工具执行回调
type ExecuteFunc func(params map[string]interface{}) (map[string]interface{}, error)

// Tool 工具描述符
//
// The parameter schema is the single source of truth: the raw map is what the
// model sees in the prompt, and the compiled form validates every call before
// the callable runs. Both are built from the same map so they cannot drift.
type Tool struct {
	Name        string
	Description string
	Schema      map[string]interface{} // JSON Schema, serialised into the prompt
	RiskLevel   RiskLevel

	execute  ExecuteFunc
	compiled *jsonschema.Schema
}

// New compiles the parameter schema and returns the tool descriptor.
// Schemas must set additionalProperties:false so that unexpected keys surface
// as validation errors the model can correct on its next turn.
func New(name, description string, schema map[string]interface{}, risk RiskLevel, fn ExecuteFunc) (*Tool, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema for %q: %w", name, err)
	}
	compiled, err := jsonschema.CompileString(name+".schema.json", string(raw))
	if err != nil {
		return nil, fmt.Errorf("compile schema for %q: %w", name, err)
	}
	return &Tool{
		Name:        name,
		Description: description,
		Schema:      schema,
		RiskLevel:   risk,
		execute:     fn,
		compiled:    compiled,
	}, nil
}

// MustNew is New that panics on a bad schema. Tool schemas are static
// literals; a compile failure is a programming error caught at startup.
func MustNew(name, description string, schema map[string]interface{}, risk RiskLevel, fn ExecuteFunc) *Tool {
	t, err := New(name, description, schema, risk, fn)
	if err != nil {
		panic(err)
	}
	return t
}

// Execute validates parameters against the schema, then runs the callable.
//
// A validation failure is returned as an {"error": ...} result with a nil
// error so the agent loop feeds it back to the model as a tool result.
// An error from the callable itself is passed through; the caller converts
// it and records the tool call as failed.
func (t *Tool) Execute(params map[string]interface{}) (map[string]interface{}, error) {
	if params == nil {
		params = map[string]interface{}{}
	}
	if err := t.compiled.Validate(normalise(params)); err != nil {
		return map[string]interface{}{
			"error": fmt.Sprintf("Parameter validation failed: %v", err),
		}, nil
	}
	return t.execute(params)
}

// normalise round-trips params through JSON so validation sees the same value
// shapes (float64 numbers, plain maps) the decoder would produce. Parameters
// built in tests with int literals validate the same way as model output.
func normalise(params map[string]interface{}) interface{} {
	raw, err := json.Marshal(params)
	if err != nil {
		return params
	}
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return params
	}
	return decoded
}

// Definition 传递给模型的工具定义
type Definition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
	RiskLevel   string                 `json:"risk_level"`
}
