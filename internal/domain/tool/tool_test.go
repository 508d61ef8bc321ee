package tool

import (
	"strings"
	"testing"
)

func echoTool(t *testing.T, risk RiskLevel) *Tool {
	t.Helper()
	tl, err := New("echo", "Echo back the message parameter.", map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"message": map[string]interface{}{"type": "string"},
		},
		"required":             []string{"message"},
		"additionalProperties": false,
	}, risk, func(params map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"echo": params["message"]}, nil
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tl
}

// === Tool.Execute ===

func TestToolExecuteValidParams(t *testing.T) {
	tl := echoTool(t, RiskLow)
	result, err := tl.Execute(map[string]interface{}{"message": "hi"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result["echo"] != "hi" {
		t.Errorf("echo: got %v, want %q", result["echo"], "hi")
	}
}

func TestToolExecuteMissingRequired(t *testing.T) {
	tl := echoTool(t, RiskLow)
	result, err := tl.Execute(map[string]interface{}{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	msg, _ := result["error"].(string)
	if !strings.HasPrefix(msg, "Parameter validation failed") {
		t.Errorf("error: got %q, want validation failure", msg)
	}
}

func TestToolExecuteUnknownProperty(t *testing.T) {
	// additionalProperties:false — unexpected keys must be rejected before the
	// callable runs, and surfaced as an error result, not a Go error.
	called := false
	tl, err := New("noop", "noop", map[string]interface{}{
		"type":                 "object",
		"properties":           map[string]interface{}{},
		"additionalProperties": false,
	}, RiskLow, func(params map[string]interface{}) (map[string]interface{}, error) {
		called = true
		return map[string]interface{}{}, nil
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := tl.Execute(map[string]interface{}{"surprise": true})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, ok := result["error"]; !ok {
		t.Fatalf("expected validation error result, got %v", result)
	}
	if called {
		t.Error("callable ran despite validation failure")
	}
}

func TestToolExecuteNilParams(t *testing.T) {
	tl, err := New("noargs", "no args", map[string]interface{}{
		"type":                 "object",
		"properties":           map[string]interface{}{},
		"additionalProperties": false,
	}, RiskLow, func(params map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"ok": true}, nil
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := tl.Execute(nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result["ok"] != true {
		t.Errorf("result: got %v", result)
	}
}

func TestToolExecuteIntegerParam(t *testing.T) {
	// Params built in Go code carry int values; model params arrive as float64.
	// Both must validate against an integer schema.
	tl, err := New("limit", "limit", map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"limit": map[string]interface{}{"type": "integer"},
		},
		"additionalProperties": false,
	}, RiskLow, func(params map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{}, nil
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, v := range []interface{}{3, float64(3)} {
		result, err := tl.Execute(map[string]interface{}{"limit": v})
		if err != nil {
			t.Fatalf("Execute(%T): %v", v, err)
		}
		if msg, ok := result["error"]; ok {
			t.Errorf("Execute(%T): unexpected validation error %v", v, msg)
		}
	}
}

// === Registry ===

func TestRegistryRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(echoTool(t, RiskLow)); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(echoTool(t, RiskLow)); err == nil {
		t.Error("Register: duplicate accepted")
	}
}

func TestRegistrySchemaForAgent(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(echoTool(t, RiskHigh)); err != nil {
		t.Fatalf("Register: %v", err)
	}
	defs := r.SchemaForAgent()
	if len(defs) != 1 {
		t.Fatalf("defs: got %d, want 1", len(defs))
	}
	if defs[0].Name != "echo" || defs[0].RiskLevel != "high" {
		t.Errorf("def: got %+v", defs[0])
	}
	if defs[0].Parameters["additionalProperties"] != false {
		t.Errorf("schema should forbid unknown properties: %v", defs[0].Parameters)
	}
}

func TestRegistryFiltered(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(echoTool(t, RiskLow))

	scoped := r.Filtered([]string{"echo", "not_registered_yet"})
	if !scoped.Has("echo") {
		t.Error("echo missing from filtered registry")
	}
	if scoped.Has("not_registered_yet") {
		t.Error("unregistered tool present in filtered registry")
	}

	wild := r.Filtered([]string{"*"})
	if len(wild.All()) != len(r.All()) {
		t.Errorf("wildcard filter: got %d tools, want %d", len(wild.All()), len(r.All()))
	}
}
