package service

import (
	"testing"

	"github.com/germinal-ai/germinal/internal/domain/entity"
	domainErrors "github.com/germinal-ai/germinal/pkg/errors"
)

func TestRouteUserMessage(t *testing.T) {
	r := NewRouter(DefaultRules())
	decision, err := r.Route(&entity.Event{
		Source:  "user",
		Type:    "message",
		Payload: map[string]interface{}{"message": "check the backlog"},
	})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if decision.AgentType != "task_agent" {
		t.Errorf("agent: got %q, want task_agent", decision.AgentType)
	}
	if decision.ModelKey != "default" {
		t.Errorf("model key: got %q, want default", decision.ModelKey)
	}
	if decision.TaskDescription != "check the backlog" {
		t.Errorf("task: got %q", decision.TaskDescription)
	}
}

func TestRouteHTTPMessage(t *testing.T) {
	r := NewRouter(DefaultRules())
	decision, err := r.Route(&entity.Event{
		Source:  "http",
		Type:    "message",
		Payload: map[string]interface{}{"message": "hello", "agent_type": "task_agent"},
	})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if decision.TaskDescription != "hello" {
		t.Errorf("task: got %q, want %q", decision.TaskDescription, "hello")
	}
}

func TestRouteTimerTickUnroutable(t *testing.T) {
	// Timer ticks deliberately match no rule in the live set; the supervisor
	// marks them failed. This is a decision, not an oversight.
	r := NewRouter(DefaultRules())
	_, err := r.Route(&entity.Event{Source: "timer", Type: "tick", Payload: map[string]interface{}{}})
	if err == nil {
		t.Fatal("expected unroutable error")
	}
	if !domainErrors.IsUnroutable(err) {
		t.Errorf("error kind: got %v", err)
	}
}

func TestRouteIsPure(t *testing.T) {
	r := NewRouter(DefaultRules())
	event := &entity.Event{
		Source:  "user",
		Type:    "message",
		Payload: map[string]interface{}{"message": "same"},
	}
	first, err := r.Route(event)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	second, err := r.Route(event)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if *first != *second {
		t.Errorf("router not pure: %+v vs %+v", first, second)
	}
}

func TestRouteFirstMatchWins(t *testing.T) {
	rules := []RoutingRule{
		{Source: "user", Type: "message", AgentType: "first", ModelKey: "default", TaskTemplate: "a"},
		{Source: "user", AgentType: "second", ModelKey: "default", TaskTemplate: "b"},
	}
	r := NewRouter(rules)
	decision, err := r.Route(&entity.Event{Source: "user", Type: "message"})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if decision.AgentType != "first" {
		t.Errorf("agent: got %q, want first", decision.AgentType)
	}
}

func TestRouteWildcardGuards(t *testing.T) {
	rules := []RoutingRule{
		{AgentType: "catchall", ModelKey: "default", TaskTemplate: "anything"},
	}
	r := NewRouter(rules)
	decision, err := r.Route(&entity.Event{Source: "whatever", Type: "odd"})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if decision.AgentType != "catchall" {
		t.Errorf("agent: got %q", decision.AgentType)
	}
}

func TestRenderTemplate(t *testing.T) {
	tests := []struct {
		name     string
		template string
		payload  map[string]interface{}
		want     string
	}{
		{"simple", "{payload[message]}", map[string]interface{}{"message": "hi"}, "hi"},
		{"embedded", "run: {payload[cmd]} now", map[string]interface{}{"cmd": "ls"}, "run: ls now"},
		{"missing key left literal", "{payload[absent]}", map[string]interface{}{}, "{payload[absent]}"},
		{"non-string value", "{payload[n]}", map[string]interface{}{"n": float64(7)}, "7"},
		{"no references", "static task", map[string]interface{}{"message": "x"}, "static task"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := renderTemplate(tt.template, tt.payload)
			if got != tt.want {
				t.Errorf("renderTemplate: got %q, want %q", got, tt.want)
			}
		})
	}
}
