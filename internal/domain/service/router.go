package service

import (
	"fmt"
	"regexp"

	"github.com/germinal-ai/germinal/internal/domain/entity"
	domainErrors "github.com/germinal-ai/germinal/pkg/errors"
)

// RoutingRule 路由规则
//
// Source/Type empty means "match any". Rules are evaluated in list order;
// the first full match wins.
type RoutingRule struct {
	Source       string
	Type         string
	AgentType    string
	ModelKey     string // key into models.categories, or "default"
	TaskTemplate string // supports {payload[key]} references only
}

// RoutingDecision 路由结果
type RoutingDecision struct {
	AgentType       string
	ModelKey        string
	TaskDescription string
}

// Router maps an event to (agent type, model key, task description).
// It is a pure function of the event and the rule list: equal inputs
// produce equal outputs, and routing never touches the store.
type Router struct {
	rules []RoutingRule
}

// NewRouter 创建路由器
func NewRouter(rules []RoutingRule) *Router {
	return &Router{rules: rules}
}

// DefaultRules is the live rule set.
//
// Timer ticks deliberately match no rule: the supervisor marks them failed.
// Whether ticks should route to a lightweight maintenance agent is an open
// product question — do not add a rule for them without deciding it.
func DefaultRules() []RoutingRule {
	return []RoutingRule{
		{
			Source:       "user",
			Type:         "message",
			AgentType:    "task_agent",
			ModelKey:     "default",
			TaskTemplate: "{payload[message]}",
		},
		{
			// Events injected by the HTTP adapter. Agent type and model are
			// chosen by the orchestrator, never by the client.
			Source:       "http",
			Type:         "message",
			AgentType:    "task_agent",
			ModelKey:     "default",
			TaskTemplate: "{payload[message]}",
		},
	}
}

// Route matches the event against the rule list.
// Returns an UNROUTABLE AppError when no rule matches so the caller can mark
// the event failed without crashing the loop.
func (r *Router) Route(event *entity.Event) (*RoutingDecision, error) {
	for _, rule := range r.rules {
		if rule.Source != "" && rule.Source != event.Source {
			continue
		}
		if rule.Type != "" && rule.Type != event.Type {
			continue
		}
		return &RoutingDecision{
			AgentType:       rule.AgentType,
			ModelKey:        rule.ModelKey,
			TaskDescription: renderTemplate(rule.TaskTemplate, event.Payload),
		}, nil
	}
	return nil, domainErrors.NewUnroutableError(
		fmt.Sprintf("no routing rule matched event source=%q type=%q", event.Source, event.Type),
	)
}

var templateRef = regexp.MustCompile(`\{payload\[(\w+)\]\}`)

// renderTemplate expands {payload[key]} references in the task template.
//
// Manual substitution rather than text/template keeps payload content from
// being interpreted as template syntax. Unresolvable references are left
// as-is; the agent sees the literal placeholder.
func renderTemplate(template string, payload map[string]interface{}) string {
	return templateRef.ReplaceAllStringFunc(template, func(match string) string {
		key := templateRef.FindStringSubmatch(match)[1]
		if v, ok := payload[key]; ok {
			return fmt.Sprintf("%v", v)
		}
		return match
	})
}
