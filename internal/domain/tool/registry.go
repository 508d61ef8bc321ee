package tool

import (
	"fmt"
)

// Registry 工具注册表
//
// Built once at startup and immutable afterwards. Registration order is
// preserved so the tool catalogue in the prompt is stable across runs.
type Registry struct {
	tools map[string]*Tool
	order []string
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]*Tool),
	}
}

// Register 注册工具; 重名返回错误
func (r *Registry) Register(t *Tool) error {
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool already registered: %q", t.Name)
	}
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// Get 获取工具
func (r *Registry) Get(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Has 检查工具是否存在
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// All 按注册顺序返回全部工具
func (r *Registry) All() []*Tool {
	out := make([]*Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// SchemaForAgent returns the tool catalogue injected into the system prompt.
func (r *Registry) SchemaForAgent() []Definition {
	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, Definition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Schema,
			RiskLevel:   string(t.RiskLevel),
		})
	}
	return defs
}

// Filtered returns a registry scoped to the allowed tool names.
// A single "*" entry allows everything. Names not present in the registry
// are skipped silently — config may list tools before they are implemented.
func (r *Registry) Filtered(allowed []string) *Registry {
	for _, name := range allowed {
		if name == "*" {
			return r
		}
	}
	filtered := NewRegistry()
	for _, name := range allowed {
		if t, ok := r.tools[name]; ok {
			_ = filtered.Register(t)
		}
	}
	return filtered
}
