package driver

import "context"

// Tool is something an agent may invoke during ExecuteAgentic, adapted from
// graph/tool/tool.go, extended with the description/schema a ToolSpec needs
// to advertise the tool to a model.
type Tool interface {
	Name() string
	Description() string
	Schema() map[string]interface{}
	Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)
}

// ToolRegistry resolves a tool by name for one ExecuteAgentic call. Only
// tools named in the allowedTools argument are exposed to the model.
type ToolRegistry map[string]Tool

func (r ToolRegistry) specs(allowed []string) []ToolSpec {
	if len(allowed) == 0 {
		return nil
	}
	specs := make([]ToolSpec, 0, len(allowed))
	for _, name := range allowed {
		if t, ok := r[name]; ok {
			specs = append(specs, ToolSpec{Name: t.Name(), Description: t.Description(), Schema: t.Schema()})
		}
	}
	return specs
}
