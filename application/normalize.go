package application

import (
	"encoding/json"
	"fmt"

	"github.com/felixgeelhaar/fsassist/infrastructure/mcp"
)

// NormalizeResult converts a backend return value into a plain JSON value:
// a map[string]any or a []any. Scalars and non-JSON text are wrapped as
// {"result": v}.
func NormalizeResult(v any) any {
	switch r := v.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return r
	case []any:
		return r
	case json.RawMessage:
		return decodeText(string(r))
	case []byte:
		return decodeText(string(r))
	case *mcp.ToolResult:
		return normalizeToolResult(r)
	case string:
		return decodeText(r)
	case bool, float64, float32, int, int32, int64, uint, uint32, uint64:
		return map[string]any{"result": r}
	default:
		data, err := json.Marshal(r)
		if err != nil {
			return map[string]any{"result": fmt.Sprint(r)}
		}
		return decodeText(string(data))
	}
}

func normalizeToolResult(r *mcp.ToolResult) any {
	if r == nil {
		return map[string]any{}
	}
	if len(r.StructuredContent) > 0 {
		return decodeText(string(r.StructuredContent))
	}
	switch len(r.Content) {
	case 0:
		return map[string]any{}
	case 1:
		return decodeText(r.Content[0].Text)
	}
	items := make([]any, 0, len(r.Content))
	for _, c := range r.Content {
		items = append(items, decodeText(c.Text))
	}
	return items
}

// decodeText decodes s when it is JSON. Anything else is wrapped.
func decodeText(s string) any {
	if !json.Valid([]byte(s)) {
		return map[string]any{"result": s}
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return map[string]any{"result": s}
	}
	switch d := v.(type) {
	case nil:
		return map[string]any{}
	case map[string]any, []any:
		return d
	default:
		return map[string]any{"result": d}
	}
}
