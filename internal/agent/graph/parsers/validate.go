package parsers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ranops-core/server/internal/agent/model"
)

// ValidateToolCalls is the second, independent validation stage: it checks
// each repaired call against the registry and the object-shape requirement
// for arguments. Errors accumulate as one human-readable string per failing
// call; they feed the bounded retry sub-flow instead of failing the turn.
func ValidateToolCalls(calls []model.ToolCall, registry *model.Registry) []string {
	var errs []string
	for _, call := range calls {
		name := strings.TrimSpace(call.Name)
		if name == "" {
			errs = append(errs, "tool call is missing a name")
			continue
		}
		if !registry.Has(name) {
			errs = append(errs, fmt.Sprintf(
				"Tool '%s' does not exist. Available tools: [%s]",
				name, strings.Join(registry.Names(), ", ")))
			continue
		}
		if call.Args == nil {
			errs = append(errs, fmt.Sprintf(
				"arguments for tool '%s' do not parse to an object: %s",
				name, safeSnippet(call.RawArgs)))
		}
	}
	return errs
}

// ExampleArguments derives a corrected example payload from a tool's
// argument schema, used in corrective retry messages. Returns "" when no
// schema is available.
func ExampleArguments(schema map[string]any) string {
	if schema == nil {
		return ""
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		return ""
	}
	example := make(map[string]any, len(props))
	for key, raw := range props {
		prop, _ := raw.(map[string]any)
		switch prop["type"] {
		case "number", "integer":
			example[key] = 0
		case "boolean":
			example[key] = false
		case "array":
			example[key] = []any{}
		case "object":
			example[key] = map[string]any{}
		default:
			example[key] = fmt.Sprintf("<%s>", key)
		}
	}
	b, err := json.Marshal(example)
	if err != nil {
		return ""
	}
	return string(b)
}
