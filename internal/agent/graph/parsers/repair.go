package parsers

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ranops-core/server/internal/agent/model"
	logx "github.com/ranops-core/server/pkg/logger"
)

// basic safety limits to avoid pathological inputs
const (
	maxArgsLen    = 64 * 1024 // 64KB per argument payload
	maxErrSnippet = 200       // limit error snippet size
)

// RawToolCall is the provider-specific encoding of a tool call before
// repair: the arguments are an opaque JSON-encoded string.
type RawToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// RepairToolCall converts a raw call record into a normalized ToolCall,
// tolerating the malformed-JSON patterns small models commonly emit. It
// never fails hard: when no repair yields valid JSON, the original string is
// kept in RawArgs and a validation error describes the failure, so the call
// is still attempted rather than silently dropped.
func RepairToolCall(raw RawToolCall) (model.ToolCall, []string) {
	call := model.ToolCall{
		ID:   raw.ID,
		Name: raw.Name,
		Kind: model.ToolCallKind,
	}
	if call.ID == "" {
		call.ID = model.NewID()
	}

	args, errs := RepairArguments(raw.Arguments)
	if args != nil {
		call.Args = args
		return call, nil
	}
	call.RawArgs = raw.Arguments
	return call, errs
}

// repairPass is one syntactic repair attempt. Each pass is independently
// idempotent: applying it to an already-repaired string is a no-op.
type repairPass struct {
	name  string
	apply func(string) string
}

var repairPasses = []repairPass{
	{"truncate_concatenated_objects", truncateConcatenated},
	{"normalize_single_quotes", normalizeSingleQuotes},
	{"remove_trailing_commas", removeTrailingCommas},
	{"close_unbalanced", closeUnbalanced},
	{"close_truncated_value", closeTruncatedValue},
	{"collapse_doubled_quotes", collapseDoubledQuotes},
	{"quote_bare_keys", quoteBareKeys},
	{"fill_missing_values", fillMissingValues},
}

// RepairArguments parses an argument string, applying the repair ladder in
// order when the direct parse fails. It returns the parsed mapping, or nil
// plus the accumulated error descriptions when unrecoverable. It never
// panics regardless of input.
func RepairArguments(arguments string) (out map[string]any, errs []string) {
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "tool_call_repair").Msgf("panic recovered: %v", r)
			out = nil
			errs = append(errs, fmt.Sprintf("argument repair panicked on input %q", safeSnippet(arguments)))
		}
	}()

	s := strings.TrimSpace(arguments)
	if s == "" {
		return map[string]any{}, nil
	}
	if len(s) > maxArgsLen {
		return nil, []string{fmt.Sprintf("arguments exceed %d bytes", maxArgsLen)}
	}

	if m, ok := tryParse(s); ok {
		return m, nil
	}

	candidate := s
	for _, pass := range repairPasses {
		repaired := pass.apply(candidate)
		if repaired == candidate {
			continue
		}
		logx.Debug().
			Str("component", "tool_call_repair").
			Str("pass", pass.name).
			Msg("applied argument repair")
		candidate = repaired
		if m, ok := tryParse(candidate); ok {
			return m, nil
		}
	}

	return nil, []string{fmt.Sprintf("arguments are not valid JSON after repair: %s", safeSnippet(arguments))}
}

func tryParse(s string) (map[string]any, bool) {
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, false
	}
	return m, true
}

// truncateConcatenated cuts the input at the position where the first
// top-level JSON object closes, discarding anything concatenated after it.
// Tracks string context so braces inside values do not affect the depth.
func truncateConcatenated(s string) string {
	if !strings.HasPrefix(s, "{") {
		return s
	}
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					if i < len(s)-1 {
						return s[:i+1]
					}
					return s
				}
			}
		}
	}
	return s
}

// normalizeSingleQuotes rewrites single-quoted keys and values to
// double-quoted. Runs outside double-quoted strings only.
func normalizeSingleQuotes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inDouble := false
	inSingle := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			b.WriteByte(c)
			escaped = false
			continue
		}
		switch {
		case c == '\\':
			escaped = true
			b.WriteByte(c)
		case c == '"' && !inSingle:
			inDouble = !inDouble
			b.WriteByte(c)
		case c == '\'' && !inDouble:
			inSingle = !inSingle
			b.WriteByte('"')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

func removeTrailingCommas(s string) string {
	return trailingCommaRe.ReplaceAllString(s, "$1")
}

// closeUnbalanced appends the matching close when the string opens an
// object or array and never closes it.
func closeUnbalanced(s string) string {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{") && !strings.HasSuffix(trimmed, "}") {
		return trimmed + "}"
	}
	if strings.HasPrefix(trimmed, "[") && !strings.HasSuffix(trimmed, "]") {
		return trimmed + "]"
	}
	return s
}

// closeTruncatedValue fixes a value cut off mid-string before the next key:
// `"key": "partial value, "nextkey"` gains a closing quote before the comma.
var truncatedValueRe = regexp.MustCompile(`(":\s*"[^"]*),\s*(")`)

func closeTruncatedValue(s string) string {
	return truncatedValueRe.ReplaceAllString(s, `$1", $2`)
}

// collapseDoubledQuotes fixes a doubled leading quote on a value:
// `: ""value"` becomes `: "value"`.
var doubledQuoteRe = regexp.MustCompile(`(:\s*)""([^",}\]]+)"`)

func collapseDoubledQuotes(s string) string {
	return doubledQuoteRe.ReplaceAllString(s, `$1"$2"`)
}

// quoteBareKeys quotes an unquoted object key (bare identifier before a colon).
var bareKeyRe = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*:)`)

func quoteBareKeys(s string) string {
	return bareKeyRe.ReplaceAllString(s, `$1"$2"$3`)
}

// fillMissingValues inserts null for a key with no value before a comma or
// closing brace: `"key": ,` becomes `"key": null,`.
var missingValueRe = regexp.MustCompile(`(":\s*)([,}])`)

func fillMissingValues(s string) string {
	return missingValueRe.ReplaceAllString(s, `${1}null$2`)
}

func safeSnippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrSnippet {
		return s
	}
	return s[:maxErrSnippet]
}
