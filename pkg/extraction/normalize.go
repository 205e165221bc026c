package extraction

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// RawTextKey holds the untouched model output when no JSON object could be
// recovered from it.
const RawTextKey = "rawText"

var scalarFields = []string{"merchantName", "date", "total", "subtotal", "tax"}

// fieldAliases maps each canonical field to the alternate names models tend
// to emit. Order matters: the first populated alias wins. Adding an alias is
// a data change, not a code change.
var fieldAliases = []struct {
	Canonical string
	Aliases   []string
}{
	{Canonical: "merchantName", Aliases: []string{"storeName"}},
	{Canonical: "total", Aliases: []string{"totalAmount"}},
}

var fencedJSONPattern = regexp.MustCompile("(?s)```json\\s*\\n(.*?)\\n```")

// fencedJSONBlock returns the content of the first ```json fenced block.
func fencedJSONBlock(text string) (string, bool) {
	match := fencedJSONPattern.FindStringSubmatch(text)
	if match == nil {
		return "", false
	}
	return match[1], true
}

// braceSpan returns the span from the first "{" to the last "}".
func braceSpan(text string) (string, bool) {
	start := strings.Index(text, "{")
	if start == -1 {
		return "", false
	}
	end := strings.LastIndex(text, "}")
	if end == -1 || end < start {
		return "", false
	}
	return text[start : end+1], true
}

// Normalize maps free-form model output onto the canonical receipt shape.
// It looks for a fenced JSON block first, then a brace span. On a successful
// parse it applies the alias table and fills every canonical field with an
// explicit empty value, passing unknown keys through untouched. When no JSON
// object can be recovered the result is {rawText: <input>}. Normalize never
// fails, whatever the input.
func Normalize(text string) map[string]any {
	candidate, found := fencedJSONBlock(text)
	if !found {
		candidate, found = braceSpan(text)
	}
	if !found {
		return map[string]any{RawTextKey: text}
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(candidate), &parsed); err != nil || parsed == nil {
		return map[string]any{RawTextKey: text}
	}

	for _, alias := range fieldAliases {
		if !populated(parsed[alias.Canonical]) {
			for _, name := range alias.Aliases {
				if populated(parsed[name]) {
					parsed[alias.Canonical] = parsed[name]
					break
				}
			}
		}
	}

	for _, field := range scalarFields {
		if !populated(parsed[field]) {
			parsed[field] = ""
		}
	}
	if _, ok := parsed["items"].([]any); !ok {
		parsed["items"] = []any{}
	}

	return parsed
}

func populated(v any) bool {
	if v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return s != ""
	}
	return true
}

// FieldString renders a normalized scalar as text for storage. Models emit
// amounts as either strings or numbers.
func FieldString(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// FieldItems returns the normalized line items, never nil.
func FieldItems(fields map[string]any) []any {
	if items, ok := fields["items"].([]any); ok {
		return items
	}
	return []any{}
}
