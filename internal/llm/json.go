package llm

import "strings"

// ExtractJSONArray pulls the outermost JSON array out of model output
// that may wrap it in prose or code fences. Returns "" when no array
// delimiters are present.
func ExtractJSONArray(s string) string {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// ExtractJSONObject pulls the outermost JSON object out of model output.
func ExtractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
