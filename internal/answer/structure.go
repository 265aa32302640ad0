package answer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fieldscope/manualqa/internal/search"
)

// Section headers of the structured evaluation output.
const (
	directAnswerHeader = "Direct answer:"
	keyDetailsHeader   = "Key details:"
	missingDataHeader  = "If missing data:"
)

var (
	bulletPrefixPattern = regexp.MustCompile(`^[-*]\s*`)
	numberPrefixPattern = regexp.MustCompile(`^\d+\.\s*`)
)

func stripListPrefix(line string) string {
	return strings.TrimSpace(numberPrefixPattern.ReplaceAllString(bulletPrefixPattern.ReplaceAllString(line, ""), ""))
}

// dedupeLines collapses whitespace, drops blanks and case-insensitive
// duplicates, and caps the list.
func dedupeLines(lines []string, limit int) []string {
	var out []string
	seen := map[string]bool{}
	for _, line := range lines {
		cleaned := strings.Trim(strings.Join(strings.Fields(line), " "), " -")
		if cleaned == "" {
			continue
		}
		key := strings.ToLower(cleaned)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, cleaned)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// parseStructuredSections splits already-structured answer text back
// into its three sections. Unknown leading lines are ignored.
func parseStructuredSections(text string) (string, []string, []string) {
	var directLines, keyDetails, missingData []string
	section := ""

	for _, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, strings.ToLower(directAnswerHeader)):
			section = "direct"
			if value := headerValue(line); value != "" {
				directLines = append(directLines, value)
			}
			continue
		case strings.HasPrefix(lower, strings.ToLower(keyDetailsHeader)):
			section = "details"
			if value := headerValue(line); value != "" {
				keyDetails = append(keyDetails, value)
			}
			continue
		case strings.HasPrefix(lower, strings.ToLower(missingDataHeader)):
			section = "missing"
			if value := headerValue(line); value != "" {
				missingData = append(missingData, value)
			}
			continue
		}

		cleaned := stripListPrefix(line)
		if cleaned == "" {
			continue
		}
		switch section {
		case "direct":
			directLines = append(directLines, cleaned)
		case "details":
			keyDetails = append(keyDetails, cleaned)
		case "missing":
			missingData = append(missingData, cleaned)
		}
	}

	direct := strings.TrimSpace(strings.Join(directLines, " "))
	return direct, dedupeLines(keyDetails, 4), dedupeLines(missingData, 4)
}

func headerValue(line string) string {
	if i := strings.Index(line, ":"); i >= 0 {
		return strings.TrimSpace(line[i+1:])
	}
	return ""
}

func extractDirectAnswer(answerText string) string {
	direct, _, _ := parseStructuredSections(answerText)
	if direct != "" {
		return direct
	}

	for _, rawLine := range strings.Split(answerText, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}
		first := stripListPrefix(line)
		if strings.HasPrefix(strings.ToLower(first), strings.ToLower(directAnswerHeader)) {
			first = headerValue(first)
		}
		if first != "" {
			return first
		}
		break
	}
	return notFoundText
}

func buildKeyDetails(answerText string, hits []search.EvidenceHit) []string {
	_, parsed, _ := parseStructuredSections(answerText)
	if len(parsed) > 0 {
		return parsed
	}

	var details []string
	for _, hit := range topHits(hits, 3) {
		if snippet := strings.TrimSpace(hit.Snippet); snippet != "" {
			details = append(details, snippet)
		}
	}
	if len(details) == 0 {
		details = append(details, "No additional grounded details beyond the direct answer.")
	}
	return dedupeLines(details, 3)
}

func buildMissingDataLines(status, followUp string, warnings []string, answerText string) []string {
	_, _, parsed := parseStructuredSections(answerText)
	if len(parsed) > 0 {
		return parsed
	}

	if status == statusOK {
		return []string{"None identified in retrieved evidence."}
	}

	var items []string
	if status == statusNeedsFollowUp {
		if followUp == "" {
			followUp = "Manual/model context is required to finalize the answer."
		}
		items = append(items, followUp)
	}
	if status == statusNotFound || status == statusPartial {
		items = append(items, "Direct answer is not explicitly stated in the retrieved evidence.")
	}
	for _, warning := range warnings {
		lowered := strings.ToLower(warning)
		if strings.Contains(lowered, "insufficient evidence") {
			items = append(items, "Evidence is insufficient for a fully grounded direct answer.")
		}
		if strings.Contains(lowered, "no citations available") {
			items = append(items, "Grounding check blocked an ungrounded ok response.")
		}
	}
	if len(items) == 0 {
		items = append(items, "No additional missing-data notes.")
	}
	return dedupeLines(items, 3)
}

// formatEvalAnswer rewrites the answer into the fixed three-section
// layout the golden evaluation parses.
func formatEvalAnswer(answerText, status string, hits []search.EvidenceHit, followUp string, warnings []string) string {
	direct := extractDirectAnswer(answerText)
	keyDetails := buildKeyDetails(answerText, hits)
	missingData := buildMissingDataLines(status, followUp, warnings, answerText)

	lines := []string{fmt.Sprintf("%s %s", directAnswerHeader, direct), keyDetailsHeader}
	for _, detail := range keyDetails {
		lines = append(lines, "- "+detail)
	}
	lines = append(lines, missingDataHeader)
	for _, item := range missingData {
		lines = append(lines, "- "+item)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
