package mcp

import (
	"fmt"
	"strings"

	"github.com/fieldscope/manualqa/internal/answer"
	"github.com/fieldscope/manualqa/internal/search"
)

// FormatAnswer formats a composed answer as markdown.
func FormatAnswer(resp *answer.Response) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Answer (%s, confidence: %s)\n\n", resp.Status, resp.Confidence))
	sb.WriteString(resp.Answer)
	sb.WriteString("\n")

	if resp.FollowUpQuestion != "" {
		fmt.Fprintf(&sb, "\n**Follow-up needed:** %s\n", resp.FollowUpQuestion)
	}

	if len(resp.Citations) > 0 {
		sb.WriteString("\n**Citations:**\n")
		for _, c := range resp.Citations {
			fmt.Fprintf(&sb, "- %s\n", c.Label)
		}
	}

	if len(resp.Warnings) > 0 {
		sb.WriteString("\n**Warnings:**\n")
		for _, w := range resp.Warnings {
			fmt.Fprintf(&sb, "- %s\n", w)
		}
	}

	return sb.String()
}

// FormatEvidence formats retrieval hits as markdown.
func FormatEvidence(result *search.Result) string {
	if len(result.Hits) == 0 {
		return fmt.Sprintf("No evidence found for \"%s\"", result.Query)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Evidence for \"%s\"\n\n", result.Query))
	fmt.Fprintf(&sb, "Intent: `%s`. Found %d hit", result.Intent, len(result.Hits))
	if len(result.Hits) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, hit := range result.Hits {
		formatHit(&sb, i+1, hit)
	}

	return sb.String()
}

// formatHit formats a single evidence hit.
func formatHit(sb *strings.Builder, num int, hit search.EvidenceHit) {
	fmt.Fprintf(sb, "### %d. %s p.%d [%s] (score: %.2f)\n",
		num,
		hit.Chunk.DocID,
		hit.Chunk.PageStart,
		hit.Chunk.ContentType,
		hit.Score,
	)

	if len(hit.MatchedAnchors) > 0 {
		anchors := make([]string, len(hit.MatchedAnchors))
		for j, a := range hit.MatchedAnchors {
			anchors[j] = fmt.Sprintf("`%s`", a)
		}
		fmt.Fprintf(sb, "**Matched:** %s\n\n", strings.Join(anchors, ", "))
	}

	fmt.Fprintf(sb, "```text\n%s\n```\n\n", hit.Snippet)
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}
