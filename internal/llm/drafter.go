package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/fieldscope/manualqa/internal/search"
)

const drafterSystemPrompt = `You answer technician questions about equipment manuals.
Use ONLY the evidence snippets provided. Quote exact values (torques, clearances,
parameter numbers) as written. If the evidence does not contain the answer, say so.
Keep the answer under 120 words. Do not invent page numbers or values.`

// Drafter turns retrieved evidence into a short grounded answer draft.
type Drafter struct {
	client Client
}

// NewDrafter creates an answer drafter.
func NewDrafter(client Client) *Drafter {
	return &Drafter{client: client}
}

// Draft asks the chat model for an answer grounded in the given hits.
func (d *Drafter) Draft(ctx context.Context, query string, hits []search.EvidenceHit) (string, error) {
	var sb strings.Builder
	sb.WriteString("Question: ")
	sb.WriteString(query)
	sb.WriteString("\n\nEvidence:\n")
	for i, hit := range hits {
		fmt.Fprintf(&sb, "[%d] (%s p.%d) %s\n", i+1, hit.Chunk.DocID, hit.Chunk.PageStart, hit.Snippet)
	}
	sb.WriteString("\nAnswer the question from the evidence above.")

	out, err := d.client.Chat(ctx, []Message{
		{Role: "system", Content: drafterSystemPrompt},
		{Role: "user", Content: sb.String()},
	}, ChatOptions{Temperature: 0.1})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
