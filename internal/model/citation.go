package model

import (
	"fmt"
	"strings"
)

// FormatCitation renders a citation for display:
// "doc p.N | section S | figure F | table T".
func FormatCitation(c Citation) string {
	parts := []string{fmt.Sprintf("%s p.%d", c.DocID, c.Page)}
	if c.SectionPath != "" {
		parts = append(parts, "section "+c.SectionPath)
	}
	if c.FigureID != "" {
		parts = append(parts, "figure "+c.FigureID)
	}
	if c.TableID != "" {
		parts = append(parts, "table "+c.TableID)
	}
	return strings.Join(parts, " | ")
}
