package search

import "strings"

// Term sets for intent detection. Multi-word terms match as substrings
// of the lowercased query; single words match as substrings too, which
// deliberately catches plurals ("specifications", "intervals").
var tableTerms = []string{
	"table", "parameter", "spec", "specification", "torque", "clearance",
	"gap", "tolerance", "dimension", "mm", "nm", "schedule", "interval",
	"fault code",
}

var diagramTerms = []string{
	"diagram", "schematic", "wiring", "terminal", "pin", "connector",
	"figure", "signal", "block diagram", "connection",
}

// DetectIntent counts table and diagram term hits in the query.
// Table wins when it has at least one hit and at least as many as
// diagram; diagram wins when it alone has hits; otherwise general.
func DetectIntent(query string) Intent {
	lower := strings.ToLower(query)

	tableHits := 0
	for _, term := range tableTerms {
		if strings.Contains(lower, term) {
			tableHits++
		}
	}
	diagramHits := 0
	for _, term := range diagramTerms {
		if strings.Contains(lower, term) {
			diagramHits++
		}
	}

	switch {
	case tableHits > 0 && tableHits >= diagramHits:
		return IntentTable
	case diagramHits > 0:
		return IntentDiagram
	default:
		return IntentGeneral
	}
}
