package search

import "strings"

// expansionAliases add a spelling or phrasing variant next to the
// original token so the keyword leg can hit either form.
var expansionAliases = map[string]string{
	"vs":         "versus",
	"mean":       "description",
	"meaning":    "description",
	"parameter":  "setting",
	"parameters": "settings",
}

// comparisonCues mark queries that contrast two things; such queries
// additionally pull in the terms manuals use for comparison tables.
var comparisonCues = []string{"compare", " vs ", "difference"}

// ExpandQuery rewrites the query for the keyword leg: lowercase, with
// alias variants appended after the tokens that triggered them and
// comparison terms appended for contrastive queries. Tokens are
// deduplicated preserving first appearance. The dense leg always gets
// the raw query.
func ExpandQuery(query string) string {
	lower := strings.ToLower(query)

	var out []string
	seen := map[string]bool{}
	add := func(token string) {
		if token == "" || seen[token] {
			return
		}
		seen[token] = true
		out = append(out, token)
	}

	for _, token := range strings.Fields(lower) {
		add(token)
		if alias, ok := expansionAliases[token]; ok {
			add(alias)
		}
	}

	for _, cue := range comparisonCues {
		if strings.Contains(lower, cue) {
			add("difference")
			add("comparison")
			break
		}
	}

	return strings.Join(out, " ")
}
