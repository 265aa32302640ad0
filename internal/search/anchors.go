package search

import (
	"regexp"
	"sort"
	"strings"
)

var anchorTokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// anchorAliases folds spelling and phrasing variants onto one canonical
// term so coverage checks survive "analog" vs "analogue" and
// "what does X mean" style questions.
var anchorAliases = map[string]string{
	"analog":       "analogue",
	"analogue":     "analogue",
	"mean":         "description",
	"meaning":      "description",
	"descriptions": "description",
	"parameters":   "parameter",
	"signals":      "signal",
}

// anchorStopwords are question scaffolding, not evidence terms.
var anchorStopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "compare": true, "do": true, "does": true,
	"for": true, "from": true, "how": true, "i": true, "in": true,
	"is": true, "it": true, "mean": true, "mode": true, "of": true,
	"on": true, "or": true, "recommended": true, "should": true,
	"that": true, "the": true, "to": true, "what": true, "when": true,
	"where": true, "which": true, "why": true, "with": true,
}

// ExtractAnchors tokenizes the query, keeps tokens of three characters
// or more, strips plural suffixes from tokens longer than four
// characters, applies the alias map, and drops stopwords. Duplicates
// are removed and the result is sorted.
func ExtractAnchors(query string) []string {
	var anchors []string
	seen := map[string]bool{}
	for _, token := range anchorTokenPattern.FindAllString(strings.ToLower(query), -1) {
		if len(token) < 3 {
			continue
		}
		if len(token) > 4 && strings.HasSuffix(token, "s") {
			token = token[:len(token)-1]
		}
		if alias, ok := anchorAliases[token]; ok {
			token = alias
		}
		if anchorStopwords[token] {
			continue
		}
		if !seen[token] {
			seen[token] = true
			anchors = append(anchors, token)
		}
	}
	sort.Strings(anchors)
	return anchors
}

// MatchAnchors returns the anchors present in text, using the same
// normalization as ExtractAnchors on the text side.
func MatchAnchors(anchors []string, text string) []string {
	if len(anchors) == 0 || text == "" {
		return nil
	}
	tokens := map[string]bool{}
	for _, token := range anchorTokenPattern.FindAllString(strings.ToLower(text), -1) {
		tokens[token] = true
		if len(token) > 4 && strings.HasSuffix(token, "s") {
			tokens[token[:len(token)-1]] = true
		}
		if alias, ok := anchorAliases[token]; ok {
			tokens[alias] = true
		}
	}
	var matched []string
	for _, anchor := range anchors {
		if tokens[anchor] {
			matched = append(matched, anchor)
		}
	}
	return matched
}

// AnchorOverlap is the fraction of anchors matched by the text.
func AnchorOverlap(anchors []string, matched []string) float64 {
	if len(anchors) == 0 {
		return 0
	}
	return float64(len(matched)) / float64(len(anchors))
}
