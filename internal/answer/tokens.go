package answer

import (
	"strings"

	"github.com/fieldscope/manualqa/internal/search"
)

var comparisonHints = []string{" compare ", " vs ", " versus ", " difference "}

// tokenSet normalizes text into the stop-filtered, alias-folded,
// singularized token set shared with anchor extraction.
func tokenSet(text string) map[string]bool {
	set := map[string]bool{}
	for _, token := range search.ExtractAnchors(text) {
		set[token] = true
	}
	return set
}

func intersectionCount(a, b map[string]bool) int {
	n := 0
	for token := range a {
		if b[token] {
			n++
		}
	}
	return n
}

// queryOverlap is the best per-hit token overlap ratio over the top 3.
func queryOverlap(query string, hits []search.EvidenceHit) float64 {
	qTokens := tokenSet(query)
	if len(qTokens) == 0 || len(hits) == 0 {
		return 0
	}
	best := 0.0
	for _, hit := range topHits(hits, 3) {
		overlap := float64(intersectionCount(qTokens, tokenSet(hit.Snippet))) / float64(len(qTokens))
		if overlap > best {
			best = overlap
		}
	}
	return best
}

// aggregateOverlap measures query coverage by the union of the top 6
// hit token sets.
func aggregateOverlap(query string, hits []search.EvidenceHit) float64 {
	qTokens := tokenSet(query)
	if len(qTokens) == 0 || len(hits) == 0 {
		return 0
	}
	union := map[string]bool{}
	for _, hit := range topHits(hits, 6) {
		for token := range tokenSet(hit.Snippet) {
			union[token] = true
		}
	}
	return float64(intersectionCount(qTokens, union)) / float64(len(qTokens))
}

// bestOverlapCount returns the best matched-token count over the top 3
// hits and the query token count.
func bestOverlapCount(query string, hits []search.EvidenceHit) (int, int) {
	qTokens := tokenSet(query)
	if len(qTokens) == 0 || len(hits) == 0 {
		return 0, len(qTokens)
	}
	best := 0
	for _, hit := range topHits(hits, 3) {
		if n := intersectionCount(qTokens, tokenSet(hit.Snippet)); n > best {
			best = n
		}
	}
	return best, len(qTokens)
}

func isComparisonQuery(query string) bool {
	padded := " " + strings.ToLower(query) + " "
	for _, hint := range comparisonHints {
		if strings.Contains(padded, hint) {
			return true
		}
	}
	return false
}

// insufficientEvidence decides whether the hits can ground a direct
// answer. Thresholds are looser for comparison queries, which naturally
// split their tokens across two evidence targets.
func insufficientEvidence(query string, hits []search.EvidenceHit) bool {
	if len(hits) == 0 {
		return true
	}

	bestScore := hits[0].Score
	bestKeyword, bestVector := 0.0, 0.0
	for _, hit := range hits {
		if hit.KeywordScore > bestKeyword {
			bestKeyword = hit.KeywordScore
		}
		if hit.VectorScore > bestVector {
			bestVector = hit.VectorScore
		}
	}
	overlap := queryOverlap(query, hits)
	aggOverlap := aggregateOverlap(query, hits)
	overlapCount, queryTokenCount := bestOverlapCount(query, hits)

	if bestScore < 0.22 && bestKeyword < 0.35 && bestVector < 0.60 {
		return true
	}
	if isComparisonQuery(query) {
		if aggOverlap < 0.22 && overlap < 0.10 && bestVector < 0.70 && bestKeyword < 0.45 {
			return true
		}
	} else {
		if overlap < 0.15 && aggOverlap < 0.25 && bestVector < 0.75 && bestKeyword < 0.55 {
			return true
		}
	}
	if queryTokenCount >= 6 && overlapCount < 2 && aggOverlap < 0.30 {
		return true
	}
	return false
}

func topHits(hits []search.EvidenceHit, n int) []search.EvidenceHit {
	if len(hits) > n {
		return hits[:n]
	}
	return hits
}
