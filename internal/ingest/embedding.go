package ingest

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/fieldscope/manualqa/internal/embed"
	qaerrors "github.com/fieldscope/manualqa/internal/errors"
	"github.com/fieldscope/manualqa/internal/model"
)

// failureEmptyVector labels chunks whose adapter returned no vector and
// no error on every attempt.
const failureEmptyVector = "embedding-returned-empty-vector"

// EmbedStats summarizes the embedding stage of one ingestion run.
type EmbedStats struct {
	Attempted           int            `json:"attempted"`
	Success             int            `json:"success"`
	Failed              int            `json:"failed"`
	SecondPassAttempted int            `json:"second_pass_attempted"`
	SecondPassRecovered int            `json:"second_pass_recovered"`
	Coverage            float64        `json:"coverage"`
	FailureReasons      map[string]int `json:"failure_reasons,omitempty"`
}

// truncationLadder builds the retry lengths for failed embeddings:
// the configured second-pass limit plus the standard fallback lengths,
// deduplicated and sorted descending.
func truncationLadder(secondPassMaxChars int) []int {
	seen := map[int]bool{}
	var ladder []int
	for _, n := range []int{secondPassMaxChars, 1536, 1024, 768} {
		if n > 0 && !seen[n] {
			seen[n] = true
			ladder = append(ladder, n)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ladder)))
	return ladder
}

type pendingEmbed struct {
	idx     int
	text    string
	lastErr error
}

// embedChunks attaches embeddings to chunk metadata in place. The first
// pass covers every chunk; a second pass retries the failures down the
// truncation ladder. Coverage is successes over the whole chunk set,
// 0 when there are no chunks. Per-chunk failures never abort here; the
// pipeline decides at the end of the stage.
func embedChunks(ctx context.Context, embedder embed.Embedder, chunks []model.Chunk, secondPassMaxChars int) EmbedStats {
	stats := EmbedStats{Attempted: len(chunks), FailureReasons: map[string]int{}}
	ladder := truncationLadder(secondPassMaxChars)

	attach := func(i int, vec []float32) {
		if chunks[i].Metadata == nil {
			chunks[i].Metadata = map[string]any{}
		}
		chunks[i].Metadata["embedding"] = embed.ToFloat64(vec)
		stats.Success++
	}

	var pending []pendingEmbed
	for i := range chunks {
		text := strings.TrimSpace(chunks[i].ContentText)
		vec, err := embedder.Embed(ctx, text)
		if err == nil && len(vec) > 0 {
			attach(i, vec)
			continue
		}
		pending = append(pending, pendingEmbed{idx: i, text: text, lastErr: err})
	}

	for _, p := range pending {
		stats.SecondPassAttempted++
		vec, err := embedTruncated(ctx, embedder, p.text, ladder, p.lastErr)
		if err == nil && len(vec) > 0 {
			attach(p.idx, vec)
			stats.SecondPassRecovered++
			continue
		}
		stats.Failed++
		reason := failureEmptyVector
		if err != nil {
			reason = qaerrors.Kind(err)
		}
		stats.FailureReasons[reason]++
	}

	stats.Coverage = embedCoverage(stats.Success, len(chunks))
	if len(stats.FailureReasons) == 0 {
		stats.FailureReasons = nil
	}
	return stats
}

// embedTruncated walks the ladder retrying progressively shorter
// prefixes. Lengths at or above the full text are skipped; the full
// text already failed the first pass.
func embedTruncated(ctx context.Context, embedder embed.Embedder, text string, ladder []int, firstErr error) ([]float32, error) {
	runes := []rune(text)
	lastErr := firstErr
	for _, limit := range ladder {
		if len(runes) <= limit {
			continue
		}
		vec, err := embedder.Embed(ctx, string(runes[:limit]))
		if err == nil && len(vec) > 0 {
			return vec, nil
		}
		if err != nil {
			lastErr = err
		}
	}
	return nil, lastErr
}

func embedCoverage(success, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(success)/float64(total)*10000) / 10000
}
