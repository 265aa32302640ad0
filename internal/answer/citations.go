package answer

import (
	"github.com/fieldscope/manualqa/internal/model"
	"github.com/fieldscope/manualqa/internal/search"
)

// Citation relevance floor: absolute minimum, or a share of the top
// score, whichever is higher.
const (
	citationMinRelevance  = 0.18
	citationTopScoreShare = 0.35
)

// CitationOutput is a citation with its formatted label.
type CitationOutput struct {
	model.Citation
	Label string `json:"label"`
}

// buildCitations keeps hits above the relevance floor, deduplicated by
// the full citation tuple. If nothing clears the floor the top hit
// still yields one citation so grounded answers are never bare. A
// non-positive minFloor falls back to the default.
func buildCitations(hits []search.EvidenceHit, minFloor float64) []model.Citation {
	if len(hits) == 0 {
		return nil
	}
	if minFloor <= 0 {
		minFloor = citationMinRelevance
	}

	topScore := 0.0
	for _, hit := range hits {
		if hit.Score > topScore {
			topScore = hit.Score
		}
	}
	minRelevance := minFloor
	if v := topScore * citationTopScoreShare; v > minRelevance {
		minRelevance = v
	}

	type key struct {
		docID, sectionPath, figureID, tableID string
		page                                  int
	}
	seen := map[key]bool{}
	var citations []model.Citation
	for _, hit := range hits {
		if hit.Score < minRelevance {
			continue
		}
		citation := citationFromHit(hit)
		k := key{citation.DocID, citation.SectionPath, citation.FigureID, citation.TableID, citation.Page}
		if seen[k] {
			continue
		}
		seen[k] = true
		citations = append(citations, citation)
	}

	if len(citations) == 0 {
		citations = append(citations, citationFromHit(hits[0]))
	}
	return citations
}

func citationFromHit(hit search.EvidenceHit) model.Citation {
	page := hit.Chunk.PageStart
	if page <= 0 {
		page = hit.Chunk.PageEnd
		if page < 1 {
			page = 1
		}
	}
	return model.Citation{
		DocID:       hit.Chunk.DocID,
		Page:        page,
		SectionPath: hit.Chunk.SectionPath,
		FigureID:    hit.Chunk.FigureID,
		TableID:     hit.Chunk.TableID,
	}
}
