package contracts

import (
	"fmt"
	"sort"
	"strings"

	qaerrors "github.com/fieldscope/manualqa/internal/errors"
)

// GoldenQuestion is one row in the golden question set. Defaults match
// the loader contract: unset type/difficulty fall back to the easiest
// bucket, rag_mode falls back to the evidence channel, and counts are
// clamped to at least 1.
type GoldenQuestion struct {
	QuestionID       string   `json:"question_id"`
	Doc              string   `json:"doc"`
	Intent           string   `json:"intent"`
	Evidence         string   `json:"evidence"`
	Question         string   `json:"question"`
	QuestionType     string   `json:"question_type"`
	Difficulty       string   `json:"difficulty"`
	RagMode          string   `json:"rag_mode"`
	TurnCount        int      `json:"turn_count"`
	ExpectedKeywords []string `json:"expected_keywords"`
	MinKeywordHits   int      `json:"min_keyword_hits"`
}

// GoldenSet is the loaded golden questions file: the doc ids declared
// in meta plus the question rows.
type GoldenSet struct {
	DocIDs    []string
	Questions []GoldenQuestion
}

// LoadGoldenQuestions reads the golden questions YAML. `meta.docs`
// must be a mapping and `questions` a list.
func LoadGoldenQuestions(path string) (*GoldenSet, error) {
	root, err := loadYAMLMapping(path)
	if err != nil {
		return nil, err
	}

	docIDs, err := goldenMetaDocs(root, path)
	if err != nil {
		return nil, err
	}
	rows, err := mappingList(root, "questions", path)
	if err != nil {
		return nil, err
	}

	set := &GoldenSet{DocIDs: docIDs}
	for _, row := range rows {
		q := GoldenQuestion{
			QuestionID:       stringValue(row, "id"),
			Doc:              stringValue(row, "doc"),
			Intent:           stringValue(row, "intent"),
			Evidence:         stringValue(row, "evidence"),
			Question:         stringValue(row, "question"),
			QuestionType:     stringValue(row, "question_type"),
			Difficulty:       stringValue(row, "difficulty"),
			RagMode:          stringValue(row, "rag_mode"),
			TurnCount:        intValue(row, "turn_count", 1),
			ExpectedKeywords: stringListValue(row, "expected_keywords"),
			MinKeywordHits:   intValue(row, "min_keyword_hits", 1),
		}
		if q.QuestionType == "" {
			q.QuestionType = "straightforward"
		}
		if q.Difficulty == "" {
			q.Difficulty = "easy"
		}
		if q.RagMode == "" {
			q.RagMode = q.Evidence
		}
		if q.RagMode == "" {
			q.RagMode = "text"
		}
		if q.TurnCount < 1 {
			q.TurnCount = 1
		}
		if q.MinKeywordHits < 1 {
			q.MinKeywordHits = 1
		}
		set.Questions = append(set.Questions, q)
	}
	return set, nil
}

func goldenMetaDocs(root map[string]any, path string) ([]string, error) {
	meta, ok := root["meta"].(map[string]any)
	if !ok {
		if root["meta"] == nil {
			return nil, nil
		}
		return nil, qaerrors.New(qaerrors.ErrCodeContractInvalid,
			"`meta` must be a mapping in "+path, nil)
	}
	rawDocs, ok := meta["docs"]
	if !ok || rawDocs == nil {
		return nil, nil
	}
	docs, ok := rawDocs.(map[string]any)
	if !ok {
		return nil, qaerrors.New(qaerrors.ErrCodeContractInvalid,
			"`meta.docs` must be a mapping in "+path, nil)
	}
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func stringListValue(row map[string]any, key string) []string {
	raw, ok := row[key]
	if !ok || raw == nil {
		return nil
	}
	items, ok := raw.([]any)
	if !ok {
		items = []any{raw}
	}
	var out []string
	for _, item := range items {
		s := strings.TrimSpace(fmt.Sprintf("%v", item))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
