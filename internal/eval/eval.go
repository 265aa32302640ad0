// Package eval runs the golden question set against the answer
// pipeline and grades each answer on grounding, citation shape, and
// follow-up behavior.
package eval

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"github.com/fieldscope/manualqa/internal/answer"
	"github.com/fieldscope/manualqa/internal/contracts"
)

// DocMultiple marks golden questions that span manuals and run without
// a document filter.
const DocMultiple = "multiple"

// AnswerFunc asks one question; the production wiring binds it to the
// composer.
type AnswerFunc func(ctx context.Context, req answer.Request) (*answer.Response, error)

// Options selects and scopes one evaluation run.
type Options struct {
	CatalogPath string
	GoldenPath  string
	TopN        int
	DocIDFilter string
	Limit       int
}

// QuestionResult grades one golden question.
type QuestionResult struct {
	QuestionID         string   `json:"question_id"`
	Doc                string   `json:"doc"`
	Intent             string   `json:"intent"`
	Question           string   `json:"question"`
	AnswerStatus       string   `json:"answer_status"`
	HasCitationDocPage bool     `json:"has_citation_doc_page"`
	Grounded           bool     `json:"grounded"`
	FollowUpExpected   bool     `json:"follow_up_expected"`
	FollowUpOK         bool     `json:"follow_up_ok"`
	CitationCount      int      `json:"citation_count"`
	Turns              int      `json:"turns"`
	Passed             bool     `json:"passed"`
	Reasons            []string `json:"reasons"`
	FollowUpQuestion   string   `json:"follow_up_question,omitempty"`
}

// Summary aggregates one evaluation run.
type Summary struct {
	TotalQuestions  int              `json:"total_questions"`
	PassedQuestions int              `json:"passed_questions"`
	FailedQuestions int              `json:"failed_questions"`
	PassRate        float64          `json:"pass_rate"`
	MissingDocs     []string         `json:"missing_docs"`
	Results         []QuestionResult `json:"results"`
}

// Runner evaluates golden questions through an answer function.
type Runner struct {
	answer AnswerFunc
	logger *slog.Logger
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithRunnerLogger sets the logger.
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// NewRunner builds an evaluation runner.
func NewRunner(answerFn AnswerFunc, opts ...RunnerOption) *Runner {
	r := &Runner{answer: answerFn, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run loads the contracts and evaluates the selected questions.
// Questions whose document the catalog does not mark present are
// flagged missing_doc without asking the pipeline.
func (r *Runner) Run(ctx context.Context, opts Options) (*Summary, error) {
	catalog, err := contracts.LoadCatalog(opts.CatalogPath)
	if err != nil {
		return nil, err
	}
	golden, err := contracts.LoadGoldenQuestions(opts.GoldenPath)
	if err != nil {
		return nil, err
	}

	questions := golden.Questions
	if opts.DocIDFilter != "" {
		var filtered []contracts.GoldenQuestion
		for _, q := range questions {
			if q.Doc == opts.DocIDFilter {
				filtered = append(filtered, q)
			}
		}
		questions = filtered
	}
	if opts.Limit > 0 && len(questions) > opts.Limit {
		questions = questions[:opts.Limit]
	}

	missingDocs := map[string]bool{}
	summary := &Summary{MissingDocs: []string{}}

	for _, q := range questions {
		if q.Doc != DocMultiple {
			entry, ok := catalog.Get(q.Doc)
			if !ok || !entry.Present() {
				missingDocs[q.Doc] = true
				summary.Results = append(summary.Results, missingDocResult(q))
				r.logger.Warn("golden question skipped", "question_id", q.QuestionID, "doc_id", q.Doc)
				continue
			}
		}

		result, err := r.evaluateQuestion(ctx, q, opts.TopN)
		if err != nil {
			return nil, err
		}
		summary.Results = append(summary.Results, result)
	}

	for _, row := range summary.Results {
		if row.Passed {
			summary.PassedQuestions++
		}
	}
	summary.TotalQuestions = len(summary.Results)
	summary.FailedQuestions = summary.TotalQuestions - summary.PassedQuestions
	if summary.TotalQuestions > 0 {
		rate := float64(summary.PassedQuestions) / float64(summary.TotalQuestions) * 100.0
		summary.PassRate = math.Round(rate*100) / 100
	}
	for docID := range missingDocs {
		summary.MissingDocs = append(summary.MissingDocs, docID)
	}
	sort.Strings(summary.MissingDocs)
	return summary, nil
}

// evaluateQuestion asks the question, replaying up to turn_count turns
// when the pipeline asks a follow-up. The follow-up answer carried
// forward is the golden document id.
func (r *Runner) evaluateQuestion(ctx context.Context, q contracts.GoldenQuestion, topN int) (QuestionResult, error) {
	docID := ""
	if q.Doc != DocMultiple {
		docID = q.Doc
	}

	query := q.Question
	turns := 0
	var resp *answer.Response
	for turn := 1; turn <= q.TurnCount; turn++ {
		var err error
		resp, err = r.answer(ctx, answer.Request{
			Query:                   query,
			DocID:                   docID,
			TopN:                    topN,
			EnforceStructuredOutput: true,
		})
		if err != nil {
			return QuestionResult{}, err
		}
		turns = turn

		if resp.FollowUpQuestion == "" || turn == q.TurnCount {
			break
		}
		if docID == "" && q.Doc != DocMultiple {
			docID = q.Doc
		}
		if docID != "" {
			query = q.Question + " for " + docID
		}
	}

	result := gradeAnswer(q, resp)
	result.Turns = turns
	return result, nil
}

func gradeAnswer(q contracts.GoldenQuestion, resp *answer.Response) QuestionResult {
	hasCitationDocPage := len(resp.Citations) > 0
	for _, c := range resp.Citations {
		if c.DocID == "" || c.Page <= 0 {
			hasCitationDocPage = false
			break
		}
	}

	groundedStatus := resp.Status == "ok" || resp.Status == "not_found" || resp.Status == "needs_follow_up"
	grounded := hasCitationDocPage && groundedStatus

	followUpExpected := q.Intent == "follow_up_required"
	followUpOK := true
	if followUpExpected {
		followUpOK = resp.Status == "needs_follow_up"
	}

	var reasons []string
	if !hasCitationDocPage {
		reasons = append(reasons, "missing doc/page citation")
	}
	if !grounded {
		reasons = append(reasons, "answer not grounded")
	}
	if followUpExpected && !followUpOK {
		reasons = append(reasons, "follow-up expected but not returned")
	}

	return QuestionResult{
		QuestionID:         q.QuestionID,
		Doc:                q.Doc,
		Intent:             q.Intent,
		Question:           q.Question,
		AnswerStatus:       resp.Status,
		HasCitationDocPage: hasCitationDocPage,
		Grounded:           grounded,
		FollowUpExpected:   followUpExpected,
		FollowUpOK:         followUpOK,
		CitationCount:      len(resp.Citations),
		Passed:             len(reasons) == 0,
		Reasons:            reasons,
		FollowUpQuestion:   resp.FollowUpQuestion,
	}
}

func missingDocResult(q contracts.GoldenQuestion) QuestionResult {
	return QuestionResult{
		QuestionID:       q.QuestionID,
		Doc:              q.Doc,
		Intent:           q.Intent,
		Question:         q.Question,
		AnswerStatus:     "missing_doc",
		FollowUpExpected: q.Intent == "follow_up_required",
		Reasons:          []string{"document not available in catalog"},
	}
}
