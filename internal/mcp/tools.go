package mcp

// AskInput is the input schema for the ask tool.
type AskInput struct {
	Query   string `json:"query" jsonschema:"the question to answer from the ingested manuals"`
	DocID   string `json:"doc_id,omitempty" jsonschema:"restrict the answer to one manual by document id"`
	TopN    int    `json:"top_n,omitempty" jsonschema:"number of evidence hits to retrieve, default 6"`
	Agentic bool   `json:"agentic,omitempty" jsonschema:"run the agentic plan/execute graph instead of the deterministic path"`
}

// AskOutput is the output schema for the ask tool.
type AskOutput struct {
	Answer           string           `json:"answer" jsonschema:"the grounded answer text"`
	Status           string           `json:"status" jsonschema:"ok, not_found, needs_follow_up, or partial"`
	Confidence       string           `json:"confidence" jsonschema:"high, medium, or low"`
	FollowUpQuestion string           `json:"follow_up_question,omitempty" jsonschema:"clarifying question when the query is ambiguous"`
	Citations        []CitationOutput `json:"citations" jsonschema:"evidence citations backing the answer"`
	Warnings         []string         `json:"warnings,omitempty" jsonschema:"pipeline warnings for this answer"`
}

// CitationOutput is one citation in tool output.
type CitationOutput struct {
	DocID    string `json:"doc_id" jsonschema:"document id"`
	Page     int    `json:"page" jsonschema:"1-based page number"`
	FigureID string `json:"figure_id,omitempty" jsonschema:"figure id when the evidence is a figure"`
	TableID  string `json:"table_id,omitempty" jsonschema:"table id when the evidence is a table"`
	Label    string `json:"label" jsonschema:"human-readable citation label"`
}

// SearchEvidenceInput is the input schema for the search_evidence tool.
type SearchEvidenceInput struct {
	Query  string `json:"query" jsonschema:"the evidence retrieval query"`
	DocID  string `json:"doc_id,omitempty" jsonschema:"restrict retrieval to one manual by document id"`
	TopN   int    `json:"top_n,omitempty" jsonschema:"number of hits to return, default 6"`
	Rerank bool   `json:"rerank,omitempty" jsonschema:"run the LLM reranking stage over the candidate head"`
}

// SearchEvidenceOutput is the output schema for the search_evidence tool.
type SearchEvidenceOutput struct {
	Intent  string                 `json:"intent" jsonschema:"detected query intent: table, diagram, or general"`
	Results []EvidenceResultOutput `json:"results" jsonschema:"ranked evidence hits"`
}

// EvidenceResultOutput is one ranked evidence hit in tool output.
type EvidenceResultOutput struct {
	ChunkID        string   `json:"chunk_id" jsonschema:"chunk id of the evidence"`
	DocID          string   `json:"doc_id" jsonschema:"document id"`
	Page           int      `json:"page" jsonschema:"1-based page number"`
	ContentType    string   `json:"content_type" jsonschema:"chunk content type"`
	Score          float64  `json:"score" jsonschema:"fused relevance score between 0 and 1"`
	Snippet        string   `json:"snippet" jsonschema:"display excerpt of the evidence"`
	MatchedAnchors []string `json:"matched_anchors,omitempty" jsonschema:"query anchor terms found in the chunk"`
}

// IngestStatusInput is the input schema for the ingest_status tool.
type IngestStatusInput struct {
	JobID string `json:"job_id,omitempty" jsonschema:"inspect one job; omit to list recent jobs"`
}

// IngestStatusOutput is the output schema for the ingest_status tool.
type IngestStatusOutput struct {
	Jobs []JobOutput `json:"jobs" jsonschema:"ingestion jobs, newest first"`
}

// JobOutput is one ingestion job in tool output.
type JobOutput struct {
	ID             string `json:"id" jsonschema:"job id"`
	DocID          string `json:"doc_id" jsonschema:"document id being ingested"`
	Status         string `json:"status" jsonschema:"queued, running, completed, or failed"`
	Stage          string `json:"stage,omitempty" jsonschema:"current pipeline stage"`
	ProcessedPages int    `json:"processed_pages" jsonschema:"pages processed so far"`
	TotalPages     int    `json:"total_pages" jsonschema:"total pages in the document"`
	TotalChunks    int    `json:"total_chunks,omitempty" jsonschema:"chunks persisted when completed"`
	Error          string `json:"error,omitempty" jsonschema:"failure message when the job failed"`
}
