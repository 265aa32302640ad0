package errors

import "strings"

// Category groups errors by pipeline stage.
type Category string

const (
	CategoryConfig    Category = "Config"
	CategoryIO        Category = "IO"
	CategoryIngest    Category = "Ingest"
	CategoryParse     Category = "Parse"
	CategoryEmbed     Category = "Embed"
	CategoryRetrieval Category = "Retrieval"
	CategoryAgent     Category = "Agent"
	CategoryContract  Category = "Contract"
	CategoryInput     Category = "Input"
	CategoryInternal  Category = "Internal"
)

// Severity indicates how the caller should react.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeverityFatal   Severity = "fatal"
)

// Error codes. The numeric block encodes the category:
// 1xx config/input, 2xx io/parse, 3xx embed/network, 4xx retrieval,
// 5xx agent, 6xx contracts, 9xx internal.
const (
	ErrCodeConfigInvalid    = "ERR_101_CONFIG_INVALID"
	ErrCodeInvalidInput     = "ERR_102_INVALID_INPUT"
	ErrCodeFileNotFound     = "ERR_201_FILE_NOT_FOUND"
	ErrCodeParseFailed      = "ERR_202_PARSE_FAILED"
	ErrCodeIngestFailed     = "ERR_203_INGEST_FAILED"
	ErrCodeAssetWriteFailed = "ERR_204_ASSET_WRITE_FAILED"
	ErrCodeEmbedUnavailable = "ERR_301_EMBED_UNAVAILABLE"
	ErrCodeLLMUnavailable   = "ERR_302_LLM_UNAVAILABLE"
	ErrCodeVisionFailed     = "ERR_303_VISION_FAILED"
	ErrCodeLLMBadOutput     = "ERR_304_LLM_BAD_OUTPUT"
	ErrCodeRetrievalFailed  = "ERR_401_RETRIEVAL_FAILED"
	ErrCodeIndexCorrupt     = "ERR_402_INDEX_CORRUPT"
	ErrCodeAgentFailed      = "ERR_501_AGENT_FAILED"
	ErrCodePlanInvalid      = "ERR_502_PLAN_INVALID"
	ErrCodeToolFailed       = "ERR_503_TOOL_FAILED"
	ErrCodeContractInvalid  = "ERR_601_CONTRACT_INVALID"
	ErrCodeInternal         = "ERR_901_INTERNAL"
)

func categoryFromCode(code string) Category {
	switch {
	case strings.HasPrefix(code, "ERR_101"):
		return CategoryConfig
	case strings.HasPrefix(code, "ERR_102"):
		return CategoryInput
	case strings.HasPrefix(code, "ERR_201"):
		return CategoryIO
	case strings.HasPrefix(code, "ERR_202"):
		return CategoryParse
	case strings.HasPrefix(code, "ERR_203"), strings.HasPrefix(code, "ERR_204"):
		return CategoryIngest
	case strings.HasPrefix(code, "ERR_3"):
		return CategoryEmbed
	case strings.HasPrefix(code, "ERR_4"):
		return CategoryRetrieval
	case strings.HasPrefix(code, "ERR_5"):
		return CategoryAgent
	case strings.HasPrefix(code, "ERR_6"):
		return CategoryContract
	default:
		return CategoryInternal
	}
}

func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeConfigInvalid, ErrCodeIndexCorrupt:
		return SeverityFatal
	case ErrCodeVisionFailed, ErrCodeToolFailed:
		return SeverityWarning
	default:
		return SeverityError
	}
}

func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeEmbedUnavailable, ErrCodeLLMUnavailable, ErrCodeVisionFailed:
		return true
	default:
		return false
	}
}
