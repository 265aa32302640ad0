package errors

import (
	"fmt"
)

// QAError is the structured error type for the manualqa pipeline.
// It carries enough context for logging, retry decisions, and user-facing
// suggestions without forcing callers to parse message strings.
type QAError struct {
	// Code is the unique error code (e.g., "ERR_301_EMBED_UNAVAILABLE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Ingest, Retrieval, ...).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *QAError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *QAError) Unwrap() error {
	return e.Cause
}

// Is matches errors by code so errors.Is works across wrap layers.
func (e *QAError) Is(target error) bool {
	if t, ok := target.(*QAError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *QAError) WithDetail(key, value string) *QAError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *QAError) WithSuggestion(suggestion string) *QAError {
	e.Suggestion = suggestion
	return e
}

// New creates a new QAError with the given code and message.
// Category, severity, and the retryable flag are derived from the code.
func New(code string, message string, cause error) *QAError {
	return &QAError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a QAError from an existing error.
func Wrap(code string, err error) *QAError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *QAError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IngestError creates an ingestion-related error.
func IngestError(message string, cause error) *QAError {
	return New(ErrCodeIngestFailed, message, cause)
}

// ParseError creates a document-parsing error.
func ParseError(message string, cause error) *QAError {
	return New(ErrCodeParseFailed, message, cause)
}

// EmbedError creates an embedding-provider error. Typically retryable.
func EmbedError(message string, cause error) *QAError {
	return New(ErrCodeEmbedUnavailable, message, cause)
}

// RetrievalError creates a retrieval-related error.
func RetrievalError(message string, cause error) *QAError {
	return New(ErrCodeRetrievalFailed, message, cause)
}

// AgentError creates an agent-loop error.
func AgentError(message string, cause error) *QAError {
	return New(ErrCodeAgentFailed, message, cause)
}

// ContractError creates a data-contract validation error.
func ContractError(message string, cause error) *QAError {
	return New(ErrCodeContractInvalid, message, cause)
}

// ValidationError creates an input-validation error.
func ValidationError(message string, cause error) *QAError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *QAError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable reports whether an error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if qe, ok := err.(*QAError); ok {
		return qe.Retryable
	}
	return false
}

// IsFatal reports whether an error has fatal severity.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if qe, ok := err.(*QAError); ok {
		return qe.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a QAError.
// Returns the empty string for other error types.
func GetCode(err error) string {
	if qe, ok := err.(*QAError); ok {
		return qe.Code
	}
	return ""
}

// GetCategory extracts the category from a QAError.
func GetCategory(err error) Category {
	if qe, ok := err.(*QAError); ok {
		return qe.Category
	}
	return ""
}

// Kind returns a short name for the concrete error type, used when a
// surface needs to report what failed without leaking the full chain.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	if qe, ok := err.(*QAError); ok {
		return string(qe.Category) + "Error"
	}
	return fmt.Sprintf("%T", err)
}
