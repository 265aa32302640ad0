// Package mcp exposes the QA pipeline over the Model Context Protocol:
// ask, search_evidence, and ingest_status tools for AI clients.
package mcp

import (
	"errors"
	"fmt"

	qaerrors "github.com/fieldscope/manualqa/internal/errors"
)

// MCP error codes. The -320xx block is service specific; the rest are
// standard JSON-RPC codes.
const (
	ErrCodeRetrievalFailed = -32001
	ErrCodeModelOffline    = -32002
	ErrCodeContractBroken  = -32003

	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError is an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError builds a -32602 error.
func NewInvalidParamsError(message string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: message}
}

// NewMethodNotFoundError builds a -32601 error for an unknown tool.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: "tool not found: " + name}
}

// MapError converts pipeline errors to MCP errors, keyed by category.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	var qaErr *qaerrors.QAError
	if errors.As(err, &qaErr) {
		switch qaErr.Category {
		case qaerrors.CategoryInput:
			return &MCPError{Code: ErrCodeInvalidParams, Message: qaErr.Message}
		case qaerrors.CategoryRetrieval:
			return &MCPError{Code: ErrCodeRetrievalFailed, Message: qaErr.Message}
		case qaerrors.CategoryEmbed:
			return &MCPError{Code: ErrCodeModelOffline, Message: qaErr.Message}
		case qaerrors.CategoryContract:
			return &MCPError{Code: ErrCodeContractBroken, Message: qaErr.Message}
		}
	}
	return &MCPError{Code: ErrCodeInternalError, Message: err.Error()}
}
