// Package mcp exposes the knowledge base to AI clients as Model Context
// Protocol tools over stdio.
package mcp

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/Aman-CERP/pagemind/internal/errors"
)

// MCP error codes.
const (
	ErrCodeNotConfigured = -32001
	ErrCodeNoMatches     = -32002
	ErrCodeUpstream      = -32003
	ErrCodeTimeout       = -32004

	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError is a protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts an application error to an MCPError. The suggestion,
// when present, is appended so the client can show it.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	}

	var ae *apperrors.AppError
	if !errors.As(err, &ae) {
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}

	message := ae.Message
	if ae.Suggestion != "" {
		message = ae.Message + " " + ae.Suggestion
	}

	switch {
	case ae.Code == apperrors.ErrCodeQueryEmpty || ae.Code == apperrors.ErrCodeInvalidInput:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case ae.Code == apperrors.ErrCodeNoMatches || ae.Code == apperrors.ErrCodeNothingToAsk:
		return &MCPError{Code: ErrCodeNoMatches, Message: message}
	case ae.Category == apperrors.CategoryConfig:
		return &MCPError{Code: ErrCodeNotConfigured, Message: message}
	case ae.Category == apperrors.CategoryLLM || ae.Category == apperrors.CategoryFetch:
		return &MCPError{Code: ErrCodeUpstream, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}

// NewInvalidParamsError creates an error for invalid parameters.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError creates an error for an unknown tool.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("Tool '%s' not found.", name)}
}
