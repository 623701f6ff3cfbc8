// Package mcp exposes mosaicwatch over the Model Context Protocol so AI
// clients can merge rasters, inspect them and control a running session.
package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/Aman-CERP/mosaicwatch/internal/control"
	mwerrors "github.com/Aman-CERP/mosaicwatch/internal/errors"
)

// Custom MCP error codes for mosaicwatch.
const (
	// ErrCodeNoSession indicates no session is running.
	ErrCodeNoSession = -32001

	// ErrCodeMergeFailed indicates a merge could not produce an output.
	ErrCodeMergeFailed = -32002

	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout = -32003

	// ErrCodeFileNotFound indicates an input raster does not exist.
	ErrCodeFileNotFound = -32004

	// ErrCodeFileLocked indicates the output is being written by another process.
	ErrCodeFileLocked = -32005

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Sentinel errors for internal use.
var (
	// ErrNoSession indicates no session answers on the control socket.
	ErrNoSession = errors.New("no running session")

	// ErrToolNotFound indicates the requested tool does not exist.
	ErrToolNotFound = errors.New("tool not found")

	// ErrInvalidParams indicates invalid parameters were provided.
	ErrInvalidParams = errors.New("invalid parameters")
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}
	if e, ok := mwerrors.As(err); ok {
		return mapStructuredError(e)
	}

	var rpcErr *control.Error
	if errors.As(err, &rpcErr) && rpcErr.Code == control.ErrCodeNoSession {
		return &MCPError{Code: ErrCodeNoSession, Message: "No session is attached to the control socket."}
	}

	switch {
	case errors.Is(err, ErrNoSession):
		return &MCPError{
			Code:    ErrCodeNoSession,
			Message: "No mosaicwatch session is running. Start one with 'mosaicwatch watch'.",
		}
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	case errors.Is(err, ErrToolNotFound):
		return &MCPError{Code: ErrCodeMethodNotFound, Message: "Tool not found."}
	case errors.Is(err, ErrInvalidParams):
		return &MCPError{Code: ErrCodeInvalidParams, Message: "Invalid parameters."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{
		Code:    ErrCodeInvalidParams,
		Message: msg,
	}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}

// mapStructuredError converts a mosaicwatch error, keeping its path and
// suggestion in the message.
func mapStructuredError(e *mwerrors.Error) *MCPError {
	message := e.Error()
	if e.Suggestion != "" {
		message = fmt.Sprintf("%s. %s", message, e.Suggestion)
	}

	code := ErrCodeInternalError
	switch e.Category {
	case mwerrors.CategoryValidation:
		code = ErrCodeInvalidParams
	case mwerrors.CategoryMerge:
		switch e.Code {
		case mwerrors.ErrCodeSourceNotFound:
			code = ErrCodeFileNotFound
		default:
			code = ErrCodeMergeFailed
		}
	case mwerrors.CategoryIO:
		switch e.Code {
		case mwerrors.ErrCodeFileNotFound:
			code = ErrCodeFileNotFound
		case mwerrors.ErrCodeFileLocked:
			code = ErrCodeFileLocked
		}
	}
	return &MCPError{Code: code, Message: message}
}
