package control

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Aman-CERP/mosaicwatch/internal/monitor"
	"github.com/Aman-CERP/mosaicwatch/internal/project"
)

// JSON-RPC 2.0 method names.
const (
	MethodPing   = "ping"
	MethodStatus = "status"
	MethodStop   = "stop"
)

// Standard JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// ErrCodeNoSession is returned when the server has no session attached.
const ErrCodeNoSession = -32001

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      string `json:"id"`
}

// Response is a JSON-RPC 2.0 response. Result is kept raw so the client can
// decode it into the type the method returns.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      string          `json:"id"`
}

// Error is a JSON-RPC 2.0 error.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (code: %d)", e.Message, e.Code)
}

// NewSuccessResponse creates a successful response.
func NewSuccessResponse(id string, result any) Response {
	data, err := json.Marshal(result)
	if err != nil {
		return NewErrorResponse(id, ErrCodeInternalError, "failed to encode result: "+err.Error())
	}
	return Response{JSONRPC: "2.0", Result: data, ID: id}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id string, code int, message string) Response {
	return Response{
		JSONRPC: "2.0",
		Error:   &Error{Code: code, Message: message},
		ID:      id,
	}
}

// PingResult is the response to ping.
type PingResult struct {
	Pong bool `json:"pong"`
}

// StopParams are the parameters of stop.
type StopParams struct {
	// Wait blocks the response until the session has stopped.
	Wait bool `json:"wait,omitempty"`
}

// StopResult is the response to stop.
type StopResult struct {
	State      string `json:"state"`
	StopReason string `json:"stop_reason,omitempty"`
}

// StatusResult is the response to status.
type StatusResult struct {
	PID     int           `json:"pid"`
	Uptime  string        `json:"uptime"`
	Session SessionStatus `json:"session"`
}

// SessionStatus is the wire form of a session.
type SessionStatus struct {
	ID            string        `json:"id"`
	Name          string        `json:"name,omitempty"`
	State         string        `json:"state"`
	StopReason    string        `json:"stop_reason,omitempty"`
	WatchedDir    string        `json:"watched_dir"`
	BaseRaster    string        `json:"base_raster,omitempty"`
	Output        string        `json:"output"`
	CurrentMosaic string        `json:"current_mosaic,omitempty"`
	Strategy      string        `json:"strategy"`
	Policy        string        `json:"policy"`
	Batches       int           `json:"batches"`
	Tiles         int           `json:"tiles"`
	Errors        int           `json:"errors"`
	LastError     string        `json:"last_error,omitempty"`
	StartedAt     time.Time     `json:"started_at"`
	LastActivity  time.Time     `json:"last_activity"`
	StoppedAt     time.Time     `json:"stopped_at"`
	Layers        []LayerStatus `json:"layers,omitempty"`
}

// LayerStatus is the wire form of a project layer.
type LayerStatus struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Source string `json:"source"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Bands  int    `json:"bands"`
}

// NewSessionStatus converts a loop snapshot and the current layers.
func NewSessionStatus(s monitor.SessionState, layers []project.Layer) SessionStatus {
	st := SessionStatus{
		ID:            s.ID,
		Name:          s.Config.Name,
		State:         s.State.String(),
		StopReason:    string(s.StopReason),
		WatchedDir:    s.Config.WatchedDir,
		BaseRaster:    s.Config.BaseRaster,
		Output:        s.Config.OutputPath,
		CurrentMosaic: s.CurrentMosaic,
		Strategy:      string(s.Config.Strategy),
		Policy:        string(s.Config.Policy),
		Batches:       s.Batches,
		Tiles:         s.Tiles,
		Errors:        s.Errors,
		LastError:     s.LastError,
		StartedAt:     s.StartedAt,
		LastActivity:  s.LastActivity,
		StoppedAt:     s.StoppedAt,
	}
	for _, l := range layers {
		st.Layers = append(st.Layers, LayerStatus{
			ID:     l.ID,
			Name:   l.Name,
			Source: l.Source,
			Width:  l.Width,
			Height: l.Height,
			Bands:  l.Bands,
		})
	}
	return st
}
