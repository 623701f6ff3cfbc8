package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/mosaicwatch/internal/config"
	"github.com/Aman-CERP/mosaicwatch/internal/control"
	"github.com/Aman-CERP/mosaicwatch/internal/merge"
	"github.com/Aman-CERP/mosaicwatch/internal/raster"
	"github.com/Aman-CERP/mosaicwatch/internal/store"
	"github.com/Aman-CERP/mosaicwatch/pkg/version"
)

// SessionIDMCP is the session id merge history uses for merges requested
// through MCP.
const SessionIDMCP = "mcp"

// Controller reaches a running session. *control.Client implements it.
type Controller interface {
	IsRunning() bool
	Status(ctx context.Context) (*control.StatusResult, error)
	Stop(ctx context.Context, wait bool) (*control.StopResult, error)
}

var _ Controller = (*control.Client)(nil)

// Options configures a Server.
type Options struct {
	// Config supplies merge defaults. Defaults to config.NewConfig().
	Config *config.Config
	// Control reaches the running session. Nil means session tools always
	// report that no session is running.
	Control Controller
	// History, if set, records MCP merges and backs session_status when no
	// session is running.
	History store.HistoryStore
	Logger  *slog.Logger
}

// Server is the MCP server for mosaicwatch.
type Server struct {
	mcp     *mcp.Server
	config  *config.Config
	control Controller
	history store.HistoryStore
	logger  *slog.Logger
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name:        ToolMergeRasters,
		Description: "Merge tile rasters into an existing raster and write the result. Tiles are applied in order, so later tiles win where they overlap. Use policy 'warp' for a union mosaic or 'overwrite' to replace every band with the newest tile.",
	},
	{
		Name:        ToolRasterInfo,
		Description: "Describe a raster file: size, bands, data type, projection, geotransform, bounds and nodata.",
	},
	{
		Name:        ToolSessionStatus,
		Description: "Report the running folder-watch session: state, watched folder, current mosaic, counters and recent merges. Falls back to the last recorded session when none is running.",
	},
	{
		Name:        ToolStopSession,
		Description: "Ask the running folder-watch session to stop. The session finishes its current merge first.",
	},
}

// NewServer creates a new MCP server.
func NewServer(opts Options) (*Server, error) {
	if opts.Config == nil {
		opts.Config = config.NewConfig()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if _, err := merge.ParsePolicy(opts.Config.Merge.Policy); err != nil {
		return nil, err
	}

	s := &Server{
		config:  opts.Config,
		control: opts.Control,
		history: opts.History,
		logger:  opts.Logger,
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    version.Name,
			Version: version.Version,
		},
		nil, // capabilities are inferred from registered tools
	)
	s.registerTools()

	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return version.Name, version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return append([]ToolInfo(nil), tools...)
}

// CallTool invokes a tool by name with JSON-style arguments and returns
// the markdown rendering of its result.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case ToolMergeRasters:
		var in MergeRastersInput
		if err := decodeArgs(args, &in); err != nil {
			return "", err
		}
		out, err := s.mergeRasters(ctx, in)
		if err != nil {
			return "", MapError(err)
		}
		return FormatMergeResult(out), nil
	case ToolRasterInfo:
		var in RasterInfoInput
		if err := decodeArgs(args, &in); err != nil {
			return "", err
		}
		info, err := s.rasterInfo(in)
		if err != nil {
			return "", MapError(err)
		}
		return FormatRasterInfo(info), nil
	case ToolSessionStatus:
		var in SessionStatusInput
		if err := decodeArgs(args, &in); err != nil {
			return "", err
		}
		out, err := s.sessionStatus(ctx, in)
		if err != nil {
			return "", MapError(err)
		}
		return FormatSessionStatus(out), nil
	case ToolStopSession:
		var in StopSessionInput
		if err := decodeArgs(args, &in); err != nil {
			return "", err
		}
		out, err := s.stopSession(ctx, in)
		if err != nil {
			return "", MapError(err)
		}
		return FormatStopResult(out), nil
	default:
		return "", NewMethodNotFoundError(name)
	}
}

func decodeArgs(args map[string]any, into any) error {
	if len(args) == 0 {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return NewInvalidParamsError(err.Error())
	}
	if err := json.Unmarshal(data, into); err != nil {
		return NewInvalidParamsError(fmt.Sprintf("invalid arguments: %v", err))
	}
	return nil
}

func (s *Server) mergeRasters(ctx context.Context, in MergeRastersInput) (MergeRastersOutput, error) {
	if strings.TrimSpace(in.Existing) == "" {
		return MergeRastersOutput{}, NewInvalidParamsError("existing is required")
	}
	if strings.TrimSpace(in.Output) == "" {
		return MergeRastersOutput{}, NewInvalidParamsError("output is required")
	}
	if len(in.Tiles) == 0 {
		return MergeRastersOutput{}, NewInvalidParamsError("at least one tile is required")
	}

	var policy merge.Policy
	if in.Policy != "" {
		p, err := merge.ParsePolicy(in.Policy)
		if err != nil {
			return MergeRastersOutput{}, err
		}
		policy = p
	} else {
		policy, _ = merge.ParsePolicy(s.config.Merge.Policy)
	}

	existing := absPath(in.Existing)
	output := absPath(in.Output)
	tiles := make([]string, len(in.Tiles))
	for i, t := range in.Tiles {
		tiles[i] = absPath(t)
	}

	requestID := generateRequestID()
	s.logger.Info("merge_rasters started",
		slog.String("request_id", requestID),
		slog.String("existing", existing),
		slog.Int("tiles", len(tiles)),
		slog.String("output", output),
		slog.String("policy", string(policy)))

	m, err := merge.FromConfig(s.config.Merge, policy, s.logger)
	if err != nil {
		return MergeRastersOutput{}, err
	}

	start := time.Now()
	written, mergeErr := m.Merge(ctx, existing, tiles, output)
	duration := time.Since(start)
	s.recordMerge(ctx, policy, existing, output, tiles, duration, mergeErr)

	if mergeErr != nil {
		s.logger.Error("merge_rasters failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", mergeErr.Error()))
		return MergeRastersOutput{}, mergeErr
	}

	info, err := raster.Stat(written)
	if err != nil {
		return MergeRastersOutput{}, err
	}

	s.logger.Info("merge_rasters completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.String("output", written))

	return MergeRastersOutput{
		Output:     written,
		Policy:     string(policy),
		Tiles:      len(tiles),
		DurationMS: duration.Milliseconds(),
		Raster:     info,
	}, nil
}

func (s *Server) recordMerge(ctx context.Context, policy merge.Policy, existing, output string, tiles []string, d time.Duration, mergeErr error) {
	if s.history == nil {
		return
	}
	rec := store.MergeRecord{
		SessionID: SessionIDMCP,
		Policy:    string(policy),
		Existing:  existing,
		Output:    output,
		Tiles:     tiles,
		Duration:  d,
		Status:    store.MergeStatusOK,
		CreatedAt: time.Now(),
	}
	if mergeErr != nil {
		rec.Status = store.MergeStatusFailed
		rec.Error = mergeErr.Error()
	}
	if _, err := s.history.RecordMerge(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Warn("failed to record merge", slog.String("error", err.Error()))
	}
}

func (s *Server) rasterInfo(in RasterInfoInput) (raster.Info, error) {
	if strings.TrimSpace(in.Path) == "" {
		return raster.Info{}, NewInvalidParamsError("path is required")
	}
	return raster.Stat(absPath(in.Path))
}

func (s *Server) sessionStatus(ctx context.Context, in SessionStatusInput) (SessionStatusOutput, error) {
	limit := clampLimit(in.History, 5, 1, 50)

	if s.control != nil && s.control.IsRunning() {
		res, err := s.control.Status(ctx)
		if err == nil {
			out := SessionStatusOutput{
				Running: true,
				Source:  "live",
				PID:     res.PID,
				Uptime:  res.Uptime,
				Session: liveSessionView(res.Session),
			}
			out.Merges = s.recentMerges(ctx, res.Session.ID, limit)
			return out, nil
		}
		var rpcErr *control.Error
		if !errors.As(err, &rpcErr) || rpcErr.Code != control.ErrCodeNoSession {
			return SessionStatusOutput{}, err
		}
	}

	if s.history == nil {
		return SessionStatusOutput{Source: "none"}, nil
	}
	sessions, err := s.history.ListSessions(ctx, 1)
	if err != nil {
		return SessionStatusOutput{}, err
	}
	if len(sessions) == 0 {
		return SessionStatusOutput{Source: "none"}, nil
	}
	return SessionStatusOutput{
		Source:  "history",
		Session: recordedSessionView(sessions[0]),
		Merges:  s.recentMerges(ctx, sessions[0].ID, limit),
	}, nil
}

func (s *Server) recentMerges(ctx context.Context, sessionID string, limit int) []MergeView {
	if s.history == nil {
		return nil
	}
	records, err := s.history.ListMerges(ctx, sessionID, limit)
	if err != nil {
		s.logger.Warn("failed to list merges",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
		return nil
	}
	return mergeViews(records)
}

func (s *Server) stopSession(ctx context.Context, in StopSessionInput) (StopSessionOutput, error) {
	if s.control == nil || !s.control.IsRunning() {
		return StopSessionOutput{}, ErrNoSession
	}
	res, err := s.control.Stop(ctx, in.Wait)
	if err != nil {
		return StopSessionOutput{}, err
	}
	s.logger.Info("stop_session requested",
		slog.Bool("wait", in.Wait),
		slog.String("state", res.State))
	return StopSessionOutput{State: res.State, StopReason: res.StopReason}, nil
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	describe := func(name string) *mcp.Tool {
		for _, t := range tools {
			if t.Name == name {
				return &mcp.Tool{Name: t.Name, Description: t.Description}
			}
		}
		panic("unknown tool " + name)
	}

	mcp.AddTool(s.mcp, describe(ToolMergeRasters), s.mcpMergeRastersHandler)
	mcp.AddTool(s.mcp, describe(ToolRasterInfo), s.mcpRasterInfoHandler)
	mcp.AddTool(s.mcp, describe(ToolSessionStatus), s.mcpSessionStatusHandler)
	mcp.AddTool(s.mcp, describe(ToolStopSession), s.mcpStopSessionHandler)

	s.logger.Debug("MCP tools registered", slog.Int("count", len(tools)))
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func (s *Server) mcpMergeRastersHandler(ctx context.Context, _ *mcp.CallToolRequest, in MergeRastersInput) (
	*mcp.CallToolResult,
	MergeRastersOutput,
	error,
) {
	out, err := s.mergeRasters(ctx, in)
	if err != nil {
		return nil, MergeRastersOutput{}, MapError(err)
	}
	return textResult(FormatMergeResult(out)), out, nil
}

func (s *Server) mcpRasterInfoHandler(_ context.Context, _ *mcp.CallToolRequest, in RasterInfoInput) (
	*mcp.CallToolResult,
	raster.Info,
	error,
) {
	info, err := s.rasterInfo(in)
	if err != nil {
		return nil, raster.Info{}, MapError(err)
	}
	return textResult(FormatRasterInfo(info)), info, nil
}

func (s *Server) mcpSessionStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, in SessionStatusInput) (
	*mcp.CallToolResult,
	SessionStatusOutput,
	error,
) {
	out, err := s.sessionStatus(ctx, in)
	if err != nil {
		return nil, SessionStatusOutput{}, MapError(err)
	}
	return textResult(FormatSessionStatus(out)), out, nil
}

func (s *Server) mcpStopSessionHandler(ctx context.Context, _ *mcp.CallToolRequest, in StopSessionInput) (
	*mcp.CallToolResult,
	StopSessionOutput,
	error,
) {
	out, err := s.stopSession(ctx, in)
	if err != nil {
		return nil, StopSessionOutput{}, MapError(err)
	}
	return textResult(FormatStopResult(out)), out, nil
}

// Serve runs the server on the given transport until ctx is done.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("Starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio", "":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	return uuid.NewString()[:8]
}
