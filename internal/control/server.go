package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"
)

// Server answers control requests on a unix socket. Each connection carries
// one request and one response.
type Server struct {
	socketPath string
	timeout    time.Duration
	logger     *slog.Logger

	mu       sync.Mutex
	handler  Handler
	listener net.Listener
	started  time.Time
	shutdown bool
	wg       sync.WaitGroup
}

// NewServer creates a server for cfg.SocketPath.
func NewServer(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}
	return &Server{
		socketPath: cfg.SocketPath,
		timeout:    timeout,
		logger:     logger,
	}
}

// SetHandler attaches the session the server answers for.
func (s *Server) SetHandler(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// ListenAndServe serves until ctx is cancelled or Close is called. It
// removes the socket on exit. A socket left behind by a crashed process is
// replaced; a socket with a live server behind it is an error.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if conn, err := net.DialTimeout("unix", s.socketPath, 200*time.Millisecond); err == nil {
		_ = conn.Close()
		return fmt.Errorf("another session is listening on %s", s.socketPath)
	}
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.socketPath, err)
	}

	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		_ = listener.Close()
		_ = os.Remove(s.socketPath)
		return nil
	}
	s.listener = listener
	s.started = time.Now()
	s.mu.Unlock()

	defer func() {
		_ = listener.Close()
		_ = os.Remove(s.socketPath)
	}()

	s.logger.Info("control socket listening", slog.String("socket", s.socketPath))

	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.isShutdown() {
				break
			}
			s.logger.Error("control accept failed", slog.String("error", err.Error()))
			if errors.Is(err, net.ErrClosed) {
				break
			}
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.wg.Wait()
	return ctx.Err()
}

func (s *Server) isShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(s.timeout)); err != nil {
		s.logger.Warn("failed to set connection deadline", slog.String("error", err.Error()))
	}

	encoder := json.NewEncoder(conn)
	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		_ = encoder.Encode(NewErrorResponse("", ErrCodeParseError, "failed to parse request"))
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_ = encoder.Encode(s.handleRequest(reqCtx, req))
}

func (s *Server) handleRequest(ctx context.Context, req Request) Response {
	if req.JSONRPC != "2.0" {
		return NewErrorResponse(req.ID, ErrCodeInvalidRequest, "jsonrpc must be \"2.0\"")
	}

	s.mu.Lock()
	h, started := s.handler, s.started
	s.mu.Unlock()

	switch req.Method {
	case MethodPing:
		return NewSuccessResponse(req.ID, PingResult{Pong: true})

	case MethodStatus:
		if h == nil {
			return NewErrorResponse(req.ID, ErrCodeNoSession, "no session attached")
		}
		return NewSuccessResponse(req.ID, StatusResult{
			PID:     os.Getpid(),
			Uptime:  time.Since(started).Round(time.Second).String(),
			Session: h.Status(),
		})

	case MethodStop:
		if h == nil {
			return NewErrorResponse(req.ID, ErrCodeNoSession, "no session attached")
		}
		var params StopParams
		if err := decodeParams(req.Params, &params); err != nil {
			return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
		}
		s.logger.Info("stop requested over control socket", slog.Bool("wait", params.Wait))
		st, err := h.Stop(ctx, params.Wait)
		if err != nil {
			return NewErrorResponse(req.ID, ErrCodeInternalError, err.Error())
		}
		return NewSuccessResponse(req.ID, StopResult{State: st.State, StopReason: st.StopReason})

	default:
		return NewErrorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

// decodeParams re-decodes the generic params value into out.
func decodeParams(params any, out any) error {
	if params == nil {
		return nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode params: %w", err)
	}
	return nil
}

// Close stops accepting connections. It is safe to call more than once.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown = true
	if s.listener != nil {
		err := s.listener.Close()
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		return err
	}
	return nil
}
