// Package mcp exposes the scenario catalog and runner as MCP tools so an
// agent can list, inspect and run verification scenarios.
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kuitang/uiverify/internal/logutil"
	"github.com/kuitang/uiverify/internal/obs"
	"github.com/kuitang/uiverify/internal/ratelimit"
)

// Server wraps the MCP server and its Streamable HTTP handler.
type Server struct {
	mcpServer   *mcp.Server
	handler     *Handler
	httpHandler http.Handler
	limiter     *ratelimit.RateLimiter
}

const (
	mcpDebugBodyLogLimitBytes = 8 * 1024
	maxMCPBodyBytes           = 1 << 20
)

type mcpResponseLogger struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
	wroteBody   bool
	body        []byte
	truncated   bool
}

func newMCPResponseLogger(w http.ResponseWriter) *mcpResponseLogger {
	return &mcpResponseLogger{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
		body:           make([]byte, 0, mcpDebugBodyLogLimitBytes),
	}
}

func (w *mcpResponseLogger) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.statusCode = code
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *mcpResponseLogger) Write(p []byte) (int, error) {
	w.wroteHeader = true
	w.wroteBody = true
	if len(w.body) < mcpDebugBodyLogLimitBytes {
		remaining := mcpDebugBodyLogLimitBytes - len(w.body)
		if len(p) <= remaining {
			w.body = append(w.body, p...)
		} else {
			w.body = append(w.body, p[:remaining]...)
			w.truncated = true
		}
	} else {
		w.truncated = true
	}
	return w.ResponseWriter.Write(p)
}

func (w *mcpResponseLogger) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func mcpDebugEnabled() bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv("DEBUG")))
	switch v {
	case "1", "true", "yes", "on", "debug":
		return true
	default:
		return false
	}
}

func formatBodyForLog(b []byte, truncated bool) string {
	if len(b) == 0 {
		return ""
	}
	text := logutil.Preview(logutil.RedactJSON(string(b)), mcpDebugBodyLogLimitBytes)
	if truncated && !strings.HasSuffix(text, "[truncated]") {
		return text + " [truncated]"
	}
	return text
}

// formatMCPHeadersForLog renders headers in key order with sensitive values redacted.
func formatMCPHeadersForLog(h http.Header) string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		value := strings.Join(h.Values(k), ",")
		lower := strings.ToLower(k)
		if logutil.Sensitive(k) || strings.Contains(lower, "session") {
			value = logutil.Redacted
		}
		parts = append(parts, fmt.Sprintf("%s=%q", k, value))
	}
	return strings.Join(parts, " ")
}

// isASCII reports whether s is non-blank printable ASCII.
func isASCII(s string) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return false
		}
	}
	return true
}

// NewServer creates the MCP server with the scenario tools registered.
func NewServer(handler *Handler) *Server {
	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "uiverify",
			Version: "1.0.0",
		},
		nil,
	)

	for _, tool := range ToolDefinitions() {
		mcp.AddTool(mcpServer, tool, handler.createToolHandler(tool.Name))
	}
	registerPrompts(mcpServer)

	// Runs are independent of one another, so no session state is kept
	// between requests and the initialize handshake is skipped.
	httpHandler := mcp.NewStreamableHTTPHandler(
		func(*http.Request) *mcp.Server { return mcpServer },
		&mcp.StreamableHTTPOptions{
			JSONResponse: true,
			Stateless:    true,
		},
	)

	return &Server{
		mcpServer:   mcpServer,
		handler:     handler,
		httpHandler: httpHandler,
	}
}

// WithRateLimit limits requests per client once the server is started.
func (s *Server) WithRateLimit(rl *ratelimit.RateLimiter) *Server {
	s.limiter = rl
	return s
}

// Routes returns the HTTP routes: /mcp and /health.
func (s *Server) Routes() http.Handler {
	var endpoint http.Handler = s
	if s.limiter != nil {
		endpoint = ratelimit.RateLimitMiddleware(s.limiter, nil)(endpoint)
	}
	mux := http.NewServeMux()
	mux.Handle("/mcp", obs.RequestContextMiddleware(obs.AccessLogMiddleware("mcp", endpoint)))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

func writeJSONRPCError(w http.ResponseWriter, status, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(MCPErrorResponse(nil, code, message))
}

// ServeHTTP implements http.Handler for the Streamable HTTP transport.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Mcp-Session-Id, Mcp-Protocol-Version, Authorization")
	w.Header().Set("Access-Control-Allow-Methods", "POST, DELETE, OPTIONS")

	switch r.Method {
	case http.MethodOptions:
		w.Header().Set("Access-Control-Max-Age", "86400")
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPost, http.MethodDelete:
	default:
		// stateless: there is no server-initiated stream to GET
		w.Header().Set("Allow", "POST, DELETE, OPTIONS")
		writeJSONRPCError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	logger := obs.From(r.Context()).With("pkg", "mcp")
	debug := mcpDebugEnabled()

	var reqBody []byte
	if r.Body != nil && r.Method == http.MethodPost {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxMCPBodyBytes+1))
		if err != nil {
			logger.Error("mcp_body_read_failed", "error", err.Error())
			writeJSONRPCError(w, http.StatusBadRequest, ErrorCodeParseError, "failed to read request body")
			return
		}
		if len(body) > maxMCPBodyBytes {
			writeJSONRPCError(w, http.StatusRequestEntityTooLarge, ErrorCodeInvalidRequest, "request body too large")
			return
		}
		reqBody = body
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	logger.Info("mcp_request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr, "ua", r.UserAgent())
	if debug {
		logger.Debug("mcp_request_debug", "headers", formatMCPHeadersForLog(r.Header), "body", formatBodyForLog(reqBody, false))
	}

	respLogger := newMCPResponseLogger(w)
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("mcp_handler_panic", "panic", fmt.Sprint(rec))
				if !respLogger.wroteHeader {
					writeJSONRPCError(respLogger, http.StatusInternalServerError, ErrorCodeInternalError, "Internal server error")
				}
			}
		}()
		s.httpHandler.ServeHTTP(respLogger, r)
	}()

	if !respLogger.wroteHeader {
		writeJSONRPCError(respLogger, http.StatusInternalServerError, ErrorCodeInternalError, "MCP handler returned without writing response")
	}

	if debug {
		logger.Debug("mcp_response_debug", "status", respLogger.statusCode, "body", formatBodyForLog(respLogger.body, respLogger.truncated))
	}
	if respLogger.statusCode >= http.StatusBadRequest {
		logger.Error("mcp_request_failed",
			"method", r.Method,
			"status", respLogger.statusCode,
			"response", formatBodyForLog(respLogger.body, respLogger.truncated),
		)
	}
}

// Start serves the MCP endpoint at /mcp until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// scenario_run blocks until every cell finished
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		obs.Pkg("mcp").Info("mcp_listening", "addr", addr, "path", "/mcp")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
