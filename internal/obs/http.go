package obs

import (
	"net/http"
	"strings"
	"time"
)

// statusWriter records the status and size of a response. Flush is forwarded
// so Streamable HTTP responses still stream through it.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += int64(n)
	return n, err
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// RequestContextMiddleware attaches a request id (X-Request-Id, else the W3C
// trace id, else a fresh one) and the MCP protocol headers to the request
// context, and echoes the id back.
func RequestContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := extractTraceID(r.Header.Get("traceparent"))
		requestID := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		switch {
		case requestID != "":
		case traceID != "":
			requestID = traceID
		default:
			requestID = newRequestID()
		}
		w.Header().Set("X-Request-Id", requestID)

		ctx := WithCorrelation(r.Context(), Correlation{
			RequestID:          requestID,
			TraceID:            traceID,
			MCPProtocolVersion: r.Header.Get("mcp-protocol-version"),
			MCPSessionID:       r.Header.Get("mcp-session-id"),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AccessLogMiddleware emits one http_access event per request. Rejected
// requests (4xx/5xx) log at warn so throttled agents stand out.
func AccessLogMiddleware(pkg string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)
		if sw.status == 0 {
			sw.status = http.StatusOK
		}

		logger := From(r.Context()).With("pkg", pkg)
		log := logger.Debug
		if sw.status >= http.StatusBadRequest {
			log = logger.Warn
		}
		log("http_access",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"dur_ms", float64(time.Since(start).Microseconds())/1000.0,
			"resp_bytes", sw.bytes,
		)
	})
}

// extractTraceID returns the trace id of a valid W3C traceparent header.
func extractTraceID(traceparent string) string {
	parts := strings.Split(strings.TrimSpace(traceparent), "-")
	if len(parts) != 4 {
		return ""
	}
	traceID := strings.ToLower(parts[1])
	if len(traceID) != 32 || strings.Trim(traceID, "0") == "" {
		return ""
	}
	if strings.Trim(traceID, "0123456789abcdef") != "" {
		return ""
	}
	return traceID
}
