package obs

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrom_AddsCellCorrelation(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutputForTests(&buf)
	defer restore()

	ctx := WithCorrelation(context.Background(), Correlation{RunID: "run-1", Scenario: "portfolio"})
	ctx = WithCorrelation(ctx, Correlation{Role: "master", Locale: "uk", Viewport: "desktop"})
	From(ctx).Info("cell_started")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "run-1", line["run_id"])
	assert.Equal(t, "portfolio", line["scenario"])
	assert.Equal(t, "master", line["role"])
	assert.Equal(t, "uk", line["locale"])
	assert.Equal(t, "desktop", line["viewport"])
	assert.True(t, strings.HasSuffix(line["time"].(string), "Z"))
}

func TestWithCorrelation_KeepsExistingOnEmpty(t *testing.T) {
	t.Parallel()

	ctx := WithCorrelation(context.Background(), Correlation{RunID: "a"})
	ctx = WithCorrelation(ctx, Correlation{RunID: "  "})
	assert.Equal(t, "a", CorrelationFromContext(ctx).RunID)
	assert.Equal(t, Correlation{}, CorrelationFromContext(context.Background()))
}

func TestRequestContextMiddleware_SetsRequestID(t *testing.T) {
	t.Parallel()

	var seen Correlation
	h := RequestContextMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CorrelationFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	req.Header.Set("mcp-session-id", "sess-9")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", seen.TraceID)
	assert.Equal(t, seen.TraceID, seen.RequestID)
	assert.Equal(t, "sess-9", seen.MCPSessionID)
	assert.Equal(t, seen.RequestID, rec.Header().Get("X-Request-Id"))
}

func TestExtractTraceID_RejectsMalformed(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "00-zz-01", "00-" + strings.Repeat("0", 32) + "-00f067aa0ba902b7-01", "00-" + strings.Repeat("g", 32) + "-x-01"} {
		assert.Empty(t, extractTraceID(in), in)
	}
}

func TestAccessLogMiddleware_WarnsOnRejectedRequests(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutputForTests(&buf)
	defer restore()

	h := AccessLogMiddleware("mcp", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte("ok"))
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/mcp", nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var ok, throttled map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &ok))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &throttled))
	assert.Equal(t, "DEBUG", ok["level"])
	assert.Equal(t, float64(200), ok["status"])
	assert.Equal(t, float64(2), ok["resp_bytes"])
	assert.Equal(t, "WARN", throttled["level"])
	assert.Equal(t, float64(429), throttled["status"])
	assert.Equal(t, "mcp", throttled["pkg"])
}
