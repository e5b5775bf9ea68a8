package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggingRecordsFailures(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeEnvelope(w, http.StatusBadRequest, "Invalid or expired OTP", nil)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/authentication/verifyemailbytoken?token=secret", nil)
	req.Header.Set(requestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, "req-42", rec.Header().Get(requestIDHeader))
	line := buf.String()
	require.Contains(t, line, "level=WARN")
	require.Contains(t, line, "request_id=req-42")
	require.Contains(t, line, `error_message="Invalid or expired OTP"`)
	require.NotContains(t, line, "secret")
}

func TestLoggingReplacesMalformedRequestID(t *testing.T) {
	t.Parallel()

	h := Logging(slog.New(slog.DiscardHandler))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "bad id with spaces\n")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	got := rec.Header().Get(requestIDHeader)
	require.NotEqual(t, "bad id with spaces\n", got)
	require.Len(t, got, 36)
}
