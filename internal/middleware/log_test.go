package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

func captureLog(t *testing.T, level zerolog.Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	log.Logger = zerolog.New(&buf)
	zerolog.SetGlobalLevel(level)
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})
	return &buf
}

func TestLogRequest(t *testing.T) {
	buf := captureLog(t, zerolog.DebugLevel)
	h := LogRequest(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/realtime/poll?sid=s1", nil)
	req.Header.Set("X-Real-IP", "10.0.0.1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	require.Contains(t, out, `"status":204`)
	require.Contains(t, out, `"sid":"s1"`)
	require.Contains(t, out, `"addr":"10.0.0.1"`)
	require.Contains(t, out, `"path":"/realtime/poll"`)
}

func TestLogRequestDisabled(t *testing.T) {
	buf := captureLog(t, zerolog.InfoLevel)
	var called bool
	h := LogRequest(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	require.True(t, called)
	require.Empty(t, buf.String())
}

func TestStatusRecorderDefault(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	require.Equal(t, http.StatusOK, rec.Status())
	_, _, err := rec.Hijack()
	require.ErrorIs(t, err, errNoHijacker)
}
