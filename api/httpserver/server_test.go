package httpserver

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHealthAndDrainEndpoints(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := New(&HTTPServerConfig{ListenAddr: ":0", Log: log})
	require.NoError(t, err)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		srv.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	require.Equal(t, http.StatusOK, get("/livez").Code)
	require.Equal(t, http.StatusOK, get("/readyz").Code)

	// Draining flips readiness without killing the listener.
	require.Equal(t, http.StatusOK, get("/drain").Code)
	require.Equal(t, http.StatusServiceUnavailable, get("/readyz").Code)
	require.Equal(t, http.StatusOK, get("/livez").Code)

	require.Equal(t, http.StatusOK, get("/undrain").Code)
	require.Equal(t, http.StatusOK, get("/readyz").Code)
}
