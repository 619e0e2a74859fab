package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, h http.Handler, path string) (int, map[string]string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return rec.Code, body
}

func TestEndpoints(t *testing.T) {
	var probeErr error
	s := New(0, func() error { return probeErr })
	h := s.Handler()

	tests := []struct {
		name     string
		ready    bool
		probe    error
		path     string
		want     int
		wantBody string
	}{
		{name: "live before ready", path: "/healthz", want: http.StatusServiceUnavailable, wantBody: "not_ready"},
		{name: "ready before ready", path: "/readyz", want: http.StatusServiceUnavailable, wantBody: "not_ready"},
		{name: "live", ready: true, path: "/healthz", want: http.StatusOK, wantBody: "ok"},
		{name: "ready", ready: true, path: "/readyz", want: http.StatusOK, wantBody: "ok"},
		{name: "probe fails", ready: true, probe: errors.New("assistant: closed"), path: "/readyz", want: http.StatusServiceUnavailable, wantBody: "not_ready"},
		{name: "probe ignored for liveness", ready: true, probe: errors.New("assistant: closed"), path: "/healthz", want: http.StatusOK, wantBody: "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.SetReady(tt.ready)
			probeErr = tt.probe
			code, body := get(t, h, tt.path)
			assert.Equal(t, tt.want, code)
			assert.Equal(t, tt.wantBody, body["status"])
			if tt.probe != nil && tt.path == "/readyz" {
				assert.Equal(t, tt.probe.Error(), body["error"])
			}
		})
	}
}

func TestNilProbe(t *testing.T) {
	s := New(0, nil)
	s.SetReady(true)
	code, _ := get(t, s.Handler(), "/readyz")
	assert.Equal(t, http.StatusOK, code)
}
