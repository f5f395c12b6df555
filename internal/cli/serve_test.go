package cli

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/citylink/internal/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPServer_PersistsAndExposesMetrics(t *testing.T) {
	cfg := testConfig(t, nil)
	app := open(t, cfg)
	ts := httptest.NewServer(NewHTTPServer(app).Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/session/host", "application/json", strings.NewReader(`{"code":"9090"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	saved, err := profile.Load(cfg.Profile.Path)
	require.NoError(t, err)
	assert.Equal(t, "9090", saved.Code)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `citylink_http_requests_total{method="POST",path="/session/host",status="200"}`)
	assert.Contains(t, string(body), "citylink_session_events_total")
}

func TestRunServe_StopsWithContext(t *testing.T) {
	app := open(t, testConfig(t, nil))
	ctx, cancel := context.WithCancel(context.Background())
	out := &syncBuffer{}

	done := make(chan error, 1)
	go func() { done <- RunServe(ctx, app, "127.0.0.1:0", out) }()
	require.Eventually(t, func() bool {
		return bytes.Contains(out.Bytes(), []byte("Serving citylink API"))
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRunMCP_UnknownTransport(t *testing.T) {
	app := open(t, testConfig(t, nil))
	err := RunMCP(context.Background(), app, "pigeon", "", "")
	assert.ErrorContains(t, err, "unknown transport")
}
