package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwsl/ultron/qso"
)

const testDataset = `[
  {"id": "291", "name": "United States", "continent": "NA", "prefixes": ["K", "W", "N"]},
  {"id": "281", "name": "Spain", "continent": "EU", "prefixes": ["EA"]},
  {"id": "29", "name": "Canary Islands", "continent": "AF", "prefixes": ["EA8"]}
]`

func testConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	dataset := filepath.Join(dir, "base.json")
	require.NoError(t, os.WriteFile(dataset, []byte(testDataset), 0o644))

	cfg := DefaultConfig()
	cfg.DXCC.Dataset = dataset
	cfg.Log.Path = filepath.Join(dir, "wsjtx_log.adi")
	cfg.Station.Callsign = "EA4XYZ"
	cfg.Station.Grid = "IN80"
	cfg.Relay.Listen = "127.0.0.1:0"
	cfg.Relay.Forward = ""
	cfg.Relay.PollIntervalMs = 50
	return cfg
}

func TestNewAppLoadsDatasetAndLog(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.Log.Path, []byte("header <eoh>\n<call:5>K1ABC <band:3>20m <eor>\n"), 0o644))

	app := NewApp(cfg)
	assert.Equal(t, 3, app.table.Len())
	assert.Equal(t, 1, app.store.Len())
	assert.True(t, app.engine.IsWorked("K1ABC"))
	assert.Equal(t, []string{"20m"}, app.engine.WorkedBands("291"))
	assert.IsType(t, qso.AllowAll{}, app.engine.Policy())
}

func TestNewAppDegradesOnMissingFiles(t *testing.T) {
	cfg := testConfig(t)
	cfg.DXCC.Dataset = filepath.Join(t.TempDir(), "missing.json")
	cfg.Whitelist.Path = filepath.Join(t.TempDir(), "missing.yaml")

	app := NewApp(cfg)
	assert.Equal(t, 0, app.table.Len())
	assert.False(t, app.engine.Resolve("K1ABC").Known())
	assert.IsType(t, qso.AllowAll{}, app.engine.Policy())
}

func TestNewAppWithWhitelist(t *testing.T) {
	cfg := testConfig(t)
	cfg.Whitelist.Path = filepath.Join(t.TempDir(), "whitelist.yaml")
	require.NoError(t, os.WriteFile(cfg.Whitelist.Path, []byte("mode: strict\nglobal:\n  29: Canary Islands\n"), 0o644))

	app := NewApp(cfg)
	wl, ok := app.engine.Policy().(*qso.Whitelist)
	require.True(t, ok)
	assert.Equal(t, qso.ModeStrict, wl.Mode())
	assert.Equal(t, "strict", app.commands.GetStatus(GetStatusRequest{}).Whitelist)
}

func TestHTTPHandlerMountsEndpoints(t *testing.T) {
	cfg := testConfig(t)
	app := NewApp(cfg)
	reg := prometheus.NewRegistry()
	NewPrometheusMetrics(reg)

	handler := newHTTPHandler(cfg, app.commands, NewFeedHub(app.commands, 10), reg)

	for path, want := range map[string]int{
		"/api/status": http.StatusOK,
		"/metrics":    http.StatusForbidden, // httptest requests come from 192.0.2.1
		"/nothing":    http.StatusNotFound,
	} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, rec.Code, path)
	}

	cfg.Server.EnableMCP = false
	cfg.Prometheus.Enabled = false
	handler = newHTTPHandler(cfg, app.commands, nil, reg)
	for _, path := range []string{"/mcp", "/metrics", "/ws"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}
