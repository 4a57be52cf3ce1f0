package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwsl/ultron/qso"
)

// runCLI executes the root command against a config pointing at the test
// dataset and log.
func runCLI(t *testing.T, cfg *Config, args ...string) string {
	t.Helper()
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = false })

	path := filepath.Join(t.TempDir(), "config.yaml")
	body := fmt.Sprintf("dxcc: {dataset: %q}\nlog: {path: %q}\nrelay: {forward: ''}\n", cfg.DXCC.Dataset, cfg.Log.Path)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", path}, args...))
	require.NoError(t, root.Execute())
	return out.String()
}

func TestCLILogQSOAndWorked(t *testing.T) {
	cfg := testConfig(t)

	out := runCLI(t, cfg, "log-qso", "K1ABC", "--band", "20m")
	assert.Contains(t, out, "K1ABC logged")

	out = runCLI(t, cfg, "worked", "K1ABC", "W1AW")
	assert.Contains(t, out, "K1ABC        worked")
	assert.Contains(t, out, "W1AW         not worked")

	out = runCLI(t, cfg, "lookup", "EA8/K1ABC")
	assert.Contains(t, out, "Canary Islands (29)")
}

func TestCLIUnworked(t *testing.T) {
	cfg := testConfig(t)
	runCLI(t, cfg, "log-qso", "K1ABC", "--band", "20m")

	out := runCLI(t, cfg, "unworked")
	assert.Contains(t, out, "worked 1 of 3 DXCC entities")
	assert.Contains(t, out, "20m       1 worked    2 to go")
	assert.Contains(t, out, "never worked (2):")
	assert.Contains(t, out, "281   Spain")

	wlPath := filepath.Join(t.TempDir(), "whitelist.yaml")
	out = runCLI(t, cfg, "unworked", "--band", "20m,40m", "--whitelist", wlPath)
	assert.Contains(t, out, "written to "+wlPath)

	wl, err := qso.LoadWhitelist(wlPath)
	require.NoError(t, err)
	assert.Equal(t, qso.ModeStrict, wl.Mode)
	assert.Len(t, wl.Global, 2)
	assert.True(t, wl.Contains("291", "40m"))
	assert.False(t, wl.Contains("291", "20m"))

	out = runCLI(t, cfg, "unworked", "--mode", "priority", "-w", "-")
	assert.Contains(t, out, "mode: priority")
	assert.NotContains(t, out, "never worked")
}
