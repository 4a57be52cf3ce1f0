package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwsl/ultron/adif"
	"github.com/cwsl/ultron/dxcc"
	"github.com/cwsl/ultron/qso"
)

func TestCommandsRequireCall(t *testing.T) {
	cmds := NewApp(testConfig(t)).commands

	_, err := cmds.GetDXCCInfo(DXCCInfoRequest{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = cmds.IsWorked(IsWorkedRequest{Call: "  "})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = cmds.LogQSO(LogQSORequest{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = cmds.Execute(nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCommandsDXCCInfo(t *testing.T) {
	cmds := NewApp(testConfig(t)).commands

	info, err := cmds.GetDXCCInfo(DXCCInfoRequest{Call: "ea8abc"})
	require.NoError(t, err)
	assert.Equal(t, "EA8ABC", info.Call)
	assert.True(t, info.Known)
	assert.Equal(t, "29", info.Entity.ID)
	assert.Equal(t, "Canary Islands", info.Entity.Name)
	assert.False(t, info.Worked)
	assert.Empty(t, info.WorkedBands)

	info, err = cmds.GetDXCCInfo(DXCCInfoRequest{Call: "ZZ9ZZ"})
	require.NoError(t, err)
	assert.False(t, info.Known)
	assert.Equal(t, "unknown", info.Entity.ID)
}

func TestCommandsLogQSOAndIsWorked(t *testing.T) {
	cfg := testConfig(t)
	cmds := NewApp(cfg).commands

	resp, err := cmds.IsWorked(IsWorkedRequest{Call: "K1ABC"})
	require.NoError(t, err)
	assert.False(t, resp.Worked)

	logged, err := cmds.LogQSO(LogQSORequest{Call: "k1abc", Band: "20M", Mode: "FT8", Grid: "FN42"})
	require.NoError(t, err)
	assert.Equal(t, LogQSOResponse{Call: "K1ABC", Logged: true}, logged)

	resp, err = cmds.IsWorked(IsWorkedRequest{Call: "K1ABC"})
	require.NoError(t, err)
	assert.True(t, resp.Worked)

	again, err := cmds.LogQSO(LogQSORequest{Call: "K1ABC", Band: "40m"})
	require.NoError(t, err)
	assert.False(t, again.Logged)
	assert.True(t, again.AlreadyWorked)

	info, err := cmds.GetDXCCInfo(DXCCInfoRequest{Call: "W1AW"})
	require.NoError(t, err)
	assert.False(t, info.Worked)
	assert.Equal(t, []string{"20m"}, info.WorkedBands)

	store, err := adif.Open(cfg.Log.Path)
	require.NoError(t, err)
	require.Equal(t, 1, store.Len())
	rec := store.Records()[0]
	assert.Equal(t, "K1ABC", rec.Call)
	assert.Equal(t, "20m", rec.Band)
	assert.Equal(t, "FN42", rec.Get("gridsquare"))
}

func TestCommandsLogQSOInvalidCall(t *testing.T) {
	cmds := NewApp(testConfig(t)).commands
	_, err := cmds.LogQSO(LogQSORequest{Call: "RR73"})
	assert.ErrorIs(t, err, qso.ErrInvalidCallsign)
}

func TestCommandsLogQSOPersistenceWarning(t *testing.T) {
	cfg := testConfig(t)
	cfg.Log.Path = filepath.Join(t.TempDir(), "missing-dir", "log.adi")
	cmds := NewApp(cfg).commands

	resp, err := cmds.LogQSO(LogQSORequest{Call: "K1ABC", Band: "20m"})
	require.NoError(t, err)
	assert.True(t, resp.Logged)
	assert.NotEmpty(t, resp.Warning)

	worked, err := cmds.IsWorked(IsWorkedRequest{Call: "K1ABC"})
	require.NoError(t, err)
	assert.True(t, worked.Worked)
}

func TestCommandsExecute(t *testing.T) {
	cmds := NewApp(testConfig(t)).commands
	cmds.hostStats = false

	out, err := cmds.Execute(GetStatusRequest{})
	require.NoError(t, err)
	status, ok := out.(StatusResponse)
	require.True(t, ok)
	assert.Equal(t, "idle", status.State)
	assert.Equal(t, "EA4XYZ", status.OwnCall)
	assert.Nil(t, status.Host)

	out, err = cmds.Execute(LogQSORequest{Call: "EA8ABC", Band: "15m"})
	require.NoError(t, err)
	assert.True(t, out.(LogQSOResponse).Logged)

	out, err = cmds.Execute(IsWorkedRequest{Call: "EA8ABC"})
	require.NoError(t, err)
	assert.True(t, out.(IsWorkedResponse).Worked)

	out, err = cmds.Execute(DXCCInfoRequest{Call: "EA8ZZZ"})
	require.NoError(t, err)
	assert.Equal(t, []string{"15m"}, out.(DXCCInfoResponse).WorkedBands)

	_, err = cmds.Execute(&IsWorkedRequest{Call: "EA8ABC"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCommandsStatusIncludesHost(t *testing.T) {
	cmds := NewApp(testConfig(t)).commands
	status := cmds.GetStatus(GetStatusRequest{})
	require.NotNil(t, status.Host)
	assert.Positive(t, status.Host.CPUCores)
	assert.Positive(t, status.Host.Goroutines)
	assert.Zero(t, status.WorkedCalls)
}

func entityNames(entities []dxcc.Entity) []string {
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		out = append(out, e.Name)
	}
	return out
}

func TestCommandsUnworked(t *testing.T) {
	cmds := NewApp(testConfig(t)).commands

	_, err := cmds.LogQSO(LogQSORequest{Call: "K1ABC", Band: "20m"})
	require.NoError(t, err)
	_, err = cmds.LogQSO(LogQSORequest{Call: "EA4ABC", Band: "40m"})
	require.NoError(t, err)

	resp, err := cmds.Unworked(UnworkedRequest{})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 2, resp.Worked)
	assert.Equal(t, []string{"Canary Islands"}, entityNames(resp.Unworked))
	assert.Empty(t, resp.Unworked[0].Prefixes)
	assert.Empty(t, resp.Whitelist)

	require.Len(t, resp.Bands, 2)
	assert.Equal(t, "20m", resp.Bands[0].Band)
	assert.Equal(t, 1, resp.Bands[0].Worked)
	assert.Equal(t, []string{"Canary Islands", "Spain"}, entityNames(resp.Bands[0].Unworked))
	assert.Equal(t, "40m", resp.Bands[1].Band)
	assert.Equal(t, []string{"Canary Islands", "United States"}, entityNames(resp.Bands[1].Unworked))

	resp, err = cmds.Unworked(UnworkedRequest{Bands: []string{"15M"}})
	require.NoError(t, err)
	require.Len(t, resp.Bands, 1)
	assert.Equal(t, "15m", resp.Bands[0].Band)
	assert.Len(t, resp.Bands[0].Unworked, 3)
}

func TestCommandsUnworkedWhitelist(t *testing.T) {
	cmds := NewApp(testConfig(t)).commands
	_, err := cmds.LogQSO(LogQSORequest{Call: "K1ABC", Band: "20m"})
	require.NoError(t, err)

	out, err := cmds.Execute(UnworkedRequest{Bands: []string{"20m"}, Whitelist: true})
	require.NoError(t, err)
	resp := out.(UnworkedResponse)
	require.NotEmpty(t, resp.Whitelist)

	wl, err := qso.ParseWhitelist([]byte(resp.Whitelist))
	require.NoError(t, err)
	assert.Equal(t, qso.ModeStrict, wl.Mode)
	assert.Equal(t, "Spain", wl.Global["281"])
	assert.Equal(t, "Canary Islands", wl.Global["29"])
	assert.NotContains(t, wl.Global, "291")
	assert.True(t, wl.Contains("281", "20m"))
	assert.False(t, wl.Contains("291", "20m"))

	resp, err = cmds.Unworked(UnworkedRequest{Whitelist: true, Mode: "Priority"})
	require.NoError(t, err)
	wl, err = qso.ParseWhitelist([]byte(resp.Whitelist))
	require.NoError(t, err)
	assert.Equal(t, qso.ModePriority, wl.Mode)

	_, err = cmds.Unworked(UnworkedRequest{Mode: "loose"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
