package qso

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwsl/ultron/wsjtx"
)

func TestParseMessage(t *testing.T) {
	m, err := ParseMessage("CQ K1ABC FN42")
	require.NoError(t, err)
	assert.Equal(t, "CQ", m.To)
	assert.Equal(t, "K1ABC", m.From)
	assert.Equal(t, "FN42", m.Grid)
	assert.True(t, m.IsCQ())
	assert.True(t, m.IsTargetCandidate())

	m, err = ParseMessage("cq pota k1abc fn42")
	require.NoError(t, err)
	assert.Equal(t, []string{"CQ", "K1ABC", "FN42"}, m.Tokens)
	assert.Equal(t, "K1ABC", m.From)

	m, err = ParseMessage("EA4XYZ K1ABC RR73")
	require.NoError(t, err)
	assert.Equal(t, "EA4XYZ", m.To)
	assert.True(t, m.IsSignOff())
	assert.Empty(t, m.Grid)

	m, err = ParseMessage("EA4XYZ <K1ABC/P> -12")
	require.NoError(t, err)
	assert.Equal(t, "K1ABC/P", m.From)
	assert.False(t, m.IsTargetCandidate())

	m, err = ParseMessage("CQ K1ABC")
	require.NoError(t, err)
	assert.True(t, m.IsTargetCandidate())
}

func TestParseMessageInvalid(t *testing.T) {
	for _, text := range []string{"", "CQ", "   ", "CQ FN42", "K1ABC RR73", "TNX 73"} {
		_, err := ParseMessage(text)
		assert.ErrorIs(t, err, ErrInvalidCallsign, text)
	}
}

func TestSignalFromDecodeRoundTrip(t *testing.T) {
	d := &wsjtx.Decode{
		Header:  wsjtx.Header{Magic: wsjtx.MagicMSHV, Schema: 2, Type: wsjtx.TypeDecode},
		ID:      "MSHV",
		New:     true,
		Time:    1000,
		SNR:     -7,
		RawMode: "+",
		Mode:    "FT4",
		Message: "CQ K1ABC FN42",
	}
	assert.Equal(t, d, SignalFromDecode(d).Decode())
}

func TestBandForFrequency(t *testing.T) {
	assert.Equal(t, "20m", BandForFrequency(14074000))
	assert.Equal(t, "40m", BandForFrequency(7074000))
	assert.Equal(t, "6m", BandForFrequency(50313000))
	assert.Equal(t, "160m", BandForFrequency(1840000))
	assert.Equal(t, "", BandForFrequency(0))
	assert.Equal(t, "", BandForFrequency(16000000))
}
