package adif

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLog = `WSJT-X ADIF Export
<adif_ver:5>3.1.0
<programid:6>WSJT-X
<EOH>
<call:5>K1ABC <gridsquare:4>FN42 <mode:3>FT8 <rst_sent:3>-10 <rst_rcvd:3>-12 <qso_date:8>20240501 <time_on:6>123015 <band:3>20m <freq:9>14.075500 <eor>
<call:6>EA4XYZ <mode:3>FT4 <qso_date:8>20240501 <time_on:6>130000 <band:3>40m <EOR>
<CALL:4>W1AW<BAND:3>20m<MODE:3>FT8<QSO_DATE:8:D>20240502<EOR>
`

type pair struct{ call, band string }

func pairs(records []Record) []pair {
	out := make([]pair, 0, len(records))
	for _, r := range records {
		out = append(out, pair{strings.ToUpper(r.Call), r.Band})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].call != out[j].call {
			return out[i].call < out[j].call
		}
		return out[i].band < out[j].band
	})
	return out
}

func TestParse(t *testing.T) {
	records := ParseString(sampleLog)
	require.Len(t, records, 3)

	assert.Equal(t, "K1ABC", records[0].Call)
	assert.Equal(t, "20m", records[0].Band)
	assert.Equal(t, "FT8", records[0].Mode)
	assert.Equal(t, "20240501", records[0].QSODate)
	assert.Equal(t, "123015", records[0].TimeOn)
	assert.Equal(t, "FN42", records[0].Get("GRIDSQUARE"))
	assert.Equal(t, "-10", records[0].Fields["rst_sent"])

	assert.Equal(t, "EA4XYZ", records[1].Call)
	assert.Equal(t, "W1AW", records[2].Call)
	assert.Equal(t, "20240502", records[2].QSODate)
}

func TestRoundTripPreservesCallBandPairs(t *testing.T) {
	records := ParseString(sampleLog)
	again := ParseString(Generate(records))
	assert.Equal(t, pairs(records), pairs(again))
	assert.Equal(t, records, again)
}

func TestParseDropsMalformedAndPartialRecords(t *testing.T) {
	text := `<call:5>K1ABC<band:3>20m<eor>
<call:x>BAD<band:3>40m<eor>
<call:6>EA4XYZ<bogus><band:3>40m<eor>
<call:4>W1AW<band:3>20m<eor>
<call:5>N0CAL<band:3>15m`
	records := ParseString(text)
	require.Len(t, records, 2)
	assert.Equal(t, "K1ABC", records[0].Call)
	assert.Equal(t, "W1AW", records[1].Call)
}

func TestParseHeaderlessPreambleTags(t *testing.T) {
	text := "exported <by> hand\n<CALL:5>K1ABC <BAND:3>20m <EOR><CALL:4>W1AW <BAND:3>40m <EOR>"
	records := ParseString(text)
	require.Len(t, records, 2)
	assert.Equal(t, "K1ABC", records[0].Call)
	assert.Equal(t, "W1AW", records[1].Call)
}

func TestParseLengthPastEnd(t *testing.T) {
	records := ParseString("<call:5>K1ABC<eor><call:50>SHORT")
	require.Len(t, records, 1)
	assert.Equal(t, "K1ABC", records[0].Call)
}

func TestParseLengthCountsBytes(t *testing.T) {
	records := ParseString("<call:5>K1ABC<name:5>José<eor>")
	require.Len(t, records, 1)
	assert.Equal(t, "José", records[0].Fields["name"])
}

func TestParseEmptyAndGarbage(t *testing.T) {
	assert.Empty(t, ParseString(""))
	assert.Empty(t, ParseString("no tags at all"))
	assert.Empty(t, ParseString("<eor><eor>"))
	assert.NotPanics(t, func() { ParseString("<call:5") })
	assert.NotPanics(t, func() { ParseString("<:3>abc<eor>") })
}

func TestEncode(t *testing.T) {
	r := Record{Call: "K1ABC", Band: "20m", Mode: "FT8", QSODate: "20240501", TimeOn: "123015"}
	r.Set("gridsquare", "FN42")
	assert.Equal(t,
		"<CALL:5>K1ABC <QSO_DATE:8>20240501 <TIME_ON:6>123015 <BAND:3>20m <MODE:3>FT8 <GRIDSQUARE:4>FN42 <EOR>\n",
		r.Encode())
}

func TestStoreAppendAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.adi")

	s, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())

	require.NoError(t, s.Append(Record{Call: "k1abc", Band: "20m", Mode: "FT8"}))
	require.NoError(t, s.Append(Record{Call: "EA4XYZ", Band: "40m", Mode: "FT8"}))
	assert.True(t, s.Has("K1ABC"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<EOH>")
	assert.Equal(t, 1, strings.Count(string(data), "<EOH>"))

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Len())
	calls := reopened.Calls()
	sort.Strings(calls)
	assert.Equal(t, []string{"EA4XYZ", "K1ABC"}, calls)
}

func TestStoreAppendRetriesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.adi")
	s, err := Open(path)
	require.NoError(t, err)

	attempts := 0
	s.openFile = func(name string, flag int, perm os.FileMode) (*os.File, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("disk full")
		}
		return os.OpenFile(name, flag, perm)
	}
	require.NoError(t, s.Append(Record{Call: "K1ABC", Band: "20m"}))
	assert.Equal(t, 2, attempts)
}

func TestStoreAppendPersistenceError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.adi")
	s, err := Open(path)
	require.NoError(t, err)

	boom := errors.New("read-only filesystem")
	attempts := 0
	s.openFile = func(string, int, os.FileMode) (*os.File, error) {
		attempts++
		return nil, boom
	}
	err = s.Append(Record{Call: "K1ABC", Band: "20m"})
	require.Error(t, err)

	var perr *PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "K1ABC", perr.Call)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, attempts)

	// kept in memory
	assert.True(t, s.Has("K1ABC"))
}
