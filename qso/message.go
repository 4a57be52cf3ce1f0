package qso

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/cwsl/ultron/dxcc"
	"github.com/cwsl/ultron/wsjtx"
)

// ErrInvalidCallsign is returned when a decoded message has no usable sender.
var ErrInvalidCallsign = errors.New("invalid callsign")

var gridPattern = regexp.MustCompile(`^[A-R]{2}[0-9]{2}([A-X]{2})?$`)

// Signal is one decoded transmission as seen by the engine.
type Signal struct {
	Header        wsjtx.Header
	ClientID      string
	New           bool
	Time          uint32 // ms since midnight UTC
	SNR           int
	DeltaTime     float64
	DeltaFreq     uint32
	Mode          string
	RawMode       string
	Message       string
	LowConfidence bool
	OffAir        bool
}

// SignalFromDecode converts a decoded packet.
func SignalFromDecode(d *wsjtx.Decode) Signal {
	return Signal{
		Header:        d.Header,
		ClientID:      d.ID,
		New:           d.New,
		Time:          d.Time,
		SNR:           int(d.SNR),
		DeltaTime:     d.DeltaTime,
		DeltaFreq:     d.DeltaFreq,
		Mode:          d.Mode,
		RawMode:       d.RawMode,
		Message:       d.Message,
		LowConfidence: d.LowConfidence,
		OffAir:        d.OffAir,
	}
}

// Decode rebuilds the wire form of the signal, used to answer it.
func (s Signal) Decode() *wsjtx.Decode {
	return &wsjtx.Decode{
		Header:        s.Header,
		ID:            s.ClientID,
		New:           s.New,
		Time:          s.Time,
		SNR:           int32(s.SNR),
		DeltaTime:     s.DeltaTime,
		DeltaFreq:     s.DeltaFreq,
		RawMode:       s.RawMode,
		Mode:          s.Mode,
		Message:       s.Message,
		LowConfidence: s.LowConfidence,
		OffAir:        s.OffAir,
	}
}

// Message is a decoded FT8-style message split into its parts.
//
//	CQ K1ABC FN42        To=CQ     From=K1ABC  Last=FN42
//	CQ DX K1ABC FN42     To=CQ     From=K1ABC  Last=FN42
//	EA4XYZ K1ABC RR73    To=EA4XYZ From=K1ABC  Last=RR73
type Message struct {
	Tokens []string
	To     string
	From   string
	Last   string
	Grid   string
}

// ParseMessage tokenizes text. Four token messages carry a directed CQ
// modifier ("CQ DX", "CQ POTA") in position 1, which is dropped.
func ParseMessage(text string) (Message, error) {
	tokens := strings.Fields(strings.ToUpper(text))
	if len(tokens) == 4 {
		tokens = append(tokens[:1:1], tokens[2:]...)
	}
	if len(tokens) < 2 {
		return Message{Tokens: tokens}, fmt.Errorf("%w: %q", ErrInvalidCallsign, text)
	}
	m := Message{
		Tokens: tokens,
		To:     strings.Trim(tokens[0], "<>"),
		From:   strings.Trim(tokens[1], "<>"),
		Last:   tokens[len(tokens)-1],
	}
	if len(tokens) > 2 && gridPattern.MatchString(m.Last) && m.Last != "RR73" {
		m.Grid = m.Last
	}
	if !dxcc.ValidCallsign(m.From) {
		return m, fmt.Errorf("%w: %q", ErrInvalidCallsign, m.From)
	}
	return m, nil
}

// IsCQ reports whether the message is a general call.
func (m Message) IsCQ() bool {
	return m.To == "CQ"
}

// IsSignOff reports whether the message ends the exchange.
func (m Message) IsSignOff() bool {
	switch m.Last {
	case "73", "RR73", "RRR":
		return true
	}
	return false
}

// IsTargetCandidate reports whether the sender is free to be called: either
// calling CQ or signing off from a previous contact.
func (m Message) IsTargetCandidate() bool {
	return len(m.Tokens) >= 2 && (m.IsCQ() || m.IsSignOff())
}

// BandForFrequency returns the amateur band for a dial frequency in Hz, or ""
// outside the bands.
func BandForFrequency(freqHz uint64) string {
	freq := float64(freqHz) / 1000000.0 // MHz

	switch {
	case freq >= 0.135 && freq < 0.138:
		return "2200m"
	case freq >= 0.472 && freq < 0.479:
		return "630m"
	case freq >= 1.8 && freq < 2.0:
		return "160m"
	case freq >= 3.5 && freq < 4.0:
		return "80m"
	case freq >= 5.3 && freq < 5.45:
		return "60m"
	case freq >= 7.0 && freq < 7.3:
		return "40m"
	case freq >= 10.1 && freq < 10.15:
		return "30m"
	case freq >= 14.0 && freq < 14.35:
		return "20m"
	case freq >= 18.068 && freq < 18.168:
		return "17m"
	case freq >= 21.0 && freq < 21.45:
		return "15m"
	case freq >= 24.89 && freq < 24.99:
		return "12m"
	case freq >= 28.0 && freq < 29.7:
		return "10m"
	case freq >= 50.0 && freq < 54.0:
		return "6m"
	case freq >= 144.0 && freq < 148.0:
		return "2m"
	case freq >= 222.0 && freq < 225.0:
		return "1.25m"
	case freq >= 420.0 && freq < 450.0:
		return "70cm"
	}
	return ""
}
