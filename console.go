package main

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/cwsl/ultron/qso"
	"github.com/cwsl/ultron/wsjtx"
)

// codeColors maps status codes to the colour of the whole decode line.
var codeColors = map[string]*color.Color{
	qso.CodeNewTarget: color.New(color.FgHiGreen, color.Bold),
	qso.CodeRepeat:    color.New(color.FgGreen),
	qso.CodeLowSignal: color.New(color.FgHiBlack),
	qso.CodeWorked:    color.New(color.FgBlue),
	qso.CodeExcluded:  color.New(color.FgRed),
	qso.CodeInvalid:   color.New(color.FgYellow),
	qso.CodeBlocked:   color.New(color.FgMagenta),
}

var eventColor = color.New(color.FgHiMagenta, color.Bold)

// Console prints one line per decision.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

// FormatDecision renders a decode line: slot time, SNR, dt, df, mode, code,
// message, then entity and distance when known.
func FormatDecision(ev DecisionEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %4d %5.1f %5d %-6s %2s  %-24s", ev.SlotTime, ev.SNR, ev.DeltaTime, ev.DeltaFreq, ev.Mode, ev.Code, ev.Message)
	if ev.Entity != "" {
		fmt.Fprintf(&b, " %s", ev.Entity)
	}
	if ev.DistanceKm != nil {
		fmt.Fprintf(&b, " %.0fkm %.0f°", *ev.DistanceKm, *ev.Bearing)
	}
	if ev.Whitelisted {
		b.WriteString(" [wl]")
	}
	if ev.NewEntity {
		b.WriteString(" [NEW DXCC]")
	}
	line := strings.TrimRight(b.String(), " ")
	if c, ok := codeColors[ev.Code]; ok {
		line = c.Sprint(line)
	}
	if ev.Event != "" {
		line += " " + eventColor.Sprint("<"+ev.Event+">")
	}
	return line
}

func (c *Console) println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, s)
}

func (c *Console) Decision(ev DecisionEvent) {
	c.println(FormatDecision(ev))
}

func (c *Console) Status(st *wsjtx.Status) {
	if DebugMode {
		log.Printf("Relay: status %s %d Hz %s tx=%v dx=%s", st.ID, st.DialFrequency, st.Mode, st.TxEnabled, st.DXCall)
	}
}

func (c *Console) Action(a qso.Action) {
	c.println(eventColor.Sprintf("  %s %s (%s)", strings.ToUpper(a.Kind.String()), a.Call, a.Reason))
}

func (c *Console) Dropped(reason string, err error) {
	switch {
	case reason == DropUnsupported && !DebugMode:
	case err == nil:
		log.Printf("Relay: dropped packet (%s)", reason)
	default:
		log.Printf("Relay: dropped packet (%s): %v", reason, err)
	}
}
