package main

import (
	"math"
	"time"

	"github.com/cwsl/ultron/qso"
	"github.com/cwsl/ultron/wsjtx"
)

// EventSink receives everything the relay observes. Implementations must not
// block: they run on the receive goroutine.
type EventSink interface {
	Decision(ev DecisionEvent)
	Status(st *wsjtx.Status)
	Action(a qso.Action)
	Dropped(reason string, err error)
}

// Drop reasons reported to sinks.
const (
	DropMalformed   = "malformed"
	DropOverrun     = "overrun"
	DropUnsupported = "unsupported"
	DropForwardFull = "forward_queue_full"
)

// DecisionEvent is the published form of a decision.
type DecisionEvent struct {
	Decision qso.Decision `json:"-"`

	Timestamp   time.Time `json:"timestamp"`
	SlotTime    string    `json:"slot_time"`
	SNR         int       `json:"snr"`
	DeltaTime   float64   `json:"dt"`
	DeltaFreq   uint32    `json:"df"`
	Mode        string    `json:"mode"`
	Message     string    `json:"message"`
	Call        string    `json:"call,omitempty"`
	Grid        string    `json:"grid,omitempty"`
	Entity      string    `json:"entity,omitempty"`
	EntityID    string    `json:"entity_id,omitempty"`
	Band        string    `json:"band,omitempty"`
	Class       string    `json:"class"`
	Code        string    `json:"code"`
	Whitelisted bool      `json:"whitelisted"`
	NewEntity   bool      `json:"new_entity"`
	Event       string    `json:"event,omitempty"`
	Actions     []string  `json:"actions,omitempty"`
	DistanceKm  *float64  `json:"distance_km,omitempty"`
	Bearing     *float64  `json:"bearing,omitempty"`
}

// NewDecisionEvent flattens d. When both myGrid and the message grid are
// valid locators the distance and bearing are filled in.
func NewDecisionEvent(d qso.Decision, myGrid string) DecisionEvent {
	ev := DecisionEvent{
		Decision:    d,
		Timestamp:   d.Time.UTC(),
		SlotTime:    wsjtx.QTimeString(d.Signal.Time),
		SNR:         d.Signal.SNR,
		DeltaTime:   d.Signal.DeltaTime,
		DeltaFreq:   d.Signal.DeltaFreq,
		Mode:        d.Signal.Mode,
		Message:     d.Signal.Message,
		Call:        d.Call,
		Grid:        d.Message.Grid,
		Band:        d.Band,
		Class:       d.Class.String(),
		Code:        d.Code,
		Whitelisted: d.Whitelisted,
		NewEntity:   d.NewEntity,
		Event:       string(d.Event),
	}
	if d.Call != "" {
		ev.Entity = d.Entity.Name
		ev.EntityID = d.Entity.ID
	}
	for _, a := range d.Actions {
		ev.Actions = append(ev.Actions, a.Kind.String())
	}
	if myGrid != "" && ev.Grid != "" {
		if km, deg, err := CalculateDistanceAndBearingFromLocators(myGrid, ev.Grid); err == nil {
			km, deg = math.Round(km), math.Round(deg)
			ev.DistanceKm, ev.Bearing = &km, &deg
		}
	}
	return ev
}

// ActionEvent is the published form of an outbound packet.
type ActionEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	Call      string    `json:"call,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

func newActionEvent(a qso.Action, now time.Time) ActionEvent {
	return ActionEvent{Timestamp: now.UTC(), Kind: a.Kind.String(), Call: a.Call, Reason: a.Reason}
}

// Sinks fans events out to several sinks in order.
type Sinks []EventSink

func (s Sinks) Decision(ev DecisionEvent) {
	for _, sink := range s {
		sink.Decision(ev)
	}
}

func (s Sinks) Status(st *wsjtx.Status) {
	for _, sink := range s {
		sink.Status(st)
	}
}

func (s Sinks) Action(a qso.Action) {
	for _, sink := range s {
		sink.Action(a)
	}
}

func (s Sinks) Dropped(reason string, err error) {
	for _, sink := range s {
		sink.Dropped(reason, err)
	}
}
