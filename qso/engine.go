// Package qso is the automation engine: it classifies decoded signals, locks
// onto a target station, answers it and tracks the contact to completion.
package qso

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cwsl/ultron/adif"
	"github.com/cwsl/ultron/dxcc"
	"github.com/cwsl/ultron/wsjtx"
)

// Classification is the outcome of evaluating one decoded signal. The order
// of the constants is the precedence order.
type Classification int

const (
	ClassInvalid Classification = iota
	ClassExcluded
	ClassLowSignal
	ClassAlreadyWorked
	ClassNewTarget
	ClassMonitoring
)

func (c Classification) String() string {
	switch c {
	case ClassInvalid:
		return "invalid"
	case ClassExcluded:
		return "excluded"
	case ClassLowSignal:
		return "low_signal"
	case ClassAlreadyWorked:
		return "already_worked"
	case ClassNewTarget:
		return "new_target"
	case ClassMonitoring:
		return "monitoring"
	}
	return fmt.Sprintf("class_%d", int(c))
}

// Status codes shown next to each decode.
const (
	CodeMonitoring = "  "
	CodeRepeat     = "->"
	CodeNewTarget  = ">>"
	CodeLowSignal  = "Lo"
	CodeWorked     = "--"
	CodeExcluded   = "XX"
	CodeInvalid    = "FL"
	CodeBlocked    = "##"
)

// ActionKind is a packet the relay must send back to the client.
type ActionKind int

const (
	ActionReply ActionKind = iota + 1
	ActionHaltTx
)

func (k ActionKind) String() string {
	switch k {
	case ActionReply:
		return "reply"
	case ActionHaltTx:
		return "halt_tx"
	}
	return "none"
}

// Action is an outbound message produced by a transition.
type Action struct {
	Kind   ActionKind
	Call   string
	Reason string
	Reply  *wsjtx.Reply
	Halt   *wsjtx.HaltTx
}

// Encode returns the wire form of the action.
func (a Action) Encode() []byte {
	switch a.Kind {
	case ActionReply:
		return wsjtx.EncodeReply(a.Reply)
	case ActionHaltTx:
		return wsjtx.EncodeHaltTx(a.Halt)
	}
	return nil
}

// Event names a state transition, for logging and publishing.
type Event string

const (
	EventNone      Event = ""
	EventLocked    Event = "locked"
	EventCompleted Event = "completed"
	EventBusy      Event = "busy"
	EventTimeout   Event = "timeout"
	EventIdleTx    Event = "idle_tx"
	EventLogged    Event = "logged"
)

// Decision is the record of one classified signal.
type Decision struct {
	Time        time.Time
	Signal      Signal
	Message     Message
	Call        string
	Entity      dxcc.Entity
	Band        string
	Class       Classification
	Code        string
	Whitelisted bool
	NewEntity   bool // entity never worked on any band
	Event       Event
	Actions     []Action
}

// Config tunes the engine.
type Config struct {
	SignalThreshold int           // dB, signals at or below are ignored
	Timeout         time.Duration // how long a locked target has to answer
	OwnCall         string        // used until a Status reports DE call
	HaltIdleTx      bool          // halt Tx enabled by the operator while idle
	AnswerCallers   bool          // answer stations calling us while idle
	SNRWindow       int
	Clock           func() time.Time
}

// DefaultConfig matches the behaviour operators expect out of the box.
func DefaultConfig() Config {
	return Config{
		SignalThreshold: -20,
		Timeout:         90 * time.Second,
		HaltIdleTx:      true,
		SNRWindow:       500,
	}
}

// Resolver resolves callsigns to DXCC entities.
type Resolver interface {
	Resolve(call string) dxcc.Entity
}

// LogStore persists completed contacts.
type LogStore interface {
	Append(rec adif.Record) error
	Records() []adif.Record
}

// State is the engine's mutable state.
type State struct {
	LockedCall    string
	LockStart     time.Time
	LockDeadline  time.Time
	RxCount       int
	TxCount       int
	Excluded      map[string]struct{}
	AutoCQ        bool
	ContactsToday int
	contactsDay   string
}

// Locked reports whether a target is locked.
func (s *State) Locked() bool {
	return s.LockedCall != ""
}

func (s *State) unlock() {
	s.LockedCall = ""
	s.LockStart = time.Time{}
	s.LockDeadline = time.Time{}
}

// Engine owns a single State and serializes every transition on it.
type Engine struct {
	cfg      Config
	resolver Resolver
	store    LogStore
	policy   TargetPolicy

	mu     sync.Mutex
	state  State
	worked *WorkedIndex
	status *wsjtx.Status
	peer   wsjtx.Header
	peerID string
	snr    *snrWindow
	counts map[Classification]int
	last   *Decision
}

// NewEngine builds an engine and hydrates the worked set from store. A nil
// resolver resolves everything to Unknown; a nil store disables persistence;
// a nil policy allows every target.
func NewEngine(cfg Config, resolver Resolver, store LogStore, policy TargetPolicy) *Engine {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if resolver == nil {
		resolver = dxcc.NewTable(nil)
	}
	if policy == nil {
		policy = AllowAll{}
	}
	cfg.OwnCall = strings.ToUpper(strings.TrimSpace(cfg.OwnCall))

	e := &Engine{
		cfg:      cfg,
		resolver: resolver,
		store:    store,
		policy:   policy,
		state:    State{Excluded: make(map[string]struct{})},
		worked:   NewWorkedIndex(),
		peer:     wsjtx.Header{Magic: wsjtx.MagicWSJTX, Schema: wsjtx.SchemaVersion},
		peerID:   "WSJT-X",
		snr:      newSNRWindow(cfg.SNRWindow),
		counts:   make(map[Classification]int),
	}
	if store != nil {
		for _, r := range store.Records() {
			e.worked.Add(r.Call, resolver.Resolve(r.Call).ID, r.Band)
		}
	}
	return e
}

// HandleDecode classifies sig and applies any resulting transition. When the
// message has no valid sender the decision is still returned, with
// ErrInvalidCallsign.
func (e *Engine) HandleDecode(sig Signal, now time.Time) (Decision, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.trackPeer(sig.Header, sig.ClientID)
	e.resetDaily(now)
	e.snr.add(sig.SNR)
	e.state.RxCount++

	d := Decision{
		Time:   now,
		Signal: sig,
		Band:   e.bandLocked(),
		Code:   CodeMonitoring,
	}

	msg, err := ParseMessage(sig.Message)
	d.Message = msg
	if err != nil {
		d.Class = ClassInvalid
		d.Code = CodeInvalid
		e.record(&d)
		return d, err
	}
	d.Call = msg.From
	d.Entity = e.resolver.Resolve(msg.From)
	d.NewEntity = d.Entity.Known() && !e.worked.HasEntity(d.Entity.ID)

	e.classify(&d, sig, msg, now)
	e.followUp(&d, msg, now)
	e.record(&d)
	return d, nil
}

// Classify returns the classification sig would receive without changing any
// state.
func (e *Engine) Classify(sig Signal) (Classification, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	msg, err := ParseMessage(sig.Message)
	if err != nil {
		return ClassInvalid, err
	}
	class, _, _ := e.evaluate(sig, msg)
	return class, nil
}

// evaluate applies the precedence rules. It has no side effects.
func (e *Engine) evaluate(sig Signal, msg Message) (Classification, string, Verdict) {
	call := msg.From
	if _, ok := e.state.Excluded[call]; ok {
		return ClassExcluded, CodeExcluded, Verdict{}
	}
	if sig.SNR <= e.cfg.SignalThreshold {
		return ClassLowSignal, CodeLowSignal, Verdict{}
	}
	if e.worked.Has(call) {
		return ClassAlreadyWorked, CodeWorked, Verdict{}
	}

	own := e.ownCallLocked()
	candidate := msg.IsTargetCandidate() && call != own
	calledUs := e.cfg.AnswerCallers && own != "" && msg.To == own && !msg.IsSignOff()
	if !candidate && !calledUs {
		return ClassMonitoring, CodeMonitoring, Verdict{}
	}
	if e.state.Locked() {
		return ClassMonitoring, CodeRepeat, Verdict{}
	}

	entity := e.resolver.Resolve(call)
	band := e.bandLocked()
	v := e.policy.Evaluate(Target{
		Call:         call,
		Entity:       entity,
		Band:         band,
		WorkedOnBand: e.worked.WorkedOnBand(entity.ID, band),
	})
	if !v.Allowed {
		return ClassMonitoring, CodeBlocked, v
	}
	return ClassNewTarget, CodeNewTarget, v
}

func (e *Engine) classify(d *Decision, sig Signal, msg Message, now time.Time) {
	class, code, verdict := e.evaluate(sig, msg)
	d.Class = class
	d.Code = code
	d.Whitelisted = verdict.Whitelisted
	if class != ClassNewTarget {
		return
	}

	e.state.LockedCall = msg.From
	e.state.LockStart = now
	e.state.LockDeadline = now.Add(e.cfg.Timeout)
	e.state.TxCount++
	d.Event = EventLocked
	d.Actions = append(d.Actions, Action{
		Kind:   ActionReply,
		Call:   msg.From,
		Reason: "new target",
		Reply:  wsjtx.ReplyTo(sig.Decode()),
	})
	log.Printf("QSO: locked %s (%s) until %s", msg.From, d.Entity.Name, e.state.LockDeadline.UTC().Format("15:04:05"))
}

// followUp handles messages from the locked station: completion when it
// signs off to us, release when it answers someone else.
func (e *Engine) followUp(d *Decision, msg Message, now time.Time) {
	if !e.state.Locked() || msg.From != e.state.LockedCall || d.Event == EventLocked {
		return
	}
	own := e.ownCallLocked()

	switch {
	case own != "" && msg.To == own && msg.IsSignOff():
		call := e.state.LockedCall
		rec := e.newRecord(call, d.Signal.Mode, msg.Grid, now)
		rec.Set("rst_rcvd", fmt.Sprintf("%+03d", d.Signal.SNR))
		e.logContact(rec)
		e.state.unlock()
		d.Event = EventCompleted
		d.Actions = append(d.Actions, e.haltAction(call, "contact complete"))
		log.Printf("QSO: contact with %s confirmed (%d today)", call, e.state.ContactsToday)

	case own != "" && msg.To != own && !msg.IsCQ():
		call := e.state.LockedCall
		e.state.unlock()
		d.Event = EventBusy
		d.Actions = append(d.Actions, e.haltAction(call, "target busy"))
		log.Printf("QSO: %s is working %s, releasing", call, msg.To)
	}
}

// Tick runs housekeeping: lock timeout first, then the exclusion reset at
// minutes 0 and 30 UTC, then the daily contact counter.
func (e *Engine) Tick(now time.Time) []Action {
	e.mu.Lock()
	defer e.mu.Unlock()

	var actions []Action
	if e.state.Locked() && now.After(e.state.LockDeadline) {
		call := e.state.LockedCall
		e.state.Excluded[call] = struct{}{}
		e.state.unlock()
		actions = append(actions, e.haltAction(call, "no response"))
		log.Printf("QSO: %s did not respond, excluded", call)
	}

	if m := now.UTC().Minute(); m == 0 || m == 30 {
		if n := len(e.state.Excluded); n > 0 {
			e.state.Excluded = make(map[string]struct{})
			if DebugMode {
				log.Printf("QSO: cleared %d excluded calls", n)
			}
		}
	}
	e.resetDaily(now)
	return actions
}

// HandleStatus stores the latest status. With HaltIdleTx set, Tx enabled
// while no target is locked is halted.
func (e *Engine) HandleStatus(st *wsjtx.Status, now time.Time) []Action {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.trackPeer(st.Header, st.ID)
	e.status = st
	e.state.AutoCQ = st.TxEnabled
	e.resetDaily(now)

	if st.TxEnabled && !e.state.Locked() && e.cfg.HaltIdleTx {
		return []Action{e.haltAction(strings.ToUpper(st.DXCall), "tx enabled while idle")}
	}
	return nil
}

// HandleLoggedADIF adds contacts the operator logged in the client. Calls
// already worked are not appended again. A logged contact with the locked
// station ends the lock.
func (e *Engine) HandleLoggedADIF(records []adif.Record, now time.Time) []Action {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetDaily(now)

	var actions []Action
	for _, rec := range records {
		call := strings.ToUpper(strings.TrimSpace(rec.Call))
		if call == "" {
			continue
		}
		rec.Call = call
		if rec.Band == "" {
			rec.Band = e.bandLocked()
		}
		if !e.worked.Has(call) {
			e.logContact(rec)
		}
		if call == e.state.LockedCall {
			e.state.unlock()
			actions = append(actions, e.haltAction(call, "logged"))
		}
	}
	return actions
}

// LogQSO records a contact made outside the automation. It returns false if
// the call was already worked.
func (e *Engine) LogQSO(call, band, mode, grid string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.cfg.Clock()
	e.resetDaily(now)
	call = strings.ToUpper(strings.TrimSpace(call))
	if !dxcc.ValidCallsign(call) {
		return false, fmt.Errorf("%w: %q", ErrInvalidCallsign, call)
	}
	if e.worked.Has(call) {
		return false, nil
	}
	if mode == "" && e.status != nil {
		mode = e.status.Mode
	}
	rec := e.newRecord(call, mode, grid, now)
	if band != "" {
		rec.Band = strings.ToLower(band)
	}
	err := e.logContact(rec)
	if call == e.state.LockedCall {
		e.state.unlock()
	}
	return true, err
}

// IsWorked reports whether call is in the log.
func (e *Engine) IsWorked(call string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.worked.Has(call)
}

// WorkedBands returns the bands the entity of call has been worked on.
func (e *Engine) WorkedBands(entityID string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.worked.Bands(entityID)
}

// Resolve looks up call with the engine's resolver.
func (e *Engine) Resolve(call string) dxcc.Entity {
	return e.resolver.Resolve(call)
}

// Policy returns the targeting policy.
func (e *Engine) Policy() TargetPolicy {
	return e.policy
}

func (e *Engine) newRecord(call, mode, grid string, now time.Time) adif.Record {
	utc := now.UTC()
	rec := adif.Record{
		Call:    call,
		Band:    e.bandLocked(),
		Mode:    mode,
		QSODate: utc.Format("20060102"),
		TimeOn:  utc.Format("150405"),
	}
	if grid != "" {
		rec.Set("gridsquare", grid)
	}
	if e.status != nil {
		if e.status.DialFrequency > 0 {
			rec.Set("freq", fmt.Sprintf("%.6f", float64(e.status.DialFrequency)/1e6))
		}
		if e.status.DECall != "" {
			rec.Set("station_callsign", e.status.DECall)
		}
		if e.status.DEGrid != "" {
			rec.Set("my_gridsquare", e.status.DEGrid)
		}
	}
	return rec
}

// logContact adds rec to the worked set and the store. The worked set is
// updated even if persisting fails.
func (e *Engine) logContact(rec adif.Record) error {
	entity := e.resolver.Resolve(rec.Call)
	if e.worked.Add(rec.Call, entity.ID, rec.Band) {
		e.state.ContactsToday++
	}
	if e.store == nil {
		return nil
	}
	if err := e.store.Append(rec); err != nil {
		log.Printf("QSO: warning: %v", err)
		return err
	}
	return nil
}

func (e *Engine) haltAction(call, reason string) Action {
	return Action{
		Kind:   ActionHaltTx,
		Call:   call,
		Reason: reason,
		Halt:   &wsjtx.HaltTx{Header: e.peer, ID: e.peerID},
	}
}

func (e *Engine) trackPeer(h wsjtx.Header, id string) {
	if wsjtx.KnownMagic(h.Magic) {
		e.peer = wsjtx.Header{Magic: h.Magic, Schema: h.Schema}
	}
	if id != "" {
		e.peerID = id
	}
}

func (e *Engine) resetDaily(now time.Time) {
	day := now.UTC().Format("20060102")
	if e.state.contactsDay != day {
		if e.state.contactsDay != "" && e.state.ContactsToday > 0 {
			log.Printf("QSO: %d contacts on %s", e.state.ContactsToday, e.state.contactsDay)
		}
		e.state.ContactsToday = 0
		e.state.contactsDay = day
	}
}

func (e *Engine) ownCallLocked() string {
	if e.status != nil && e.status.DECall != "" {
		return strings.ToUpper(e.status.DECall)
	}
	return e.cfg.OwnCall
}

func (e *Engine) bandLocked() string {
	if e.status == nil {
		return ""
	}
	return BandForFrequency(e.status.DialFrequency)
}

func (e *Engine) record(d *Decision) {
	e.counts[d.Class]++
	cp := *d
	e.last = &cp
}

// Snapshot is a read-only view of the engine for the command surface.
type Snapshot struct {
	State         string         `json:"state"`
	LockedCall    string         `json:"locked_call,omitempty"`
	LockStart     *time.Time     `json:"lock_start,omitempty"`
	LockDeadline  *time.Time     `json:"lock_deadline,omitempty"`
	RxCount       int            `json:"rx_count"`
	TxCount       int            `json:"tx_count"`
	Excluded      []string       `json:"excluded"`
	WorkedCalls   int            `json:"worked_calls"`
	WorkedDXCC    int            `json:"worked_dxcc"`
	AutoCQ        bool           `json:"auto_cq"`
	ContactsToday int            `json:"contacts_today"`
	OwnCall       string         `json:"own_call,omitempty"`
	Band          string         `json:"band,omitempty"`
	Peer          string         `json:"peer,omitempty"`
	Status        *wsjtx.Status  `json:"status,omitempty"`
	SNR           SNRStats       `json:"snr"`
	Classes       map[string]int `json:"classifications"`
	Whitelist     string         `json:"whitelist"`
}

// Snapshot returns the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Snapshot{
		State:         "idle",
		LockedCall:    e.state.LockedCall,
		RxCount:       e.state.RxCount,
		TxCount:       e.state.TxCount,
		Excluded:      make([]string, 0, len(e.state.Excluded)),
		WorkedCalls:   e.worked.Len(),
		WorkedDXCC:    e.worked.EntityCount(),
		AutoCQ:        e.state.AutoCQ,
		ContactsToday: e.state.ContactsToday,
		OwnCall:       e.ownCallLocked(),
		Band:          e.bandLocked(),
		Peer:          e.peerID,
		SNR:           e.snr.stats(),
		Classes:       make(map[string]int, len(e.counts)),
		Whitelist:     "off",
	}
	if e.state.Locked() {
		s.State = "locked"
		start, deadline := e.state.LockStart, e.state.LockDeadline
		s.LockStart = &start
		s.LockDeadline = &deadline
	}
	for call := range e.state.Excluded {
		s.Excluded = append(s.Excluded, call)
	}
	sort.Strings(s.Excluded)
	for class, n := range e.counts {
		s.Classes[class.String()] = n
	}
	if e.status != nil {
		st := *e.status
		s.Status = &st
	}
	if w, ok := e.policy.(*Whitelist); ok {
		s.Whitelist = string(w.Mode())
	}
	return s
}

// LastDecision returns the most recent decision, if any.
func (e *Engine) LastDecision() (Decision, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return Decision{}, false
	}
	return *e.last, true
}

// DebugMode enables verbose engine logging.
var DebugMode bool
