package main

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cwsl/ultron/adif"
	"github.com/cwsl/ultron/dxcc"
	"github.com/cwsl/ultron/qso"
)

// ErrInvalidArgument is returned when a command is missing a required
// parameter.
var ErrInvalidArgument = errors.New("invalid argument")

// Command names, shared by the HTTP, MCP and CLI surfaces.
const (
	CmdGetStatus   = "get_status"
	CmdGetDXCCInfo = "get_dxcc_info"
	CmdIsWorked    = "is_worked"
	CmdLogQSO      = "log_qso"
	CmdUnworked    = "get_unworked"
)

// Request is one of the typed command requests below.
type Request interface {
	command() string
}

type GetStatusRequest struct{}

type DXCCInfoRequest struct {
	Call string `json:"call"`
}

type IsWorkedRequest struct {
	Call string `json:"call"`
}

type LogQSORequest struct {
	Call string `json:"call"`
	Band string `json:"band,omitempty"`
	Mode string `json:"mode,omitempty"`
	Grid string `json:"grid,omitempty"`
}

// UnworkedRequest asks for the entities not yet in the log. With Whitelist
// set the response also carries a whitelist file built from them.
type UnworkedRequest struct {
	Bands     []string `json:"bands,omitempty"`
	Whitelist bool     `json:"whitelist,omitempty"`
	Mode      string   `json:"mode,omitempty"`
}

func (GetStatusRequest) command() string { return CmdGetStatus }
func (DXCCInfoRequest) command() string  { return CmdGetDXCCInfo }
func (IsWorkedRequest) command() string  { return CmdIsWorked }
func (LogQSORequest) command() string    { return CmdLogQSO }
func (UnworkedRequest) command() string  { return CmdUnworked }

// StatusResponse answers get_status.
type StatusResponse struct {
	qso.Snapshot
	Host *HostInfo `json:"host,omitempty"`
}

// DXCCInfoResponse answers get_dxcc_info.
type DXCCInfoResponse struct {
	Call        string      `json:"call"`
	Known       bool        `json:"known"`
	Entity      dxcc.Entity `json:"entity"`
	Worked      bool        `json:"worked"`
	WorkedBands []string    `json:"worked_bands"`
	Whitelisted bool        `json:"whitelisted"`
}

// IsWorkedResponse answers is_worked.
type IsWorkedResponse struct {
	Call   string `json:"call"`
	Worked bool   `json:"worked"`
}

// LogQSOResponse answers log_qso. Warning is set when the contact was
// recorded but could not be written to the log file.
type LogQSOResponse struct {
	Call          string `json:"call"`
	Logged        bool   `json:"logged"`
	AlreadyWorked bool   `json:"already_worked"`
	Warning       string `json:"warning,omitempty"`
}

// UnworkedResponse answers get_unworked.
type UnworkedResponse struct {
	qso.UnworkedReport
	Whitelist string `json:"whitelist,omitempty"`
}

// Commands executes requests against one engine.
type Commands struct {
	engine    *qso.Engine
	table     *dxcc.Table
	started   time.Time
	hostStats bool
}

// NewCommands serves engine; table is the entity list unworked reports are
// built from. With hostStats set, get_status includes host load and memory.
func NewCommands(engine *qso.Engine, table *dxcc.Table, hostStats bool) *Commands {
	if table == nil {
		table = dxcc.NewTable(nil)
	}
	return &Commands{engine: engine, table: table, started: time.Now(), hostStats: hostStats}
}

// Execute dispatches req to the matching method.
func (c *Commands) Execute(req Request) (any, error) {
	switch r := req.(type) {
	case GetStatusRequest:
		return c.GetStatus(r), nil
	case DXCCInfoRequest:
		return c.GetDXCCInfo(r)
	case IsWorkedRequest:
		return c.IsWorked(r)
	case LogQSORequest:
		return c.LogQSO(r)
	case UnworkedRequest:
		return c.Unworked(r)
	case nil:
		return nil, fmt.Errorf("%w: empty request", ErrInvalidArgument)
	}
	return nil, fmt.Errorf("%w: unknown command %q", ErrInvalidArgument, req.command())
}

func (c *Commands) GetStatus(GetStatusRequest) StatusResponse {
	resp := StatusResponse{Snapshot: c.engine.Snapshot()}
	if c.hostStats {
		host := collectHostInfo(c.started)
		resp.Host = &host
	}
	return resp
}

func (c *Commands) GetDXCCInfo(req DXCCInfoRequest) (DXCCInfoResponse, error) {
	call, err := requireCall(req.Call)
	if err != nil {
		return DXCCInfoResponse{}, err
	}
	entity := c.engine.Resolve(call)
	resp := DXCCInfoResponse{
		Call:        call,
		Known:       entity.Known(),
		Entity:      entity,
		Worked:      c.engine.IsWorked(call),
		WorkedBands: []string{},
	}
	if entity.Known() {
		resp.WorkedBands = c.engine.WorkedBands(entity.ID)
		if wl, ok := c.engine.Policy().(*qso.Whitelist); ok {
			cfg := wl.Config()
			resp.Whitelisted = cfg.Contains(entity.ID, c.engine.Snapshot().Band)
		}
	}
	return resp, nil
}

func (c *Commands) IsWorked(req IsWorkedRequest) (IsWorkedResponse, error) {
	call, err := requireCall(req.Call)
	if err != nil {
		return IsWorkedResponse{}, err
	}
	return IsWorkedResponse{Call: call, Worked: c.engine.IsWorked(call)}, nil
}

func (c *Commands) LogQSO(req LogQSORequest) (LogQSOResponse, error) {
	call, err := requireCall(req.Call)
	if err != nil {
		return LogQSOResponse{}, err
	}
	added, err := c.engine.LogQSO(call, req.Band, req.Mode, req.Grid)
	resp := LogQSOResponse{Call: call, Logged: added, AlreadyWorked: !added && err == nil}

	var perr *adif.PersistenceError
	switch {
	case err == nil:
	case errors.As(err, &perr):
		resp.Warning = perr.Error()
	default:
		return LogQSOResponse{}, err
	}
	if added {
		log.Printf("QSO: %s logged manually", call)
	}
	return resp, nil
}

func (c *Commands) Unworked(req UnworkedRequest) (UnworkedResponse, error) {
	mode := qso.WhitelistMode(strings.ToLower(strings.TrimSpace(req.Mode)))
	switch mode {
	case "", qso.ModePriority, qso.ModeStrict:
	default:
		return UnworkedResponse{}, fmt.Errorf("%w: unknown whitelist mode %q", ErrInvalidArgument, req.Mode)
	}

	resp := UnworkedResponse{UnworkedReport: c.engine.Unworked(c.table.Entities(), req.Bands)}
	if req.Whitelist {
		data, err := qso.MarshalWhitelist(resp.UnworkedReport.Whitelist(mode))
		if err != nil {
			return UnworkedResponse{}, fmt.Errorf("failed to render whitelist: %w", err)
		}
		resp.Whitelist = string(data)
	}
	return resp, nil
}

func requireCall(call string) (string, error) {
	call = strings.ToUpper(strings.TrimSpace(call))
	if call == "" {
		return "", fmt.Errorf("%w: call is required", ErrInvalidArgument)
	}
	return call, nil
}
