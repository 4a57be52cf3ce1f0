package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/cwsl/ultron/qso"
)

// MCPServer handles Model Context Protocol requests
type MCPServer struct {
	commands   *Commands
	mcpServer  *server.MCPServer
	httpServer *server.StreamableHTTPServer
}

// NewMCPServer creates a new MCP server instance
func NewMCPServer(cmds *Commands, version string) *MCPServer {
	m := &MCPServer{commands: cmds}

	m.mcpServer = server.NewMCPServer(
		"ultron",
		version,
		server.WithToolCapabilities(true),
	)
	m.registerTools()
	m.httpServer = server.NewStreamableHTTPServer(m.mcpServer)
	return m
}

func (m *MCPServer) registerTools() {
	m.mcpServer.AddTool(mcp.NewTool(CmdGetStatus,
		mcp.WithDescription("Get the automation state: locked target, lock deadline, excluded calls, worked counts, the client's last status and SNR statistics"),
	), m.handleGetStatus)

	m.mcpServer.AddTool(mcp.NewTool(CmdGetDXCCInfo,
		mcp.WithDescription("Resolve a callsign to its DXCC entity and the bands that entity has been worked on"),
		mcp.WithString("call",
			mcp.Required(),
			mcp.Description("Callsign, e.g. EA8/K1ABC"),
		),
	), m.handleGetDXCCInfo)

	m.mcpServer.AddTool(mcp.NewTool(CmdIsWorked,
		mcp.WithDescription("Check whether a callsign is already in the contact log"),
		mcp.WithString("call",
			mcp.Required(),
			mcp.Description("Callsign to check"),
		),
	), m.handleIsWorked)

	m.mcpServer.AddTool(mcp.NewTool(CmdLogQSO,
		mcp.WithDescription("Record a contact in the log. Calls already worked are not logged twice"),
		mcp.WithString("call",
			mcp.Required(),
			mcp.Description("Callsign worked"),
		),
		mcp.WithString("band",
			mcp.Description("Band, e.g. 20m (defaults to the client's current band)"),
		),
		mcp.WithString("mode",
			mcp.Description("Mode, e.g. FT8 (defaults to the client's current mode)"),
		),
		mcp.WithString("grid",
			mcp.Description("Grid locator of the other station"),
		),
	), m.handleLogQSO)

	m.mcpServer.AddTool(mcp.NewTool(CmdUnworked,
		mcp.WithDescription("List DXCC entities not yet in the log, overall and per band, optionally as a whitelist file"),
		mcp.WithArray("bands",
			mcp.Description("Bands to report, e.g. [\"20m\", \"40m\"] (defaults to every band in the log)"),
			mcp.WithStringItems(),
		),
		mcp.WithBoolean("whitelist",
			mcp.Description("Also return a whitelist YAML built from the unworked entities"),
		),
		mcp.WithString("mode",
			mcp.Description("Whitelist mode"),
			mcp.Enum(string(qso.ModeStrict), string(qso.ModePriority)),
		),
	), m.handleUnworked)
}

// HandleMCP handles MCP requests over HTTP
func (m *MCPServer) HandleMCP(w http.ResponseWriter, r *http.Request) {
	m.httpServer.ServeHTTP(w, r)
}

func (m *MCPServer) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return toolResult(m.commands.GetStatus(GetStatusRequest{}), nil)
}

func (m *MCPServer) handleGetDXCCInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return toolResult(m.commands.GetDXCCInfo(DXCCInfoRequest{Call: request.GetString("call", "")}))
}

func (m *MCPServer) handleIsWorked(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return toolResult(m.commands.IsWorked(IsWorkedRequest{Call: request.GetString("call", "")}))
}

func (m *MCPServer) handleLogQSO(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return toolResult(m.commands.LogQSO(LogQSORequest{
		Call: request.GetString("call", ""),
		Band: request.GetString("band", ""),
		Mode: request.GetString("mode", ""),
		Grid: request.GetString("grid", ""),
	}))
}

func (m *MCPServer) handleUnworked(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return toolResult(m.commands.Unworked(UnworkedRequest{
		Bands:     request.GetStringSlice("bands", nil),
		Whitelist: request.GetBool("whitelist", false),
		Mode:      request.GetString("mode", ""),
	}))
}

// toolResult reports command errors as tool errors, not protocol errors.
func toolResult(v any, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal data: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonData)), nil
}
