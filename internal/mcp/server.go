// Package mcp exposes the control channel as Model Context Protocol tools.
package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/inkmux/internal/ipc"
)

const (
	ServerName    = "inkmux"
	ServerVersion = "0.1.0"
)

// ControlClient is the subset of the control channel the tools drive.
type ControlClient interface {
	ListClients() ([]ipc.ClientRecord, error)
	SwitchTo(pid int32) (bool, error)
	SetLauncher(pid int32) (bool, error)
}

// Server is the MCP server for inkmux client management.
type Server struct {
	mcpServer *mcpsdk.Server
	control   ControlClient
}

// NewServer creates an MCP server that forwards tool calls to control.
func NewServer(control ControlClient) *Server {
	s := &Server{control: control}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    ServerName,
			Version: ServerVersion,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport, blocking until done.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_clients",
		Description: "List the display clients registered with the inkmux daemon, in registration order, and which one currently owns the panel.",
	}, s.handleListClients)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "switch_client",
		Description: "Bring the registered client with the given pid to the panel. The panel gets a full refresh. Returns switched=false when no such client is registered.",
	}, s.handleSwitchClient)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "set_launcher",
		Description: "Mark the registered client with the given pid as the launcher. The launcher takes the panel whenever the active client exits.",
	}, s.handleSetLauncher)
}
