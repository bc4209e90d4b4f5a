package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

func (s *Server) handleListClients(_ context.Context, _ *mcpsdk.CallToolRequest, _ ListClientsInput) (*mcpsdk.CallToolResult, ListClientsOutput, error) {
	records, err := s.control.ListClients()
	if err != nil {
		return nil, ListClientsOutput{}, fmt.Errorf("list clients: %w", err)
	}
	out := ListClientsOutput{Clients: make([]ClientInfo, 0, len(records))}
	for _, r := range records {
		out.Clients = append(out.Clients, ClientInfo{PID: r.PID, Name: r.Name, Active: r.Active})
		if r.Active {
			out.Active = r.PID
		}
	}
	return nil, out, nil
}

func (s *Server) handleSwitchClient(_ context.Context, _ *mcpsdk.CallToolRequest, args SwitchClientInput) (*mcpsdk.CallToolResult, SwitchClientOutput, error) {
	if args.PID <= 0 {
		return nil, SwitchClientOutput{}, fmt.Errorf("pid must be positive, got %d", args.PID)
	}
	ok, err := s.control.SwitchTo(args.PID)
	if err != nil {
		return nil, SwitchClientOutput{}, fmt.Errorf("switch to %d: %w", args.PID, err)
	}
	return nil, SwitchClientOutput{Switched: ok}, nil
}

func (s *Server) handleSetLauncher(_ context.Context, _ *mcpsdk.CallToolRequest, args SetLauncherInput) (*mcpsdk.CallToolResult, SetLauncherOutput, error) {
	if args.PID <= 0 {
		return nil, SetLauncherOutput{}, fmt.Errorf("pid must be positive, got %d", args.PID)
	}
	ok, err := s.control.SetLauncher(args.PID)
	if err != nil {
		return nil, SetLauncherOutput{}, fmt.Errorf("set launcher %d: %w", args.PID, err)
	}
	return nil, SetLauncherOutput{Set: ok}, nil
}
