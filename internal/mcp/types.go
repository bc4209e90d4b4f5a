package mcp

// ListClientsInput is the input for the list_clients tool.
type ListClientsInput struct{}

// ClientInfo describes a single registered display client.
type ClientInfo struct {
	PID    int32  `json:"pid"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// ListClientsOutput is the output for the list_clients tool.
type ListClientsOutput struct {
	Clients []ClientInfo `json:"clients"`
	Active  int32        `json:"active,omitempty"`
}

// SwitchClientInput is the input for the switch_client tool.
type SwitchClientInput struct {
	PID int32 `json:"pid" jsonschema:"required,Process id of the registered client to bring to the panel"`
}

// SwitchClientOutput is the output for the switch_client tool.
type SwitchClientOutput struct {
	Switched bool `json:"switched"`
}

// SetLauncherInput is the input for the set_launcher tool.
type SetLauncherInput struct {
	PID int32 `json:"pid" jsonschema:"required,Process id of the registered client that should act as launcher"`
}

// SetLauncherOutput is the output for the set_launcher tool.
type SetLauncherOutput struct {
	Set bool `json:"set"`
}
