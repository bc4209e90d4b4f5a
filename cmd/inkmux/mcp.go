package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/1broseidon/inkmux/internal/ipc"
	"github.com/1broseidon/inkmux/internal/mcp"
)

func printMCPUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: inkmux mcp <command>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve    Start the MCP server (stdio transport)")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'inkmux mcp <command> --help' for command-specific options.")
}

func runMCP(args []string) int {
	if len(args) == 0 {
		printMCPUsage(os.Stderr)
		return 2
	}

	switch args[0] {
	case "serve":
		return runMCPServe(args[1:])
	case "help", "-h", "--help":
		printMCPUsage(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown mcp command: %s\n\n", args[0])
		printMCPUsage(os.Stderr)
		return 2
	}
}

func runMCPServe(args []string) int {
	if len(args) > 0 && (args[0] == "help" || args[0] == "-h" || args[0] == "--help") {
		fmt.Fprintln(os.Stdout, "Usage: inkmux mcp serve")
		fmt.Fprintln(os.Stdout, "")
		fmt.Fprintln(os.Stdout, "Start the MCP server on stdio. It forwards list_clients, switch_client")
		fmt.Fprintln(os.Stdout, "and set_launcher to the running daemon's control socket.")
		return 0
	}

	path, err := controlPath("")
	if err != nil {
		log.Fatalf("Failed to resolve control socket: %v", err)
	}
	server := mcp.NewServer(redialControl{path: path})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx); err != nil {
		log.Fatalf("MCP server error: %v", err)
	}
	return 0
}

// redialControl opens a fresh control connection per call so the MCP server
// survives daemon restarts.
type redialControl struct {
	path string
}

func (r redialControl) with(fn func(controlClient) error) error {
	c, err := dialControl(r.path)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}

func (r redialControl) ListClients() (records []ipc.ClientRecord, err error) {
	err = r.with(func(c controlClient) error {
		records, err = c.ListClients()
		return err
	})
	return records, err
}

func (r redialControl) SwitchTo(pid int32) (ok bool, err error) {
	err = r.with(func(c controlClient) error {
		ok, err = c.SwitchTo(pid)
		return err
	})
	return ok, err
}

func (r redialControl) SetLauncher(pid int32) (ok bool, err error) {
	err = r.with(func(c controlClient) error {
		ok, err = c.SetLauncher(pid)
		return err
	})
	return ok, err
}
