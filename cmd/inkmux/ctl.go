package main

import (
	"flag"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"os"
	"strconv"

	"golang.org/x/term"

	"github.com/1broseidon/inkmux/internal/config"
	"github.com/1broseidon/inkmux/internal/fb"
	"github.com/1broseidon/inkmux/internal/ipc"
	"github.com/1broseidon/inkmux/internal/runtimepath"
)

// controlClient is the part of ipc.Client the ctl commands use.
type controlClient interface {
	ListClients() ([]ipc.ClientRecord, error)
	SwitchTo(pid int32) (bool, error)
	SetLauncher(pid int32) (bool, error)
	GetFramebuffer() (*fb.Framebuffer, error)
	Close() error
}

var dialControl = func(path string) (controlClient, error) {
	return ipc.Dial(path, ipc.DefaultTimeout)
}

// isTerminal reports whether w is an interactive terminal.
var isTerminal = func(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func printCtlUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: inkmux ctl [--socket PATH] <command>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  list               List registered clients")
	fmt.Fprintln(w, "  switch <pid>       Show the client with <pid> on the panel")
	fmt.Fprintln(w, "  launcher <pid>     Designate the launcher client")
	fmt.Fprintln(w, "  screenshot <file>  Save the shared framebuffer as PNG")
}

func runCtl(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	socket := fs.String("socket", "", "Control socket path (default: from runtime_dir)")
	fs.Usage = func() { printCtlUsage(stderr) }
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	rest := fs.Args()
	if len(rest) == 0 {
		printCtlUsage(stderr)
		return 2
	}

	cmd, rest := rest[0], rest[1:]
	switch cmd {
	case "list":
		if len(rest) != 0 {
			printCtlUsage(stderr)
			return 2
		}
	case "switch", "launcher":
		if len(rest) != 1 {
			printCtlUsage(stderr)
			return 2
		}
		if _, err := parsePID(rest[0]); err != nil {
			fmt.Fprintln(stderr, err)
			printCtlUsage(stderr)
			return 2
		}
	case "screenshot":
		if len(rest) != 1 {
			printCtlUsage(stderr)
			return 2
		}
	case "help":
		printCtlUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown ctl command: %s\n\n", cmd)
		printCtlUsage(stderr)
		return 2
	}

	path, err := controlPath(*socket)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	client, err := dialControl(path)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer client.Close()

	switch cmd {
	case "list":
		return ctlList(client, stdout, stderr)
	case "switch":
		pid, _ := parsePID(rest[0])
		return ctlBool(stderr, "switch", pid, client.SwitchTo)
	case "launcher":
		pid, _ := parsePID(rest[0])
		return ctlBool(stderr, "launcher", pid, client.SetLauncher)
	default:
		return ctlScreenshot(client, rest[0], stdout, stderr)
	}
}

func parsePID(s string) (int32, error) {
	pid, err := strconv.ParseInt(s, 10, 32)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid %q", s)
	}
	return int32(pid), nil
}

// controlPath resolves the control socket: an explicit path wins, then the
// configured runtime_dir, then the default runtime directory.
func controlPath(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	dir := ""
	if cfg, err := config.Load(); err == nil {
		dir = cfg.RuntimeDir
	}
	paths, err := runtimepath.Resolve(dir)
	if err != nil {
		return "", err
	}
	return paths.Control, nil
}

func ctlList(client controlClient, stdout, stderr io.Writer) int {
	records, err := client.ListClients()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	bold := isTerminal(stdout)
	for _, r := range records {
		marker := " "
		if r.Active {
			marker = "*"
		}
		line := fmt.Sprintf("%s %d %s", marker, r.PID, r.Name)
		if r.Active && bold {
			line = "\x1b[1m" + line + "\x1b[0m"
		}
		fmt.Fprintln(stdout, line)
	}
	return 0
}

func ctlBool(stderr io.Writer, what string, pid int32, call func(int32) (bool, error)) int {
	ok, err := call(pid)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if !ok {
		fmt.Fprintf(stderr, "%s: no client with pid %d\n", what, pid)
		return 1
	}
	return 0
}

func ctlScreenshot(client controlClient, path string, stdout, stderr io.Writer) int {
	f, err := client.GetFramebuffer()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer f.Close()

	if err := writePNG(path, f.View()); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	fmt.Fprintf(stdout, "wrote %s\n", path)
	return 0
}

func writePNG(path string, src image.Image) (err error) {
	// Encode from a private copy; clients keep drawing into the shared one.
	img := image.NewRGBA(src.Bounds())
	draw.Draw(img, img.Bounds(), src, src.Bounds().Min, draw.Src)

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if err := png.Encode(out, img); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return nil
}
