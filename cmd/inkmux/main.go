package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/1broseidon/inkmux/internal/config"
	"github.com/1broseidon/inkmux/internal/fb"
	"github.com/1broseidon/inkmux/internal/protocol"
	"github.com/1broseidon/inkmux/internal/runtimepath"
	"github.com/1broseidon/inkmux/internal/server"
	"github.com/1broseidon/inkmux/internal/sink"
)

func main() {
	if len(os.Args) < 2 {
		printMainUsage(os.Stdout)
		os.Exit(0)
	}

	switch os.Args[1] {
	case "daemon":
		os.Exit(runDaemon(os.Args[2:]))
	case "ctl":
		os.Exit(runCtl(os.Args[2:], os.Stdout, os.Stderr))
	case "config":
		os.Exit(runConfig(os.Args[2:]))
	case "mcp":
		os.Exit(runMCP(os.Args[2:]))
	case "help", "-h", "--help":
		printMainUsage(os.Stdout)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printMainUsage(os.Stderr)
		os.Exit(2)
	}
}

func printMainUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: inkmux <command> [options]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  daemon              Start the display server (foreground)")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  ctl list            List registered clients")
	fmt.Fprintln(w, "  ctl switch <pid>    Show a client on the panel")
	fmt.Fprintln(w, "  ctl launcher <pid>  Designate the launcher client")
	fmt.Fprintln(w, "  ctl screenshot <f>  Save the shared framebuffer as PNG")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  config validate     Validate configuration")
	fmt.Fprintln(w, "  config print        Print configuration")
	fmt.Fprintln(w, "  config explain      Explain a config value")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  mcp serve           Start MCP server (stdio transport)")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'inkmux <command> --help' for command-specific options.")
}

func runDaemon(args []string) int {
	if len(args) > 0 && (args[0] == "help" || args[0] == "-h" || args[0] == "--help") {
		fmt.Fprintln(os.Stdout, "Usage: inkmux daemon")
		return 0
	}
	if len(args) > 0 {
		fmt.Fprintln(os.Stderr, "daemon takes no arguments")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Usage: inkmux daemon")
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	paths, err := runtimepath.Resolve(cfg.RuntimeDir)
	if err != nil {
		log.Fatalf("Failed to resolve runtime directory: %v", err)
	}

	f, err := fb.Allocate()
	if err != nil {
		log.Fatalf("Failed to allocate framebuffer: %v", err)
	}
	defer f.Close()

	out := openSink(cfg, f, logger)
	var input <-chan protocol.InputEvent
	if src, ok := out.(sink.InputSource); ok {
		input = src.Input()
	}
	pipeline := sink.NewPipeline(out, cfg.QueueDepth, cfg.RefreshInterval(), logger.With("component", "pipeline"))

	srv := server.New(server.Config{
		Paths:         paths,
		PauseInactive: cfg.PauseInactive,
		ReapInterval:  cfg.ReapInterval(),
		Logger:        logger.With("component", "server"),
		Input:         input,
	}, f, pipeline, server.SystemProcesses{})
	if err := srv.Init(); err != nil {
		log.Fatalf("Failed to start display server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("inkmux daemon started", "sink", cfg.Sink, "update", paths.Update, "control", paths.Control, "session", paths.Session)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("display server stopped", "error", err)
		return 1
	}
	return 0
}

// openSink opens the configured sink. A sink that cannot be opened leaves the
// daemon running without one; updates are then refused.
func openSink(cfg *config.Config, f *fb.Framebuffer, logger *slog.Logger) sink.Sink {
	sinkLogger := logger.With("component", "sink", "sink", cfg.Sink)
	switch cfg.Sink {
	case config.SinkNull:
		return sink.NewNull(sinkLogger)
	case config.SinkFBDev:
		d, err := sink.OpenFBDev(cfg.FBDev.Path, f, sinkLogger)
		if err != nil {
			logger.Error("display sink unavailable", "error", err)
			return nil
		}
		return d
	case config.SinkX11:
		x, err := sink.OpenX11(sink.X11Options{
			Display: cfg.X11.Display,
			Scale:   cfg.X11.Scale,
			Title:   cfg.X11.Title,
		}, f, sinkLogger)
		if err != nil {
			logger.Error("display sink unavailable", "error", err)
			return nil
		}
		return x
	}
	return nil
}
