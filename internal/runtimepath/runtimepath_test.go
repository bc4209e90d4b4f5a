package runtimepath

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDir_UsesInkmuxRuntimeDirFirst(t *testing.T) {
	own := t.TempDir()
	xdg := t.TempDir()
	t.Setenv("INKMUX_RUNTIME_DIR", own)
	t.Setenv("XDG_RUNTIME_DIR", xdg)

	got, err := Dir()
	if err != nil {
		t.Fatalf("Dir() error: %v", err)
	}
	if got != own {
		t.Fatalf("Dir() = %q, want %q", got, own)
	}
}

func TestDir_UsesXDGRuntimeDirWhenSet(t *testing.T) {
	td := t.TempDir()
	t.Setenv("INKMUX_RUNTIME_DIR", "")
	t.Setenv("XDG_RUNTIME_DIR", td)

	got, err := Dir()
	if err != nil {
		t.Fatalf("Dir() error: %v", err)
	}
	if got != td {
		t.Fatalf("Dir() = %q, want %q", got, td)
	}
}

func TestDir_FallbacksWhenXDGRuntimeDirMissing(t *testing.T) {
	t.Setenv("INKMUX_RUNTIME_DIR", "")
	t.Setenv("XDG_RUNTIME_DIR", "")

	got, err := Dir()
	if err != nil {
		t.Fatalf("Dir() error: %v", err)
	}
	if got == "" {
		t.Fatal("Dir() returned empty path")
	}

	wantRun := fmt.Sprintf("/run/user/%d", os.Getuid())
	wantTmp := fmt.Sprintf("/tmp/inkmux-runtime-%d", os.Getuid())
	if got != wantRun && got != wantTmp {
		t.Fatalf("Dir() = %q, want %q or %q", got, wantRun, wantTmp)
	}
}

func TestSocketPaths(t *testing.T) {
	td := t.TempDir()
	t.Setenv("INKMUX_RUNTIME_DIR", "")
	t.Setenv("XDG_RUNTIME_DIR", td)

	control, err := ControlSocketPath()
	if err != nil {
		t.Fatalf("ControlSocketPath() error: %v", err)
	}
	if !strings.HasSuffix(control, "/"+ControlSocketName) {
		t.Fatalf("ControlSocketPath() = %q, missing suffix", control)
	}

	p, err := Resolve("")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if p.Control != control {
		t.Fatalf("Resolve().Control = %q, want %q", p.Control, control)
	}
	if p.Update == p.Control || p.Session == p.Control || p.Update == p.Session {
		t.Fatalf("socket paths collide: %+v", p)
	}
	if filepath.Dir(p.Session) != td || filepath.Dir(p.Update) != td {
		t.Fatalf("Resolve() = %+v, want all under %q", p, td)
	}
}

func TestResolve_OverrideWins(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())
	p, err := Resolve("/srv/ink")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if p.Control != "/srv/ink/"+ControlSocketName {
		t.Fatalf("Resolve().Control = %q", p.Control)
	}
}
