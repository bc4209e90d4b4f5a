package main

import (
	"bytes"
	"errors"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/1broseidon/inkmux/internal/fb"
	"github.com/1broseidon/inkmux/internal/ipc"
)

type fakeClient struct {
	records  []ipc.ClientRecord
	fb       *fb.Framebuffer
	err      error
	launcher int32
	closed   bool
}

func (f *fakeClient) ListClients() ([]ipc.ClientRecord, error) { return f.records, f.err }

func (f *fakeClient) SwitchTo(pid int32) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	found := false
	for i := range f.records {
		f.records[i].Active = f.records[i].PID == pid
		found = found || f.records[i].PID == pid
	}
	return found, nil
}

func (f *fakeClient) SetLauncher(pid int32) (bool, error) {
	for _, r := range f.records {
		if r.PID == pid {
			f.launcher = pid
			return true, nil
		}
	}
	return false, f.err
}

func (f *fakeClient) GetFramebuffer() (*fb.Framebuffer, error) {
	if f.fb == nil {
		return nil, errors.New("daemon has no framebuffer to share")
	}
	return f.fb, nil
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func useFake(t *testing.T, c *fakeClient) {
	t.Helper()
	prevDial, prevTerm := dialControl, isTerminal
	dialControl = func(string) (controlClient, error) { return c, nil }
	isTerminal = func(io.Writer) bool { return false }
	t.Cleanup(func() {
		dialControl, isTerminal = prevDial, prevTerm
	})
}

func twoClients() *fakeClient {
	return &fakeClient{records: []ipc.ClientRecord{
		{PID: 101, Name: "xochitl", Active: true},
		{PID: 202, Name: "koreader"},
	}}
}

func runCtlForTest(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := runCtl(append([]string{"--socket", "/nonexistent"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestCtlList(t *testing.T) {
	c := twoClients()
	useFake(t, c)

	code, out, _ := runCtlForTest("list")
	if code != 0 {
		t.Fatalf("ctl list exit = %d, want 0", code)
	}
	want := "* 101 xochitl\n  202 koreader\n"
	if out != want {
		t.Fatalf("ctl list output = %q, want %q", out, want)
	}
	if !c.closed {
		t.Fatalf("expected client to be closed")
	}
}

func TestCtlList_BoldActiveOnTerminal(t *testing.T) {
	useFake(t, twoClients())
	isTerminal = func(io.Writer) bool { return true }

	_, out, _ := runCtlForTest("list")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %q, want 2", lines)
	}
	if !strings.HasPrefix(lines[0], "\x1b[1m") || strings.Contains(lines[1], "\x1b[") {
		t.Fatalf("expected only the active line in bold, got %q", out)
	}
}

func TestCtlSwitch(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"known pid", []string{"switch", "202"}, 0},
		{"unknown pid", []string{"switch", "9999"}, 1},
		{"missing pid", []string{"switch"}, 2},
		{"invalid pid", []string{"switch", "abc"}, 2},
		{"negative pid", []string{"switch", "-4"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			useFake(t, twoClients())
			if code, _, _ := runCtlForTest(tt.args...); code != tt.want {
				t.Fatalf("ctl %v exit = %d, want %d", tt.args, code, tt.want)
			}
		})
	}
}

func TestCtlSwitch_ChangesActive(t *testing.T) {
	c := twoClients()
	useFake(t, c)
	if code, _, _ := runCtlForTest("switch", "202"); code != 0 {
		t.Fatalf("ctl switch exit = %d, want 0", code)
	}
	_, out, _ := runCtlForTest("list")
	if out != "  101 xochitl\n* 202 koreader\n" {
		t.Fatalf("ctl list after switch = %q", out)
	}
}

func TestCtlLauncher(t *testing.T) {
	c := twoClients()
	useFake(t, c)
	if code, _, _ := runCtlForTest("launcher", "202"); code != 0 {
		t.Fatalf("ctl launcher exit = %d, want 0", code)
	}
	if c.launcher != 202 {
		t.Fatalf("launcher = %d, want 202", c.launcher)
	}
}

func TestCtl_TransportErrorFails(t *testing.T) {
	useFake(t, &fakeClient{err: errors.New("failed to reach daemon")})
	code, _, stderr := runCtlForTest("list")
	if code != 1 {
		t.Fatalf("ctl list exit = %d, want 1", code)
	}
	if !strings.Contains(stderr, "failed to reach daemon") {
		t.Fatalf("stderr = %q", stderr)
	}
}

func TestCtl_UsageErrors(t *testing.T) {
	useFake(t, twoClients())
	for _, args := range [][]string{{}, {"bogus"}, {"list", "extra"}, {"screenshot"}} {
		if code, _, _ := runCtlForTest(args...); code != 2 {
			t.Fatalf("ctl %v exit = %d, want 2", args, code)
		}
	}
}

func TestCtlScreenshot(t *testing.T) {
	f, err := fb.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	f.Set(10, 20, 0)
	useFake(t, &fakeClient{fb: f})

	path := filepath.Join(t.TempDir(), "shot.png")
	if code, _, stderr := runCtlForTest("screenshot", path); code != 0 {
		t.Fatalf("ctl screenshot exit = %d, stderr %q", code, stderr)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()
	img, err := png.Decode(file)
	if err != nil {
		t.Fatalf("png.Decode: %v", err)
	}
	if img.Bounds() != fb.Bounds {
		t.Fatalf("bounds = %v, want %v", img.Bounds(), fb.Bounds)
	}
	if r, g, b, _ := img.At(10, 20).RGBA(); r != 0 || g != 0 || b != 0 {
		t.Fatalf("pixel (10,20) = %d,%d,%d, want black", r, g, b)
	}
	if r, _, _, _ := img.At(0, 0).RGBA(); r != 0xffff {
		t.Fatalf("pixel (0,0) red = %#x, want white", r)
	}
}

func TestCtlScreenshot_NoFramebuffer(t *testing.T) {
	useFake(t, &fakeClient{})
	path := filepath.Join(t.TempDir(), "shot.png")
	if code, _, _ := runCtlForTest("screenshot", path); code != 1 {
		t.Fatalf("ctl screenshot exit = %d, want 1", code)
	}
}

func TestRedialControl(t *testing.T) {
	c := twoClients()
	useFake(t, c)
	r := redialControl{path: "/nonexistent"}

	ok, err := r.SwitchTo(202)
	if err != nil || !ok {
		t.Fatalf("SwitchTo(202) = (%v, %v), want (true, nil)", ok, err)
	}
	records, err := r.ListClients()
	if err != nil {
		t.Fatalf("ListClients: %v", err)
	}
	if !records[1].Active {
		t.Fatalf("records = %+v, want 202 active", records)
	}
}
