package protocol

import (
	"errors"
	"image"
	"syscall"
	"testing"
)

func TestUpdateParams_WireOrder(t *testing.T) {
	p := UpdateParams{Y1: 1, X1: 2, Y2: 3, X2: 4, Flags: FlagFull | FlagSync, Waveform: WaveformHighFidelity}
	buf, err := p.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() error: %v", err)
	}
	if len(buf) != UpdateSize {
		t.Fatalf("len = %d, want %d", len(buf), UpdateSize)
	}
	// y1 first, then x1: the axis order is part of the wire format.
	want := []byte{1, 0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0, 4, 0, 0, 0, 3, 0, 0, 0, 2, 0, 0, 0}
	for i := range want {
		if buf[i] != want[i] {
			t.Fatalf("byte %d = %d, want %d (buf=%v)", i, buf[i], want[i], buf)
		}
	}
}

func TestUpdateParams_RoundTrip(t *testing.T) {
	tests := []UpdateParams{
		{},
		{Y1: 0, X1: 0, Y2: 9, X2: 9, Waveform: WaveformHighFidelity},
		{Y1: 1800, X1: 0, Y2: 1871, X2: 1403, Flags: FlagFull | FlagSync, Waveform: WaveformInit},
		{Y1: -5, X1: -7, Y2: 1 << 30, X2: -1 << 30, Flags: FlagFastDraw, Waveform: 99},
	}
	for _, want := range tests {
		buf, _ := want.MarshalBinary()
		var got UpdateParams
		if err := got.UnmarshalBinary(buf); err != nil {
			t.Fatalf("UnmarshalBinary(%v) error: %v", want, err)
		}
		if got != want {
			t.Fatalf("round trip = %+v, want %+v", got, want)
		}
	}
}

func TestUpdateParams_UnmarshalRejectsWrongLength(t *testing.T) {
	for _, n := range []int{0, 1, UpdateSize - 1, UpdateSize + 1} {
		var p UpdateParams
		err := p.UnmarshalBinary(make([]byte, n))
		if !errors.Is(err, ErrMalformed) {
			t.Fatalf("UnmarshalBinary(%d bytes) error = %v, want ErrMalformed", n, err)
		}
	}
}

func TestUpdateParams_Clamp(t *testing.T) {
	bounds := image.Rect(0, 0, 100, 50)
	tests := []struct {
		name string
		in   UpdateParams
		want UpdateParams
		ok   bool
	}{
		{"inside", UpdateParams{Y1: 1, X1: 2, Y2: 3, X2: 4}, UpdateParams{Y1: 1, X1: 2, Y2: 3, X2: 4}, true},
		{"overhang", UpdateParams{Y1: -10, X1: 90, Y2: 60, X2: 200}, UpdateParams{Y1: 0, X1: 90, Y2: 49, X2: 99}, true},
		{"outside", UpdateParams{Y1: 60, X1: 0, Y2: 70, X2: 10}, UpdateParams{}, false},
		{"inverted", UpdateParams{Y1: 10, X1: 10, Y2: 5, X2: 5}, UpdateParams{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.in.Clamp(bounds)
			if ok != tt.ok {
				t.Fatalf("Clamp() ok = %v, want %v", ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Fatalf("Clamp() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestInputEvent_Decode(t *testing.T) {
	tests := []struct {
		raw  InputType
		want InputType
	}{
		{1, InputDown},
		{2, InputUp},
		{0, InputMove},
		{7, InputMove},
	}
	for _, tt := range tests {
		buf, _ := InputEvent{X: 12, Y: 34, Type: tt.raw}.MarshalBinary()
		if len(buf) != InputEventSize {
			t.Fatalf("len = %d, want %d", len(buf), InputEventSize)
		}
		var ev InputEvent
		if err := ev.UnmarshalBinary(buf); err != nil {
			t.Fatalf("UnmarshalBinary() error: %v", err)
		}
		if ev.X != 12 || ev.Y != 34 || ev.Type != tt.want {
			t.Fatalf("decoded %+v, want type %d", ev, tt.want)
		}
	}
}

func TestFlagsString(t *testing.T) {
	tests := []struct {
		f    Flags
		want string
	}{
		{0, "partial"},
		{FlagFull, "full"},
		{FlagFull | FlagSync, "full|sync"},
		{FlagFastDraw | 0x10, "fast|0x10"},
	}
	for _, tt := range tests {
		if got := tt.f.String(); got != tt.want {
			t.Errorf("Flags(%d).String() = %q, want %q", tt.f, got, tt.want)
		}
	}
}

func TestTransportErrorErrno(t *testing.T) {
	err := transportErr("send", "/run/x.sock", syscall.ECONNREFUSED)
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("error %T is not a TransportError", err)
	}
	if te.Errno() != syscall.ECONNREFUSED {
		t.Fatalf("Errno() = %v, want ECONNREFUSED", te.Errno())
	}
	if !errors.Is(err, syscall.ECONNREFUSED) {
		t.Fatal("errors.Is should see the wrapped errno")
	}
}
