// Package protocol carries damaged-rectangle updates from clients to the
// display server over a local datagram socket.
//
// Wire layout of an update, six little-endian int32 values, 24 bytes:
//
//	y1 x1 y2 x2 flags waveform
//
// The y-before-x order is fixed for compatibility with existing clients.
// The reply is a single byte, 1 for success and 0 for failure.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
)

// UpdateSize is the encoded size of UpdateParams.
const UpdateSize = 24

// InputEventSize is the encoded size of InputEvent.
const InputEventSize = 12

// ErrMalformed marks a datagram that does not decode to a message.
var ErrMalformed = errors.New("malformed message")

// Flags is the update flag bitset.
type Flags int32

const (
	FlagFull     Flags = 1 << 0
	FlagSync     Flags = 1 << 1
	FlagFastDraw Flags = 1 << 2
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

func (f Flags) String() string {
	s := ""
	add := func(name string) {
		if s != "" {
			s += "|"
		}
		s += name
	}
	if f.Has(FlagFull) {
		add("full")
	}
	if f.Has(FlagSync) {
		add("sync")
	}
	if f.Has(FlagFastDraw) {
		add("fast")
	}
	if rest := f &^ (FlagFull | FlagSync | FlagFastDraw); rest != 0 {
		add(fmt.Sprintf("%#x", int32(rest)))
	}
	if s == "" {
		return "partial"
	}
	return s
}

// Waveform is the refresh quality mode of an update.
type Waveform int32

const (
	WaveformInit         Waveform = 0
	WaveformDirect       Waveform = 1
	WaveformHighFidelity Waveform = 2
	WaveformGrayscale    Waveform = 3
	WaveformPan          Waveform = 4
)

func (w Waveform) String() string {
	switch w {
	case WaveformInit:
		return "init"
	case WaveformDirect:
		return "direct"
	case WaveformHighFidelity:
		return "high-fidelity"
	case WaveformGrayscale:
		return "grayscale"
	case WaveformPan:
		return "pan"
	default:
		return fmt.Sprintf("waveform(%d)", int32(w))
	}
}

// UpdateParams describes one damaged rectangle. The bottom-right corner
// (Y2, X2) is inclusive.
type UpdateParams struct {
	Y1, X1   int32
	Y2, X2   int32
	Flags    Flags
	Waveform Waveform
}

// Rect returns the update region as a half-open image.Rectangle.
func (p UpdateParams) Rect() image.Rectangle {
	return image.Rect(int(p.X1), int(p.Y1), int(p.X2)+1, int(p.Y2)+1)
}

// ParamsForRect builds UpdateParams covering r.
func ParamsForRect(r image.Rectangle, waveform Waveform, flags Flags) UpdateParams {
	return UpdateParams{
		Y1:       int32(r.Min.Y),
		X1:       int32(r.Min.X),
		Y2:       int32(r.Max.Y - 1),
		X2:       int32(r.Max.X - 1),
		Flags:    flags,
		Waveform: waveform,
	}
}

// Clamp restricts the rectangle to bounds. ok is false when nothing of the
// rectangle remains.
func (p UpdateParams) Clamp(bounds image.Rectangle) (UpdateParams, bool) {
	r := p.Rect()
	if r.Dx() <= 0 || r.Dy() <= 0 {
		return p, false
	}
	r = r.Intersect(bounds)
	if r.Empty() {
		return p, false
	}
	return ParamsForRect(r, p.Waveform, p.Flags), true
}

func (p UpdateParams) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d) %s %s", p.X1, p.Y1, p.X2, p.Y2, p.Waveform, p.Flags)
}

// MarshalBinary encodes p into its 24-byte wire form.
func (p UpdateParams) MarshalBinary() ([]byte, error) {
	buf := make([]byte, UpdateSize)
	p.put(buf)
	return buf, nil
}

func (p UpdateParams) put(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:], uint32(p.Y1))
	binary.LittleEndian.PutUint32(buf[4:], uint32(p.X1))
	binary.LittleEndian.PutUint32(buf[8:], uint32(p.Y2))
	binary.LittleEndian.PutUint32(buf[12:], uint32(p.X2))
	binary.LittleEndian.PutUint32(buf[16:], uint32(p.Flags))
	binary.LittleEndian.PutUint32(buf[20:], uint32(p.Waveform))
}

// UnmarshalBinary decodes exactly UpdateSize bytes.
func (p *UpdateParams) UnmarshalBinary(data []byte) error {
	if len(data) != UpdateSize {
		return fmt.Errorf("%w: update is %d bytes, want %d", ErrMalformed, len(data), UpdateSize)
	}
	p.Y1 = int32(binary.LittleEndian.Uint32(data[0:]))
	p.X1 = int32(binary.LittleEndian.Uint32(data[4:]))
	p.Y2 = int32(binary.LittleEndian.Uint32(data[8:]))
	p.X2 = int32(binary.LittleEndian.Uint32(data[12:]))
	p.Flags = Flags(binary.LittleEndian.Uint32(data[16:]))
	p.Waveform = Waveform(binary.LittleEndian.Uint32(data[20:]))
	return nil
}

// InputType classifies a pointer event.
type InputType int32

const (
	InputMove InputType = 0
	InputDown InputType = 1
	InputUp   InputType = 2
)

// InputEvent is a pointer event delivered to the active client.
type InputEvent struct {
	X, Y int32
	Type InputType
}

// MarshalBinary encodes e into its 12-byte wire form.
func (e InputEvent) MarshalBinary() ([]byte, error) {
	buf := make([]byte, InputEventSize)
	binary.LittleEndian.PutUint32(buf[0:], uint32(e.X))
	binary.LittleEndian.PutUint32(buf[4:], uint32(e.Y))
	binary.LittleEndian.PutUint32(buf[8:], uint32(e.Type))
	return buf, nil
}

// UnmarshalBinary decodes exactly InputEventSize bytes. Types other than
// down and up decode as moves.
func (e *InputEvent) UnmarshalBinary(data []byte) error {
	if len(data) != InputEventSize {
		return fmt.Errorf("%w: input event is %d bytes, want %d", ErrMalformed, len(data), InputEventSize)
	}
	e.X = int32(binary.LittleEndian.Uint32(data[0:]))
	e.Y = int32(binary.LittleEndian.Uint32(data[4:]))
	switch t := InputType(binary.LittleEndian.Uint32(data[8:])); t {
	case InputDown, InputUp:
		e.Type = t
	default:
		e.Type = InputMove
	}
	return nil
}

// EncodeBool returns the one-byte boolean reply.
func EncodeBool(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}

// DecodeBool decodes a one-byte boolean reply.
func DecodeBool(data []byte) (bool, error) {
	if len(data) != 1 {
		return false, fmt.Errorf("%w: boolean reply is %d bytes", ErrMalformed, len(data))
	}
	return data[0] != 0, nil
}
