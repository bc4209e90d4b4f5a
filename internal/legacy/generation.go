package legacy

import (
	"fmt"

	"github.com/1broseidon/inkmux/internal/protocol"
)

// Generation names a hardware generation's native refresh vocabulary.
type Generation string

const (
	// GenerationMXCFB drivers take explicit waveform + update mode pairs.
	GenerationMXCFB Generation = "mxcfb"
	// GenerationSWTCON3 drivers expose three coarse modes.
	GenerationSWTCON3 Generation = "swtcon3"
	// GenerationSWTCON5 drivers expose five coarse modes.
	GenerationSWTCON5 Generation = "swtcon5"
)

// Mode is the protocol meaning of one native mode value.
type Mode struct {
	Waveform protocol.Waveform
	Flags    protocol.Flags
	NoOp     bool
}

var swtcon3Modes = map[int32]Mode{
	0: {Waveform: protocol.WaveformHighFidelity, Flags: protocol.FlagFull},
	1: {Waveform: protocol.WaveformGrayscale},
	2: {Waveform: protocol.WaveformDirect, Flags: protocol.FlagFastDraw},
}

var swtcon5Modes = map[int32]Mode{
	0: {NoOp: true},
	1: {Waveform: protocol.WaveformHighFidelity, Flags: protocol.FlagFull},
	2: {Waveform: protocol.WaveformGrayscale},
	3: {Waveform: protocol.WaveformDirect, Flags: protocol.FlagFastDraw},
	4: {Waveform: protocol.WaveformPan},
}

// ParseGeneration validates a configured generation name.
func ParseGeneration(s string) (Generation, error) {
	switch g := Generation(s); g {
	case GenerationMXCFB, GenerationSWTCON3, GenerationSWTCON5:
		return g, nil
	default:
		return "", fmt.Errorf("unknown device generation %q", s)
	}
}

// Lookup returns the protocol meaning of a native mode value. ok is false
// for values outside the generation's vocabulary; mxcfb has no coarse modes.
func Lookup(gen Generation, mode int32) (Mode, bool) {
	var table map[int32]Mode
	switch gen {
	case GenerationSWTCON3:
		table = swtcon3Modes
	case GenerationSWTCON5:
		table = swtcon5Modes
	default:
		return Mode{}, false
	}
	m, ok := table[mode]
	return m, ok
}

// Params builds update parameters for a coarse-mode request on rect
// (x, y, width, height). ok is false for no-op and unknown modes.
func Params(gen Generation, x, y, width, height, mode int32) (protocol.UpdateParams, bool) {
	m, ok := Lookup(gen, mode)
	if !ok || m.NoOp {
		return protocol.UpdateParams{}, false
	}
	return protocol.UpdateParams{
		Y1:       y,
		X1:       x,
		Y2:       y + height - 1,
		X2:       x + width - 1,
		Flags:    m.Flags,
		Waveform: m.Waveform,
	}, true
}
