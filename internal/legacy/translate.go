package legacy

import (
	"github.com/1broseidon/inkmux/internal/protocol"
)

// Heuristic marks full refreshes near the bottom edge as synchronous. Some
// callers never ask to block on those updates even though they need to; the
// rectangle, waveform and mode are the only signal available.
type Heuristic struct {
	Enabled  bool
	MinTop   uint32
	Waveform uint32
}

// DefaultHeuristic is the heuristic used when nothing is configured.
func DefaultHeuristic() Heuristic {
	return Heuristic{Enabled: true, MinTop: 1800, Waveform: WaveformModeGC16}
}

func (h Heuristic) matches(d UpdateData) bool {
	return h.Enabled &&
		d.UpdateRegion.Left == 0 &&
		d.UpdateRegion.Top > h.MinTop &&
		d.WaveformMode == h.Waveform &&
		d.UpdateMode == UpdateModeFull
}

// Translator converts mxcfb update requests into update parameters.
type Translator struct {
	Heuristic Heuristic
}

// Translate maps d onto the update protocol. It depends only on d and the
// translator's heuristic.
func (t Translator) Translate(d UpdateData) protocol.UpdateParams {
	var flags protocol.Flags
	if d.UpdateMode == UpdateModeFull {
		flags |= protocol.FlagFull
		if d.WaveformMode == WaveformModeInit {
			flags |= protocol.FlagSync
		}
	}
	if t.Heuristic.matches(d) {
		flags |= protocol.FlagSync
	}
	if d.UpdateMode == UpdateModePartial && d.WaveformMode == WaveformModeDU {
		flags |= protocol.FlagFastDraw
	}

	r := d.UpdateRegion
	return protocol.UpdateParams{
		Y1:       int32(r.Top),
		X1:       int32(r.Left),
		Y2:       int32(r.Top) + int32(r.Height) - 1,
		X2:       int32(r.Left) + int32(r.Width) - 1,
		Flags:    flags,
		Waveform: WaveformFromMXCFB(d.WaveformMode),
	}
}

// WaveformFromMXCFB maps an mxcfb waveform mode onto a protocol waveform.
// Unknown modes fall back to high fidelity.
func WaveformFromMXCFB(mode uint32) protocol.Waveform {
	switch mode {
	case WaveformModeInit:
		return protocol.WaveformInit
	case WaveformModeDU, WaveformModeDU4:
		return protocol.WaveformDirect
	case WaveformModeA2:
		return protocol.WaveformPan
	case WaveformModeGL16, WaveformModeGL16Fast, WaveformModeGL4, WaveformModeGL16Inv:
		return protocol.WaveformGrayscale
	default:
		return protocol.WaveformHighFidelity
	}
}

// ToMXCFB builds the driver request for an update, for sinks that talk to
// an mxcfb device directly.
func ToMXCFB(p protocol.UpdateParams, marker uint32) UpdateData {
	r := p.Rect()
	d := UpdateData{
		UpdateRegion: Rect{
			Top:    uint32(r.Min.Y),
			Left:   uint32(r.Min.X),
			Width:  uint32(r.Dx()),
			Height: uint32(r.Dy()),
		},
		UpdateMode:   UpdateModePartial,
		UpdateMarker: marker,
		Temp:         TempUseAmbient,
	}
	if p.Flags.Has(protocol.FlagFull) {
		d.UpdateMode = UpdateModeFull
	}
	switch p.Waveform {
	case protocol.WaveformInit:
		d.WaveformMode = WaveformModeInit
	case protocol.WaveformDirect:
		d.WaveformMode = WaveformModeDU
	case protocol.WaveformGrayscale:
		d.WaveformMode = WaveformModeGL16
	case protocol.WaveformPan:
		d.WaveformMode = WaveformModeA2
	default:
		d.WaveformMode = WaveformModeGC16
	}
	return d
}
