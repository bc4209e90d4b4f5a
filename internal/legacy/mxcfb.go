// Package legacy maps the refresh vocabularies of older display drivers onto
// the waveform and flag vocabulary of the update protocol.
package legacy

// mxcfb ioctl request codes ('F' group).
const (
	MXCFB_SET_AUTO_UPDATE_MODE     = 0x4004462d
	MXCFB_SEND_UPDATE              = 0x4048462e
	MXCFB_WAIT_FOR_UPDATE_COMPLETE = 0xc008462f
)

// mxcfb waveform modes.
const (
	WaveformModeInit     uint32 = 0x0
	WaveformModeDU       uint32 = 0x1
	WaveformModeGC16     uint32 = 0x2
	WaveformModeGC16Fast uint32 = 0x3
	WaveformModeA2       uint32 = 0x4
	WaveformModeGL16     uint32 = 0x5
	WaveformModeGL16Fast uint32 = 0x6
	WaveformModeDU4      uint32 = 0x7
	WaveformModeREAGL    uint32 = 0x8
	WaveformModeREAGLD   uint32 = 0x9
	WaveformModeGL4      uint32 = 0xa
	WaveformModeGL16Inv  uint32 = 0xb
)

// mxcfb update modes.
const (
	UpdateModePartial uint32 = 0x0
	UpdateModeFull    uint32 = 0x1
)

// TempUseAmbient asks the driver to read the panel temperature itself.
const TempUseAmbient int32 = 0x1000

// Rect mirrors struct mxcfb_rect.
type Rect struct {
	Top    uint32
	Left   uint32
	Width  uint32
	Height uint32
}

// AltBufferData mirrors struct mxcfb_alt_buffer_data.
type AltBufferData struct {
	PhysAddr        uint32
	Width           uint32
	Height          uint32
	AltUpdateRegion Rect
}

// UpdateData mirrors struct mxcfb_update_data, the argument of
// MXCFB_SEND_UPDATE. Temp and DitherMode are accepted but not forwarded.
type UpdateData struct {
	UpdateRegion  Rect
	WaveformMode  uint32
	UpdateMode    uint32
	UpdateMarker  uint32
	Temp          int32
	Flags         uint32
	DitherMode    int32
	QuantBit      int32
	AltBufferData AltBufferData
}

// UpdateMarkerData mirrors struct mxcfb_update_marker_data, the argument of
// MXCFB_WAIT_FOR_UPDATE_COMPLETE.
type UpdateMarkerData struct {
	UpdateMarker  uint32
	CollisionTest uint32
}

var waveformNames = map[string]uint32{
	"init":      WaveformModeInit,
	"du":        WaveformModeDU,
	"gc16":      WaveformModeGC16,
	"gc16_fast": WaveformModeGC16Fast,
	"a2":        WaveformModeA2,
	"gl16":      WaveformModeGL16,
	"gl16_fast": WaveformModeGL16Fast,
	"du4":       WaveformModeDU4,
	"reagl":     WaveformModeREAGL,
	"reagld":    WaveformModeREAGLD,
	"gl4":       WaveformModeGL4,
	"gl16_inv":  WaveformModeGL16Inv,
}

// ParseWaveformMode resolves a lowercase mxcfb waveform name such as "gc16".
func ParseWaveformMode(name string) (uint32, bool) {
	mode, ok := waveformNames[name]
	return mode, ok
}
