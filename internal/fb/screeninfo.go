package fb

// <linux/fb.h> ioctls. 0x46 is 'F'.
const (
	FBIOGET_VSCREENINFO = 0x4600
	FBIOPUT_VSCREENINFO = 0x4601
	FBIOGET_FSCREENINFO = 0x4602
)

// BitField mirrors struct fb_bitfield.
type BitField struct {
	Offset   uint32
	Length   uint32
	MSBRight uint32
}

// VarScreenInfo mirrors struct fb_var_screeninfo.
type VarScreenInfo struct {
	XRes, YRes               uint32
	XResVirtual, YResVirtual uint32
	XOffset, YOffset         uint32
	BitsPerPixel             uint32
	Grayscale                uint32

	Red, Green, Blue, Transp BitField

	NonStd     uint32
	Activate   uint32
	Height     uint32
	Width      uint32
	AccelFlags uint32

	PixClock    uint32
	LeftMargin  uint32
	RightMargin uint32
	UpperMargin uint32
	LowerMargin uint32
	HSyncLen    uint32
	VSyncLen    uint32
	Sync        uint32
	VMode       uint32
	Rotate      uint32
	Colorspace  uint32
	Reserved    [4]uint32
}

// FixScreenInfo mirrors struct fb_fix_screeninfo.
type FixScreenInfo struct {
	ID           [16]byte
	SMemStart    uintptr
	SMemLen      uint32
	Type         uint32
	TypeAux      uint32
	Visual       uint32
	XPanStep     uint16
	YPanStep     uint16
	YWrapStep    uint16
	LineLength   uint32
	MMIOStart    uintptr
	MMIOLen      uint32
	Accel        uint32
	Capabilities uint16
	Reserved     [2]uint16
}

const (
	fbTypePackedPixels = 0
	fbVisualTrueColor  = 2
)

// PanelVarScreenInfo returns the variable screen info the real panel
// driver reports.
func PanelVarScreenInfo() VarScreenInfo {
	return VarScreenInfo{
		XRes:         Width,
		YRes:         Height,
		XResVirtual:  Width,
		YResVirtual:  Height,
		BitsPerPixel: BytesPerPixel * 8,
		Red:          BitField{Offset: 11, Length: 5},
		Green:        BitField{Offset: 5, Length: 6},
		Blue:         BitField{Offset: 0, Length: 5},
		Height:       210,
		Width:        157,
		PixClock:     160000,
		VMode:        0,
	}
}

// PanelFixScreenInfo returns the fixed screen info the real panel driver
// reports. base is the local mapping address reported as smem_start.
func PanelFixScreenInfo(base uintptr) FixScreenInfo {
	info := FixScreenInfo{
		SMemStart:  base,
		SMemLen:    PixelBytes,
		Type:       fbTypePackedPixels,
		Visual:     fbVisualTrueColor,
		XPanStep:   1,
		YPanStep:   1,
		LineLength: Stride,
	}
	copy(info.ID[:], "mxc_epdc_fb")
	return info
}
