package x11

import (
	"fmt"
	"image"

	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"
)

// Output is one active RandR output and its area on the root window.
type Output struct {
	Name   string
	Bounds image.Rectangle
}

// Outputs lists the active RandR outputs.
func (c *Connection) Outputs() ([]Output, error) {
	conn := c.XUtil.Conn()
	if err := randr.Init(conn); err != nil {
		return nil, fmt.Errorf("randr init failed: %w", err)
	}
	res, err := randr.GetScreenResources(conn, c.Root).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get screen resources: %w", err)
	}

	var outputs []Output
	for i, crtc := range res.Crtcs {
		info, err := randr.GetCrtcInfo(conn, crtc, res.ConfigTimestamp).Reply()
		if err != nil || info.Width == 0 || info.Height == 0 || len(info.Outputs) == 0 {
			continue
		}
		name := fmt.Sprintf("crtc%d", i)
		if out, err := randr.GetOutputInfo(conn, info.Outputs[0], res.ConfigTimestamp).Reply(); err == nil {
			name = string(out.Name)
		}
		outputs = append(outputs, Output{
			Name:   name,
			Bounds: image.Rect(int(info.X), int(info.Y), int(info.X)+int(info.Width), int(info.Y)+int(info.Height)),
		})
	}
	return outputs, nil
}

// PreviewArea is where the preview window should go: the output under the
// pointer (or the first output) clipped to the EWMH work area.
func (c *Connection) PreviewArea() (image.Rectangle, error) {
	outputs, err := c.Outputs()
	if err != nil {
		return image.Rectangle{}, err
	}
	if len(outputs) == 0 {
		return image.Rectangle{}, fmt.Errorf("no active outputs")
	}

	area := outputs[0].Bounds
	if p, err := c.pointer(); err == nil {
		for _, o := range outputs {
			if p.In(o.Bounds) {
				area = o.Bounds
				break
			}
		}
	}

	if wa, err := ewmh.WorkareaGet(c.XUtil); err == nil && len(wa) > 0 {
		work := image.Rect(wa[0].X, wa[0].Y, wa[0].X+int(wa[0].Width), wa[0].Y+int(wa[0].Height))
		if clipped := area.Intersect(work); !clipped.Empty() {
			area = clipped
		}
	}
	return area, nil
}

func (c *Connection) pointer() (image.Point, error) {
	reply, err := xproto.QueryPointer(c.XUtil.Conn(), c.Root).Reply()
	if err != nil {
		return image.Point{}, err
	}
	return image.Pt(int(reply.RootX), int(reply.RootY)), nil
}
