package x11

import (
	"fmt"
	"image"
	"sync"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/xevent"
	"github.com/BurntSushi/xgbutil/xgraphics"
	"github.com/BurntSushi/xgbutil/xwindow"
)

// PointerKind classifies pointer input on the preview.
type PointerKind int

const (
	PointerMove PointerKind = iota
	PointerDown
	PointerUp
)

// PointerFunc receives pointer input in panel coordinates.
type PointerFunc func(p image.Point, kind PointerKind)

// Preview is a window showing a scaled copy of the panel.
type Preview struct {
	conn   *Connection
	win    *xwindow.Window
	scaler Scaler

	mu  sync.Mutex
	img *xgraphics.Image
}

// NewPreview creates and maps the preview window. A scale of zero fits the
// panel to the monitor under the pointer.
func NewPreview(conn *Connection, panel image.Rectangle, scale float64, title string) (*Preview, error) {
	x, y := 0, 0
	if scale <= 0 {
		scale = 1
		if area, err := conn.PreviewArea(); err == nil {
			scale = FitScale(panel.Dy(), area.Dy())
			x, y = area.Min.X, area.Min.Y
		}
	}
	scaler := Scaler{Panel: panel, Scale: scale}
	w, h := scaler.WindowSize()

	win, err := xwindow.Generate(conn.XUtil)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate preview window: %w", err)
	}
	err = win.CreateChecked(conn.Root, x, y, w, h,
		xproto.CwBackPixel|xproto.CwEventMask,
		0xffffff,
		xproto.EventMaskExposure|
			xproto.EventMaskButtonPress|
			xproto.EventMaskButtonRelease|
			xproto.EventMaskButton1Motion|
			xproto.EventMaskStructureNotify)
	if err != nil {
		return nil, fmt.Errorf("failed to create preview window: %w", err)
	}
	if title != "" {
		ewmh.WmNameSet(conn.XUtil, win.Id, title)
	}

	img := xgraphics.New(conn.XUtil, image.Rect(0, 0, w, h))
	if err := img.XSurfaceSet(win.Id); err != nil {
		win.Destroy()
		return nil, fmt.Errorf("failed to create preview surface: %w", err)
	}
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.XDraw()

	p := &Preview{conn: conn, win: win, scaler: scaler, img: img}
	xevent.ExposeFun(func(xu *xgbutil.XUtil, ev xevent.ExposeEvent) {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.img.XPaint(p.win.Id)
	}).Connect(conn.XUtil, win.Id)

	win.Map()
	return p, nil
}

// OnPointer routes pointer input on the window to fn.
func (p *Preview) OnPointer(fn PointerFunc) {
	xu := p.conn.XUtil
	xevent.ButtonPressFun(func(xu *xgbutil.XUtil, ev xevent.ButtonPressEvent) {
		if ev.Detail == 1 {
			fn(p.scaler.ToPanel(int(ev.EventX), int(ev.EventY)), PointerDown)
		}
	}).Connect(xu, p.win.Id)
	xevent.ButtonReleaseFun(func(xu *xgbutil.XUtil, ev xevent.ButtonReleaseEvent) {
		if ev.Detail == 1 {
			fn(p.scaler.ToPanel(int(ev.EventX), int(ev.EventY)), PointerUp)
		}
	}).Connect(xu, p.win.Id)
	xevent.MotionNotifyFun(func(xu *xgbutil.XUtil, ev xevent.MotionNotifyEvent) {
		fn(p.scaler.ToPanel(int(ev.EventX), int(ev.EventY)), PointerMove)
	}).Connect(xu, p.win.Id)
}

// OnClose calls fn when the window manager asks the window to close.
func (p *Preview) OnClose(fn func()) {
	p.win.WMGracefulClose(func(w *xwindow.Window) {
		xevent.Detach(w.X, w.Id)
		w.Destroy()
		fn()
	})
}

// Draw copies the panel rectangle r from src into the window and paints it.
// src must return panel pixels for panel coordinates.
func (p *Preview) Draw(src image.Image, r image.Rectangle) {
	dst := p.scaler.ToWindow(r)
	if dst.Empty() {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for y := dst.Min.Y; y < dst.Max.Y; y++ {
		for x := dst.Min.X; x < dst.Max.X; x++ {
			sp := p.scaler.ToPanel(x, y)
			cr, cg, cb, _ := src.At(sp.X, sp.Y).RGBA()
			p.img.SetBGRA(x, y, xgraphics.BGRA{B: uint8(cb >> 8), G: uint8(cg >> 8), R: uint8(cr >> 8), A: 0xff})
		}
	}
	sub, ok := p.img.SubImage(dst).(*xgraphics.Image)
	if !ok || sub == nil {
		return
	}
	sub.XDraw()
	sub.XPaint(p.win.Id)
}

// Hide unmaps the window.
func (p *Preview) Hide() { p.win.Unmap() }

// Show maps the window.
func (p *Preview) Show() { p.win.Map() }

// Close destroys the window and its surface.
func (p *Preview) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	xevent.Detach(p.conn.XUtil, p.win.Id)
	p.img.Destroy()
	p.win.Destroy()
}
