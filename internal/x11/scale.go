package x11

import "image"

// Scaler maps between panel and preview window coordinates.
type Scaler struct {
	Panel image.Rectangle
	Scale float64
}

// FitScale returns the largest scale (at most 1) at which a panel of the
// given height fits into avail pixels, leaving a small margin for the
// window decoration.
func FitScale(panelHeight, avail int) float64 {
	const decoration = 48
	if panelHeight <= 0 || avail-decoration <= 0 {
		return 1
	}
	s := float64(avail-decoration) / float64(panelHeight)
	if s > 1 {
		return 1
	}
	return s
}

// WindowSize returns the preview window size.
func (s Scaler) WindowSize() (int, int) {
	w := int(float64(s.Panel.Dx()) * s.Scale)
	h := int(float64(s.Panel.Dy()) * s.Scale)
	return max(w, 1), max(h, 1)
}

// ToWindow maps a panel rectangle onto the window rectangle covering it.
func (s Scaler) ToWindow(r image.Rectangle) image.Rectangle {
	w, h := s.WindowSize()
	out := image.Rect(
		int(float64(r.Min.X)*s.Scale),
		int(float64(r.Min.Y)*s.Scale),
		int(float64(r.Max.X)*s.Scale+0.999),
		int(float64(r.Max.Y)*s.Scale+0.999),
	)
	return out.Intersect(image.Rect(0, 0, w, h))
}

// ToPanel maps a window point onto the panel, clamped to its bounds.
func (s Scaler) ToPanel(x, y int) image.Point {
	px := int(float64(x) / s.Scale)
	py := int(float64(y) / s.Scale)
	px = min(max(px, s.Panel.Min.X), s.Panel.Max.X-1)
	py = min(max(py, s.Panel.Min.Y), s.Panel.Max.Y-1)
	return image.Pt(px, py)
}
