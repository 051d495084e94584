// Package geometry computes crop rectangles and padding boxes used to reshape
// downloaded videos onto a fixed canvas. All functions are pure.
package geometry

import (
	"errors"
	"fmt"
)

// ErrInvalidDimensions is returned when a width, height or ratio term is not positive.
var ErrInvalidDimensions = errors.New("invalid dimensions: width and height must be positive")

// Dimensions is a width/height pair in pixels.
type Dimensions struct {
	Width  int
	Height int
}

// Ratio returns width/height.
func (d Dimensions) Ratio() float64 {
	if d.Height == 0 {
		return 0
	}
	return float64(d.Width) / float64(d.Height)
}

// Valid reports whether both sides are positive.
func (d Dimensions) Valid() bool {
	return d.Width > 0 && d.Height > 0
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// Rect is a crop rectangle inside a source frame.
type Rect struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Padding holds the gutters added around scaled content on a canvas.
type Padding struct {
	Left   int
	Right  int
	Top    int
	Bottom int
}

// CropRect returns the largest centered rectangle of src with aspect ratio
// ratioW:ratioH. Sources wider than the target lose width, all others lose
// height. Arithmetic is integral so the result never exceeds src.
func CropRect(src Dimensions, ratioW, ratioH int) (Rect, error) {
	if !src.Valid() {
		return Rect{}, fmt.Errorf("%w: width=%d, height=%d", ErrInvalidDimensions, src.Width, src.Height)
	}
	if ratioW <= 0 || ratioH <= 0 {
		return Rect{}, fmt.Errorf("%w: ratio=%d:%d", ErrInvalidDimensions, ratioW, ratioH)
	}

	w, h := int64(src.Width), int64(src.Height)
	rw, rh := int64(ratioW), int64(ratioH)

	// w/h > rw/rh
	if w*rh > h*rw {
		newW := h * rw / rh
		return Rect{
			X:      int((w - newW) / 2),
			Y:      0,
			Width:  int(newW),
			Height: src.Height,
		}, nil
	}

	newH := w * rh / rw
	return Rect{
		X:      0,
		Y:      int((h - newH) / 2),
		Width:  src.Width,
		Height: int(newH),
	}, nil
}

// CanvasSize derives the output canvas from its height and background ratio.
func CanvasSize(height, ratioW, ratioH int) Dimensions {
	if ratioH <= 0 {
		return Dimensions{}
	}
	return Dimensions{
		Width:  height * ratioW / ratioH,
		Height: height,
	}
}

// PadLayout fits content of ratio ratioW:ratioH into canvas after reserving
// percentage gutters on each side. Left and Top always equal the configured
// percentage of the canvas, even when the fitted content is narrower than the
// space left between the side gutters; Right and Bottom absorb the rest.
func PadLayout(canvas Dimensions, ratioW, ratioH, sidePct, topPct, bottomPct int) (Padding, Dimensions, error) {
	if !canvas.Valid() {
		return Padding{}, Dimensions{}, fmt.Errorf("%w: canvas=%s", ErrInvalidDimensions, canvas)
	}
	if ratioW <= 0 || ratioH <= 0 {
		return Padding{}, Dimensions{}, fmt.Errorf("%w: ratio=%d:%d", ErrInvalidDimensions, ratioW, ratioH)
	}

	side := canvas.Width * sidePct / 100
	top := canvas.Height * topPct / 100
	bottom := canvas.Height * bottomPct / 100

	box := Dimensions{
		Width:  canvas.Width - 2*side,
		Height: canvas.Height - (top + bottom),
	}
	if !box.Valid() {
		return Padding{}, Dimensions{}, fmt.Errorf("%w: padding leaves %s for content", ErrInvalidDimensions, box)
	}

	bw, bh := int64(box.Width), int64(box.Height)
	rw, rh := int64(ratioW), int64(ratioH)

	var content Dimensions
	if bw*rh > bh*rw {
		// height is the limiting side
		content = Dimensions{Width: int(bh * rw / rh), Height: box.Height}
	} else {
		content = Dimensions{Width: box.Width, Height: int(bw * rh / rw)}
	}

	pad := Padding{
		Left:   side,
		Right:  canvas.Width - side - content.Width,
		Top:    top,
		Bottom: canvas.Height - top - content.Height,
	}
	return pad, content, nil
}
