// Package overlay maps recognized bounding boxes onto a rendered image.
package overlay

import "math"

// MinSize is the smallest width or height of a mapped rectangle, in display pixels.
const MinSize = 10

// aspectTolerance is how close two aspect ratios must be to count as equal.
const aspectTolerance = 0.01

// Size is a width and height in pixels
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Valid reports whether both dimensions are positive
func (s Size) Valid() bool {
	return s.Width > 0 && s.Height > 0
}

// Box is an axis-aligned rectangle in source image pixel coordinates
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Empty reports whether the box carries no visual provenance
func (b Box) Empty() bool {
	return b.Width == 0 || b.Height == 0
}

// Rect is an axis-aligned rectangle in display pixel coordinates
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// SourceSize picks the source grid for mapping. The dimensions reported by the
// recognizer win when both are known, because the image may have been
// re-rendered at a different intrinsic size than the one it saw.
func SourceSize(recognized, intrinsic Size) Size {
	if recognized.Valid() {
		return recognized
	}
	return intrinsic
}

// MapToDisplay converts box from source pixel space into display pixel space.
// The second return value is false when no overlay should be drawn.
//
// When the aspect ratios differ, the constraining dimension's scale is applied
// uniformly to both axes. No letterbox offset is added.
func MapToDisplay(source, display Size, box Box) (Rect, bool) {
	if box.Empty() || !source.Valid() || !display.Valid() {
		return Rect{}, false
	}

	sw, sh := float64(source.Width), float64(source.Height)
	dw, dh := float64(display.Width), float64(display.Height)

	sourceAspect := sw / sh
	displayAspect := dw / dh

	var scaleX, scaleY float64
	switch {
	case math.Abs(sourceAspect-displayAspect) < aspectTolerance:
		scaleX = dw / sw
		scaleY = dh / sh
	case sourceAspect > displayAspect:
		// width constrains
		scaleX = dw / sw
		scaleY = scaleX
	default:
		scaleY = dh / sh
		scaleX = scaleY
	}

	return Rect{
		X:      int(math.Round(box.X * scaleX)),
		Y:      int(math.Round(box.Y * scaleY)),
		Width:  max(int(math.Round(box.Width*scaleX)), MinSize),
		Height: max(int(math.Round(box.Height*scaleY)), MinSize),
	}, true
}
