// Package objectdetection turns the candidate boxes of a detection model into labelled
// detections in display coordinates.
package objectdetection

import (
	"fmt"
	"image"
	"math"
)

// Rect is an axis aligned box given by its top left corner and size.
type Rect struct {
	X, Y, W, H float64
}

// Area returns W*H, or 0 for degenerate boxes.
func (r Rect) Area() float64 {
	if r.W <= 0 || r.H <= 0 {
		return 0
	}
	return r.W * r.H
}

// Intersect returns the overlap of r and o, which is empty when they do not overlap.
func (r Rect) Intersect(o Rect) Rect {
	x0, y0 := math.Max(r.X, o.X), math.Max(r.Y, o.Y)
	x1, y1 := math.Min(r.X+r.W, o.X+o.W), math.Min(r.Y+r.H, o.Y+o.H)
	if x1 <= x0 || y1 <= y0 {
		return Rect{}
	}
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// IoU is the intersection over union of r and o.
func (r Rect) IoU(o Rect) float64 {
	inter := r.Intersect(o).Area()
	if inter == 0 {
		return 0
	}
	return inter / (r.Area() + o.Area() - inter)
}

// Pixels rounds r to an integer rectangle.
func (r Rect) Pixels() image.Rectangle {
	return image.Rect(
		int(math.Round(r.X)), int(math.Round(r.Y)),
		int(math.Round(r.X+r.W)), int(math.Round(r.Y+r.H)))
}

func (r Rect) String() string {
	return fmt.Sprintf("(%.3g,%.3g %.3gx%.3g)", r.X, r.Y, r.W, r.H)
}

// Detection is one box the model is confident about.
type Detection struct {
	Box        Rect
	ClassID    int
	Label      string
	Confidence float64
}

func (d Detection) String() string {
	return fmt.Sprintf("%s %.2f at %v", d.Label, d.Confidence, d.Box)
}

// Transform is the affine map
//
//	x' = A*x + C*y + Tx
//	y' = B*x + D*y + Ty
//
// from normalized, bottom-left origin coordinates into display coordinates.
type Transform struct {
	A, B, C, D, Tx, Ty float64
}

// Identity leaves coordinates normalized.
func Identity() Transform {
	return Transform{A: 1, D: 1}
}

// ScaleTo maps the unit square onto a width x height display.
func ScaleTo(width, height float64) Transform {
	return Transform{A: width, D: height}
}

// Then returns the transform that applies t and then next.
func (t Transform) Then(next Transform) Transform {
	return Transform{
		A:  next.A*t.A + next.C*t.B,
		B:  next.B*t.A + next.D*t.B,
		C:  next.A*t.C + next.C*t.D,
		D:  next.B*t.C + next.D*t.D,
		Tx: next.A*t.Tx + next.C*t.Ty + next.Tx,
		Ty: next.B*t.Tx + next.D*t.Ty + next.Ty,
	}
}

// Point maps a single point.
func (t Transform) Point(x, y float64) (float64, float64) {
	return t.A*x + t.C*y + t.Tx, t.B*x + t.D*y + t.Ty
}

// Rect maps a box and returns the axis aligned bounds of its image.
func (t Transform) Rect(r Rect) Rect {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range [4][2]float64{{r.X, r.Y}, {r.X + r.W, r.Y}, {r.X, r.Y + r.H}, {r.X + r.W, r.Y + r.H}} {
		x, y := t.Point(c[0], c[1])
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	return Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}
