// Package geom provides the 2-D numeric primitives used throughout the
// registration engine: points, vectors and axis-aligned bounding boxes.
//
// Points are used both for mosaic-space coordinates (xy) and for normalized
// tile-space coordinates (uv).
package geom

import "math"

// Point is a location in a 2-D coordinate frame.
type Point struct {
	X, Y float64
}

// Vec is a displacement between two points.
type Vec struct {
	X, Y float64
}

// Pt is shorthand for Point{x, y}.
func Pt(x, y float64) Point { return Point{X: x, Y: y} }

// V is shorthand for Vec{x, y}.
func V(x, y float64) Vec { return Vec{X: x, Y: y} }

// Add returns p translated by v.
func (p Point) Add(v Vec) Point { return Point{p.X + v.X, p.Y + v.Y} }

// Sub returns the displacement from q to p.
func (p Point) Sub(q Point) Vec { return Vec{p.X - q.X, p.Y - q.Y} }

// Add returns the component-wise sum of two vectors.
func (v Vec) Add(w Vec) Vec { return Vec{v.X + w.X, v.Y + w.Y} }

// Sub returns the component-wise difference of two vectors.
func (v Vec) Sub(w Vec) Vec { return Vec{v.X - w.X, v.Y - w.Y} }

// Scale returns v scaled by s.
func (v Vec) Scale(s float64) Vec { return Vec{v.X * s, v.Y * s} }

// AbsSum returns the L1 norm |x| + |y|.
func (v Vec) AbsSum() float64 { return math.Abs(v.X) + math.Abs(v.Y) }

// Box is an axis-aligned bounding box. An empty box has Min > Max.
type Box struct {
	Min, Max Point
}

// EmptyBox returns a box that contains nothing and expands from any point.
func EmptyBox() Box {
	return Box{
		Min: Point{math.Inf(1), math.Inf(1)},
		Max: Point{math.Inf(-1), math.Inf(-1)},
	}
}

// Expand grows the box to include p.
func (b *Box) Expand(p Point) {
	b.Min.X = math.Min(b.Min.X, p.X)
	b.Min.Y = math.Min(b.Min.Y, p.Y)
	b.Max.X = math.Max(b.Max.X, p.X)
	b.Max.Y = math.Max(b.Max.Y, p.Y)
}

// IsEmpty reports whether the box contains no points.
func (b Box) IsEmpty() bool {
	return b.Min.X > b.Max.X || b.Min.Y > b.Max.Y
}

// Ext returns the box extent (width, height).
func (b Box) Ext() Vec { return b.Max.Sub(b.Min) }

// Center returns the box midpoint.
func (b Box) Center() Point {
	return Point{(b.Min.X + b.Max.X) / 2, (b.Min.Y + b.Max.Y) / 2}
}

// Contains reports whether p lies inside the closed box.
func (b Box) Contains(p Point) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X && p.Y >= b.Min.Y && p.Y <= b.Max.Y
}

// Intersects reports whether two boxes share any area (closed comparison).
func (b Box) Intersects(o Box) bool {
	if b.IsEmpty() || o.IsEmpty() {
		return false
	}
	return b.Min.X <= o.Max.X && o.Min.X <= b.Max.X &&
		b.Min.Y <= o.Max.Y && o.Min.Y <= b.Max.Y
}
