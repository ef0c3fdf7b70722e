// Package transform implements the two spatial transform families used by
// mosaic refinement: a bivariate centered/normalized Legendre polynomial
// warp, and a discontinuous triangle-mesh transform over a uniform grid of
// control points with a cell-indexed acceleration structure.
//
// Both families map between mosaic space (xy) and tile space (uv) and are
// mutated in place by the refinement driver.
package transform

import (
	"errors"

	"github.com/mosaickit/go-mosaic-register/geom"
)

var (
	// ErrSingular is returned when a parameter fit's linear system is
	// rank deficient; the transform parameters are left untouched.
	ErrSingular = errors.New("transform: singular linear system")

	// ErrNotReady is returned when a transform is used before Setup.
	ErrNotReady = errors.New("transform: not set up")

	// ErrBadControlPoints is returned when Setup receives a control point
	// slice of the wrong length.
	ErrBadControlPoints = errors.New("transform: control point count mismatch")
)

// Transform is the capability set shared by the two transform families.
// The refinement driver dispatches on the concrete type for mutation.
type Transform interface {
	// Transform maps a mosaic-space point to tile space.
	// ok is false when the point is outside the transform's reach.
	Transform(xy geom.Point) (uv geom.Point, ok bool)

	// TransformInv maps a tile-space point to mosaic space.
	TransformInv(uv geom.Point) (xy geom.Point, ok bool)

	// Jacobian returns the derivative of the tile-space output with
	// respect to the mosaic-space input at xy.
	Jacobian(xy geom.Point) (j [2][2]float64, ok bool)

	// Domain returns the tile-space box the transform maps onto.
	Domain() geom.Box
}
