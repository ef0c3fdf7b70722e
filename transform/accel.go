package transform

import (
	"math"

	"github.com/mosaickit/go-mosaic-register/geom"
)

// Vertex couples the two coordinate sets stored at every mesh node.
// UV never mutates after setup; XY moves with control point displacements.
type Vertex struct {
	UV geom.Point // normalized tile space, typically [0, 1] x [0, 1]
	XY geom.Point // mosaic space
}

// Triangle references three mesh vertices in counterclockwise winding and
// caches the barycentric edge coefficients for both coordinate spaces.
// Mutating a referenced vertex's XY invalidates the xy coefficients until
// the acceleration grid is rebuilt.
type Triangle struct {
	V [3]int

	// precomputed fast barycentric coordinate coefficients; the weights
	// at p are wb = b[0] + b[1]*p.x + b[2]*p.y (and likewise wc):
	xyPWB, xyPWC [3]float64
	uvPWB, uvPWC [3]float64
}

func barycentricCoeffs(a, b, c geom.Point) (pwb, pwc [3]float64) {
	den := (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
	if den == 0 {
		nan := math.NaN()
		return [3]float64{nan, nan, nan}, [3]float64{nan, nan, nan}
	}

	pwb[0] = (a.Y*(c.X-a.X) - a.X*(c.Y-a.Y)) / den
	pwb[1] = (c.Y - a.Y) / den
	pwb[2] = -(c.X - a.X) / den

	pwc[0] = (a.X*(b.Y-a.Y) - a.Y*(b.X-a.X)) / den
	pwc[1] = -(b.Y - a.Y) / den
	pwc[2] = (b.X - a.X) / den
	return pwb, pwc
}

// precompute refreshes the cached coefficients from the current vertices.
func (t *Triangle) precompute(mesh []Vertex) {
	v0, v1, v2 := mesh[t.V[0]], mesh[t.V[1]], mesh[t.V[2]]
	t.xyPWB, t.xyPWC = barycentricCoeffs(v0.XY, v1.XY, v2.XY)
	t.uvPWB, t.uvPWC = barycentricCoeffs(v0.UV, v1.UV, v2.UV)
}

// weightSlack absorbs rounding in the affine weight evaluation so that
// points exactly on a vertex or shared edge are not rejected by every
// adjacent triangle.
const weightSlack = 1e-12

func interior(wa, wb, wc float64) bool {
	return wa >= -weightSlack && wa <= 1+weightSlack &&
		wb >= -weightSlack && wb <= 1+weightSlack &&
		wc >= -weightSlack && wc <= 1+weightSlack
}

// XYIntersect tests whether the xy point falls within the triangle and
// returns the barycentric interpolation of the vertex uv coordinates.
func (t *Triangle) XYIntersect(mesh []Vertex, xy geom.Point) (geom.Point, bool) {
	wb := t.xyPWB[0] + t.xyPWB[1]*xy.X + t.xyPWB[2]*xy.Y
	wc := t.xyPWC[0] + t.xyPWC[1]*xy.X + t.xyPWC[2]*xy.Y
	wa := 1 - wb - wc
	if !interior(wa, wb, wc) {
		return geom.Point{}, false
	}
	v0, v1, v2 := mesh[t.V[0]], mesh[t.V[1]], mesh[t.V[2]]
	return geom.Pt(
		wa*v0.UV.X+wb*v1.UV.X+wc*v2.UV.X,
		wa*v0.UV.Y+wb*v1.UV.Y+wc*v2.UV.Y,
	), true
}

// UVIntersect tests whether the uv point falls within the triangle and
// returns the barycentric interpolation of the vertex xy coordinates.
func (t *Triangle) UVIntersect(mesh []Vertex, uv geom.Point) (geom.Point, bool) {
	wb := t.uvPWB[0] + t.uvPWB[1]*uv.X + t.uvPWB[2]*uv.Y
	wc := t.uvPWC[0] + t.uvPWC[1]*uv.X + t.uvPWC[2]*uv.Y
	wa := 1 - wb - wc
	if !interior(wa, wb, wc) {
		return geom.Point{}, false
	}
	v0, v1, v2 := mesh[t.V[0]], mesh[t.V[1]], mesh[t.V[2]]
	return geom.Pt(
		wa*v0.XY.X+wb*v1.XY.X+wc*v2.XY.X,
		wa*v0.XY.Y+wb*v1.XY.Y+wc*v2.XY.Y,
	), true
}

// jacobianUV returns the derivative of the interpolated uv output with
// respect to the xy input, which is constant over the triangle.
func (t *Triangle) jacobianUV(mesh []Vertex) [2][2]float64 {
	v0, v1, v2 := mesh[t.V[0]], mesh[t.V[1]], mesh[t.V[2]]
	// d(uv)/d(xy) with wa = 1 - wb - wc:
	dbx, dby := t.xyPWB[1], t.xyPWB[2]
	dcx, dcy := t.xyPWC[1], t.xyPWC[2]
	return [2][2]float64{
		{
			dbx*(v1.UV.X-v0.UV.X) + dcx*(v2.UV.X-v0.UV.X),
			dby*(v1.UV.X-v0.UV.X) + dcy*(v2.UV.X-v0.UV.X),
		},
		{
			dbx*(v1.UV.Y-v0.UV.Y) + dcx*(v2.UV.Y-v0.UV.Y),
			dby*(v1.UV.Y-v0.UV.Y) + dcy*(v2.UV.Y-v0.UV.Y),
		},
	}
}

// accelGrid is the bounding-grid triangle intersection acceleration
// structure used to speed up the grid and mesh transforms. Two parallel cell
// indexes are maintained, one addressed by uv and one by xy.
type accelGrid struct {
	rows, cols int
	xy         [][]int32
	uv         [][]int32

	// mesh bounding boxes in both spaces:
	xyMin geom.Point
	xyExt geom.Vec
	uvMin geom.Point
	uvExt geom.Vec

	mesh []Vertex
	tri  []Triangle
}

// resize reallocates the cell arrays.
func (g *accelGrid) resize(rows, cols int) {
	g.rows = rows
	g.cols = cols
	g.xy = make([][]int32, rows*cols)
	g.uv = make([][]int32, rows*cols)
}

// cellIndex computes the clamped cell coordinates of p over a bounding box.
func (g *accelGrid) cellIndex(p, origin geom.Point, ext geom.Vec) int {
	cx := 0
	if ext.X > 0 {
		cx = int(math.Floor((p.X - origin.X) / ext.X * float64(g.cols)))
	}
	cy := 0
	if ext.Y > 0 {
		cy = int(math.Floor((p.Y - origin.Y) / ext.Y * float64(g.rows)))
	}
	if cx < 0 {
		cx = 0
	} else if cx >= g.cols {
		cx = g.cols - 1
	}
	if cy < 0 {
		cy = 0
	} else if cy >= g.rows {
		cy = g.rows - 1
	}
	return cy*g.cols + cx
}

// rebuild recomputes the triangle coefficients, the mesh bounding boxes and
// the cell indexes. It must run after every xy mutation and before any
// forward or inverse query.
func (g *accelGrid) rebuild() {
	xyBox := geom.EmptyBox()
	uvBox := geom.EmptyBox()
	for i := range g.mesh {
		xyBox.Expand(g.mesh[i].XY)
		uvBox.Expand(g.mesh[i].UV)
	}
	g.xyMin, g.xyExt = xyBox.Min, xyBox.Ext()
	g.uvMin, g.uvExt = uvBox.Min, uvBox.Ext()

	for i := range g.xy {
		g.xy[i] = g.xy[i][:0]
		g.uv[i] = g.uv[i][:0]
	}

	for ti := range g.tri {
		t := &g.tri[ti]
		t.precompute(g.mesh)
		g.insert(ti, true)
		g.insert(ti, false)
	}
}

// insert adds a triangle to every cell its bounding rectangle touches.
func (g *accelGrid) insert(ti int, inXY bool) {
	t := &g.tri[ti]
	box := geom.EmptyBox()
	for _, vi := range t.V {
		if inXY {
			box.Expand(g.mesh[vi].XY)
		} else {
			box.Expand(g.mesh[vi].UV)
		}
	}

	origin, ext, cells := g.uvMin, g.uvExt, g.uv
	if inXY {
		origin, ext, cells = g.xyMin, g.xyExt, g.xy
	}

	lo := g.cellIndex(box.Min, origin, ext)
	hi := g.cellIndex(box.Max, origin, ext)
	r0, c0 := lo/g.cols, lo%g.cols
	r1, c1 := hi/g.cols, hi%g.cols
	for r := r0; r <= r1; r++ {
		for c := c0; c <= c1; c++ {
			cells[r*g.cols+c] = append(cells[r*g.cols+c], int32(ti))
		}
	}
}

// xyTriangle finds the triangle containing the xy point and returns the
// corresponding uv point. The triangle index is -1 on a miss.
func (g *accelGrid) xyTriangle(xy geom.Point) (geom.Point, int, bool) {
	if len(g.tri) == 0 {
		return geom.Point{}, -1, false
	}
	cell := g.xy[g.cellIndex(xy, g.xyMin, g.xyExt)]
	for _, ti := range cell {
		if uv, ok := g.tri[ti].XYIntersect(g.mesh, xy); ok {
			return uv, int(ti), true
		}
	}
	return geom.Point{}, -1, false
}

// uvTriangle finds the triangle containing the uv point and returns the
// corresponding xy point. The triangle index is -1 on a miss.
func (g *accelGrid) uvTriangle(uv geom.Point) (geom.Point, int, bool) {
	if len(g.tri) == 0 {
		return geom.Point{}, -1, false
	}
	cell := g.uv[g.cellIndex(uv, g.uvMin, g.uvExt)]
	for _, ti := range cell {
		if xy, ok := g.tri[ti].UVIntersect(g.mesh, uv); ok {
			return xy, int(ti), true
		}
	}
	return geom.Point{}, -1, false
}

// update adds the per-vertex displacements to the vertex xy coordinates and
// rebuilds the grid.
func (g *accelGrid) update(xyShift []geom.Vec) {
	for i := range g.mesh {
		g.mesh[i].XY = g.mesh[i].XY.Add(xyShift[i])
	}
	g.rebuild()
}

// shift translates every vertex by a single vector and rebuilds the grid.
func (g *accelGrid) shift(v geom.Vec) {
	for i := range g.mesh {
		g.mesh[i].XY = g.mesh[i].XY.Add(v)
	}
	g.rebuild()
}
