package transform

import (
	"math"

	"github.com/mosaickit/go-mosaic-register/geom"
)

// defaultMeshAccelCells is the acceleration grid resolution used by the
// mesh transform when the caller does not specify one.
const defaultMeshAccelCells = 16

// baseTriangle is the shared state of the grid and mesh transforms: the uv
// domain of the tile and the acceleration grid owning the triangle mesh.
type baseTriangle struct {
	tileMin geom.Point
	tileExt geom.Vec
	grid    accelGrid
}

// Domain returns the uv-space box the transform maps onto.
func (t *baseTriangle) Domain() geom.Box {
	return geom.Box{Min: t.tileMin, Max: t.tileMin.Add(t.tileExt)}
}

// Transform maps a mosaic-space point to tile space by locating its
// triangle and interpolating the vertex uv coordinates.
func (t *baseTriangle) Transform(xy geom.Point) (geom.Point, bool) {
	uv, _, ok := t.grid.xyTriangle(xy)
	return uv, ok
}

// TransformInv maps a tile-space point to mosaic space.
func (t *baseTriangle) TransformInv(uv geom.Point) (geom.Point, bool) {
	xy, _, ok := t.grid.uvTriangle(uv)
	return xy, ok
}

// Jacobian returns the derivative of the uv output with respect to the xy
// input; it is piecewise constant over the containing triangle.
func (t *baseTriangle) Jacobian(xy geom.Point) ([2][2]float64, bool) {
	_, ti, ok := t.grid.xyTriangle(xy)
	if !ok {
		return [2][2]float64{}, false
	}
	return t.grid.tri[ti].jacobianUV(t.grid.mesh), true
}

// Vertices exposes the mesh for in-place inspection and mutation by the
// refinement driver. Callers that mutate XY must call Rebuild.
func (t *baseTriangle) Vertices() []Vertex { return t.grid.mesh }

// Triangles returns the triangle array.
func (t *baseTriangle) Triangles() []Triangle { return t.grid.tri }

// Rebuild refreshes the triangle coefficients and cell indexes after the
// vertex xy coordinates were mutated.
func (t *baseTriangle) Rebuild() { t.grid.rebuild() }

// Update adds a per-vertex displacement to every vertex and rebuilds.
func (t *baseTriangle) Update(xyShift []geom.Vec) error {
	if len(xyShift) != len(t.grid.mesh) {
		return ErrBadControlPoints
	}
	t.grid.update(xyShift)
	return nil
}

// Shift translates all vertices by a single vector and rebuilds.
func (t *baseTriangle) Shift(v geom.Vec) { t.grid.shift(v) }

// Resize reallocates the acceleration grid cells and rebuilds.
func (t *baseTriangle) Resize(rows, cols int) {
	t.grid.resize(rows, cols)
	if len(t.grid.mesh) > 0 {
		t.grid.rebuild()
	}
}

// Grid is a discontinuous transform: a uniform lattice of control points
// mapped to an image. Each vertex stores normalized tile-space coordinates
// alongside its mosaic-space position, like a texture-mapped triangle mesh
// where the texture coordinates are the tile-space vertex coordinates.
type Grid struct {
	baseTriangle

	// number of rows and columns of quads in the mesh
	// (each quad is made up of 2 triangles):
	rows, cols int
}

// NewGrid returns an empty grid transform; call Setup before use.
func NewGrid() *Grid { return &Grid{} }

// Rows returns the number of quad rows.
func (g *Grid) Rows() int { return g.rows }

// Cols returns the number of quad columns.
func (g *Grid) Cols() int { return g.cols }

// IsReady reports whether the transform has been set up.
func (g *Grid) IsReady() bool { return len(g.grid.mesh) > 0 }

// Vertex returns the mesh vertex at a lattice position.
func (g *Grid) Vertex(row, col int) *Vertex {
	return &g.grid.mesh[row*(g.cols+1)+col]
}

// Setup builds the (rows+1) x (cols+1) vertex lattice over the uv domain
// [tileMin, tileMax], assigns the supplied mosaic-space control point
// positions, builds the regular triangle mesh (two triangles per quad with
// the same diagonal orientation across all quads) and the acceleration grid.
func (g *Grid) Setup(rows, cols int, tileMin, tileMax geom.Point, xy []geom.Point) error {
	if rows < 1 || cols < 1 {
		return ErrBadControlPoints
	}
	if len(xy) != (rows+1)*(cols+1) {
		return ErrBadControlPoints
	}
	if tileMax.X <= tileMin.X || tileMax.Y <= tileMin.Y {
		return ErrBadControlPoints
	}

	g.rows = rows
	g.cols = cols
	g.tileMin = tileMin
	g.tileExt = tileMax.Sub(tileMin)

	mesh := make([]Vertex, (rows+1)*(cols+1))
	for r := 0; r <= rows; r++ {
		for c := 0; c <= cols; c++ {
			i := r*(cols+1) + c
			mesh[i] = Vertex{
				UV: geom.Pt(
					tileMin.X+float64(c)/float64(cols)*g.tileExt.X,
					tileMin.Y+float64(r)/float64(rows)*g.tileExt.Y,
				),
				XY: xy[i],
			}
		}
	}

	tri := make([]Triangle, 0, 2*rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			a := r*(cols+1) + c
			b := a + 1
			d := (r+1)*(cols+1) + c
			e := d + 1
			// the diagonal runs a-e in every quad:
			tri = append(tri,
				Triangle{V: [3]int{a, b, e}},
				Triangle{V: [3]int{a, e, d}},
			)
		}
	}

	g.grid.mesh = mesh
	g.grid.tri = tri
	g.grid.resize(rows, cols)
	g.grid.rebuild()
	return nil
}

// TransformInv maps a tile-space point to mosaic space. The uv lattice is
// regular, so the containing quad is found directly and only its two
// triangles are tested; the generic cell walk is the fallback for numeric
// edge cases.
func (g *Grid) TransformInv(uv geom.Point) (geom.Point, bool) {
	if !g.IsReady() {
		return geom.Point{}, false
	}

	c := clampCell(int(math.Floor((uv.X-g.tileMin.X)/g.tileExt.X*float64(g.cols))), g.cols)
	r := clampCell(int(math.Floor((uv.Y-g.tileMin.Y)/g.tileExt.Y*float64(g.rows))), g.rows)

	for _, ti := range [2]int{2 * (r*g.cols + c), 2*(r*g.cols+c) + 1} {
		if xy, ok := g.grid.tri[ti].UVIntersect(g.grid.mesh, uv); ok {
			return xy, true
		}
	}
	return g.baseTriangle.TransformInv(uv)
}

func clampCell(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// Mesh is a discontinuous transform over an arbitrary triangulation. The
// triangulation is supplied by the caller; this package never re-triangulates.
type Mesh struct {
	baseTriangle
}

// NewMesh returns an empty mesh transform; call Setup before use.
func NewMesh() *Mesh { return &Mesh{} }

// IsReady reports whether the transform has been set up.
func (m *Mesh) IsReady() bool { return len(m.grid.mesh) > 0 }

// Setup builds the mesh transform from parallel uv/xy vertex slices and a
// triangle index list with counterclockwise winding. accelRows/accelCols
// size the acceleration grid; zero selects the default resolution.
func (m *Mesh) Setup(tileMin, tileMax geom.Point, uv, xy []geom.Point, tris [][3]int, accelRows, accelCols int) error {
	if len(uv) == 0 || len(uv) != len(xy) {
		return ErrBadControlPoints
	}
	for _, t := range tris {
		for _, vi := range t {
			if vi < 0 || vi >= len(uv) {
				return ErrBadControlPoints
			}
		}
	}

	if accelRows <= 0 {
		accelRows = defaultMeshAccelCells
	}
	if accelCols <= 0 {
		accelCols = defaultMeshAccelCells
	}

	m.tileMin = tileMin
	m.tileExt = tileMax.Sub(tileMin)

	mesh := make([]Vertex, len(uv))
	for i := range uv {
		mesh[i] = Vertex{UV: uv[i], XY: xy[i]}
	}
	tri := make([]Triangle, len(tris))
	for i, t := range tris {
		tri[i] = Triangle{V: t}
	}

	m.grid.mesh = mesh
	m.grid.tri = tri
	m.grid.resize(accelRows, accelCols)
	m.grid.rebuild()
	return nil
}
