package mosaic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaickit/go-mosaic-register/geom"
	"github.com/mosaickit/go-mosaic-register/internal/testutil"
	"github.com/mosaickit/go-mosaic-register/tile"
	"github.com/mosaickit/go-mosaic-register/transform"
)

// makeTile renders an n-by-n tile whose content is the shared test scene
// sampled at mosaicOffset+contentError, so a tile with a nonzero content
// error needs exactly that correction to align with its neighbors.
func makeTile(n int, mosaicOffset, contentError geom.Vec) Tile {
	im := tile.New(n, n, geom.Pt(0, 0), geom.V(1, 1))
	im.Pix = testutil.TexturedTile(n, n, mosaicOffset.X+contentError.X, mosaicOffset.Y+contentError.Y)
	return Tile{Image: im}
}

// placementGrid builds a rows-by-cols grid transform placing an n-by-n tile
// at a mosaic offset without deformation.
func placementGrid(t *testing.T, rows, cols, n int, offset geom.Vec) *transform.Grid {
	t.Helper()
	g := transform.NewGrid()
	xy := make([]geom.Point, (rows+1)*(cols+1))
	for r := 0; r <= rows; r++ {
		for c := 0; c <= cols; c++ {
			xy[r*(cols+1)+c] = geom.Pt(
				offset.X+float64(c)/float64(cols)*float64(n),
				offset.Y+float64(r)/float64(rows)*float64(n),
			)
		}
	}
	require.NoError(t, g.Setup(rows, cols, geom.Pt(0, 0), geom.Pt(1, 1), xy))
	return g
}

func vertexPositions(g *transform.Grid) []geom.Point {
	out := make([]geom.Point, len(g.Vertices()))
	for i, v := range g.Vertices() {
		out[i] = v.XY
	}
	return out
}

func TestRefineTwoTileTranslation(t *testing.T) {
	const n = 256
	want := geom.V(17, -9)

	tiles := []Tile{
		makeTile(n, geom.V(0, 0), geom.Vec{}),
		makeTile(n, geom.V(0, 0), want),
	}
	g0 := placementGrid(t, 4, 4, n, geom.V(0, 0))
	g1 := placementGrid(t, 4, 4, n, geom.V(0, 0))
	before := vertexPositions(g1)

	cfg := DefaultConfig()
	cfg.Neighborhood = 128
	cfg.MinimumOverlap = 0.25
	cfg.MaximumOverlap = 1.0
	cfg.NumPasses = 1
	cfg.KeepFirstTileFixed = true

	res, err := Refine(cfg, tiles, []transform.Transform{g0, g1})
	require.NoError(t, err)
	require.Equal(t, 1, res.Passes)

	// the anchor never moves:
	for _, v := range g0.Vertices() {
		assert.Equal(t, geom.Pt(v.UV.X*n, v.UV.Y*n), v.XY)
	}

	// the moving tile's vertices shift by the ground truth on average:
	var mean geom.Vec
	after := vertexPositions(g1)
	for i := range after {
		mean = mean.Add(after[i].Sub(before[i]))
	}
	mean = mean.Scale(1 / float64(len(after)))
	testutil.AssertVecNear(t, want, mean, 0.25)
}

func TestRefineSingleTileIsNoOp(t *testing.T) {
	tiles := []Tile{makeTile(64, geom.V(0, 0), geom.Vec{})}
	g := placementGrid(t, 2, 2, 64, geom.V(0, 0))
	before := vertexPositions(g)

	res, err := Refine(DefaultConfig(), tiles, []transform.Transform{g})
	require.NoError(t, err)
	assert.Zero(t, res.Passes)
	assert.Equal(t, before, vertexPositions(g), "transform must be untouched")
}

func TestRefineZeroOverlapLeavesTransformsUnchanged(t *testing.T) {
	tiles := []Tile{
		makeTile(64, geom.V(0, 0), geom.Vec{}),
		makeTile(64, geom.V(1000, 1000), geom.Vec{}),
	}
	g0 := placementGrid(t, 2, 2, 64, geom.V(0, 0))
	g1 := placementGrid(t, 2, 2, 64, geom.V(1000, 1000))
	before0 := vertexPositions(g0)
	before1 := vertexPositions(g1)

	cfg := DefaultConfig()
	cfg.Neighborhood = 32
	cfg.NumPasses = 1

	res, err := Refine(cfg, tiles, []transform.Transform{g0, g1})
	require.NoError(t, err)

	assert.Equal(t, before0, vertexPositions(g0))
	assert.Equal(t, before1, vertexPositions(g1))
	assert.Zero(t, res.MeanDisplacement)
	assert.True(t, res.Converged)
}

func TestRefineLegendreTwoTiles(t *testing.T) {
	const n = 256
	want := geom.V(11, 6)

	tiles := []Tile{
		makeTile(n, geom.V(0, 0), geom.Vec{}),
		makeTile(n, geom.V(0, 0), want),
	}
	bbox := geom.Box{Min: geom.Pt(0, 0), Max: geom.Pt(n, n)}
	l0 := transform.NewLegendre(2)
	l0.Setup(bbox, 0, 0)
	l1 := transform.NewLegendre(2)
	l1.Setup(bbox, 0, 0)

	cfg := DefaultConfig()
	cfg.Neighborhood = 128
	cfg.NumPasses = 1
	cfg.KeepFirstTileFixed = true
	cfg.ControlRows = 4
	cfg.ControlCols = 4

	_, err := Refine(cfg, tiles, []transform.Transform{l0, l1})
	require.NoError(t, err)

	// the refit polynomial places its control points `want` further on:
	var mean geom.Vec
	samples := 0
	for _, uv := range []geom.Point{{X: 64, Y: 64}, {X: 128, Y: 128}, {X: 192, Y: 96}} {
		xy, ok := l1.TransformInv(uv)
		require.True(t, ok)
		mean = mean.Add(xy.Sub(uv))
		samples++
	}
	mean = mean.Scale(1 / float64(samples))
	testutil.AssertVecNear(t, want, mean, 0.5)
}

// fourTileMosaic builds the 2x2 scenario: 128px tiles stepped 108px apart
// (about 15% overlap) with known integer content errors.
func fourTileMosaic(t *testing.T) ([]Tile, []transform.Transform) {
	t.Helper()
	const n = 128
	const step = 108

	offsets := []geom.Vec{{X: 0, Y: 0}, {X: step, Y: 0}, {X: 0, Y: step}, {X: step, Y: step}}
	errs := []geom.Vec{{X: 3, Y: 0}, {X: 0, Y: 3}, {X: -2, Y: 1}, {X: 1, Y: -2}}

	tiles := make([]Tile, 4)
	transforms := make([]transform.Transform, 4)
	for i := range tiles {
		tiles[i] = makeTile(n, offsets[i], errs[i])
		transforms[i] = placementGrid(t, 2, 2, n, offsets[i])
	}
	return tiles, transforms
}

func TestRefineFourTileMosaicConvergesDeterministically(t *testing.T) {
	run := func(threads int) ([][]geom.Point, *Result) {
		tiles, transforms := fourTileMosaic(t)

		cfg := DefaultConfig()
		cfg.Neighborhood = 64
		cfg.MinimumOverlap = 0.1
		cfg.NumPasses = 2
		cfg.DisplacementThreshold = 0.5
		cfg.NumThreads = threads

		res, err := Refine(cfg, tiles, transforms)
		require.NoError(t, err)

		verts := make([][]geom.Point, len(transforms))
		for i, tr := range transforms {
			verts[i] = vertexPositions(tr.(*transform.Grid))
		}
		return verts, res
	}

	verts1, res1 := run(1)
	verts2, _ := run(2)
	verts4, _ := run(4)

	// results are bit-for-bit independent of the worker count:
	assert.Equal(t, verts1, verts2)
	assert.Equal(t, verts1, verts4)

	assert.LessOrEqual(t, res1.MeanDisplacement, 0.5)

	// refinement moved at least one mobile vertex off its initial lattice:
	moved := false
	for i, vs := range verts1 {
		ref := placementGrid(t, 2, 2, 128, geom.V(float64(i%2)*108, float64(i/2)*108))
		for k, v := range vs {
			if v != ref.Vertices()[k].XY {
				moved = true
			}
		}
	}
	assert.True(t, moved, "refinement must displace at least one vertex")
}

func TestRefinePassesReduceResidualError(t *testing.T) {
	const n = 128
	truth := geom.V(9, -7)

	tiles := []Tile{
		makeTile(n, geom.V(0, 0), geom.Vec{}),
		makeTile(n, geom.V(0, 0), truth),
	}
	g0 := placementGrid(t, 2, 2, n, geom.V(0, 0))
	g1 := placementGrid(t, 2, 2, n, geom.V(0, 0))
	initial := vertexPositions(g1)

	residual := func() float64 {
		var sum float64
		for i, v := range g1.Vertices() {
			got := v.XY.Sub(initial[i])
			sum += got.Sub(truth).AbsSum()
		}
		return sum / float64(len(initial))
	}

	cfg := DefaultConfig()
	cfg.Neighborhood = 64
	cfg.NumPasses = 1
	cfg.KeepFirstTileFixed = true
	cfg.DisplacementThreshold = 0.01

	// running single passes back to back must not increase the residual:
	prev := residual()
	for pass := 0; pass < 3; pass++ {
		_, err := Refine(cfg, tiles, []transform.Transform{g0, g1})
		require.NoError(t, err)

		// allow subpixel jitter once the error is already tiny:
		cur := residual()
		assert.LessOrEqual(t, cur, prev+0.1, "pass %d", pass)
		prev = cur
	}
	assert.Less(t, prev, 1.0, "residual error after three passes")
}

func TestRefineInputValidation(t *testing.T) {
	cfg := DefaultConfig()

	_, err := Refine(cfg, nil, nil)
	assert.ErrorIs(t, err, ErrNoTiles)

	tiles := []Tile{makeTile(32, geom.V(0, 0), geom.Vec{})}
	_, err = Refine(cfg, tiles, nil)
	assert.ErrorIs(t, err, ErrTransformMismatch)

	// inconsistent spacing:
	other := makeTile(32, geom.V(0, 0), geom.Vec{})
	other.Image.Spacing = geom.V(2, 2)
	g0 := placementGrid(t, 2, 2, 32, geom.V(0, 0))
	g1 := placementGrid(t, 2, 2, 32, geom.V(0, 0))
	_, err = Refine(cfg, []Tile{tiles[0], other}, []transform.Transform{g0, g1})
	assert.ErrorIs(t, err, ErrSpacingMismatch)

	// invalid config surfaces before any work:
	bad := DefaultConfig()
	bad.NumPasses = 0
	_, err = Refine(bad, tiles, []transform.Transform{g0})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRefineWithoutPrewarp(t *testing.T) {
	const n = 128
	want := geom.V(6, -4)

	tiles := []Tile{
		makeTile(n, geom.V(0, 0), geom.Vec{}),
		makeTile(n, geom.V(0, 0), want),
	}
	g0 := placementGrid(t, 2, 2, n, geom.V(0, 0))
	g1 := placementGrid(t, 2, 2, n, geom.V(0, 0))
	before := vertexPositions(g1)

	cfg := DefaultConfig()
	cfg.Neighborhood = 64
	cfg.PrewarpTiles = false
	cfg.NumPasses = 1
	cfg.KeepFirstTileFixed = true

	_, err := Refine(cfg, tiles, []transform.Transform{g0, g1})
	require.NoError(t, err)

	var mean geom.Vec
	after := vertexPositions(g1)
	for i := range after {
		mean = mean.Add(after[i].Sub(before[i]))
	}
	mean = mean.Scale(1 / float64(len(after)))
	testutil.AssertVecNear(t, want, mean, 0.5)
}
