package mosaic

import (
	"math"

	"github.com/mosaickit/go-mosaic-register/geom"
	"github.com/mosaickit/go-mosaic-register/internal/phasecorr"
	"github.com/mosaickit/go-mosaic-register/internal/workpool"
	"github.com/mosaickit/go-mosaic-register/tile"
	"github.com/mosaickit/go-mosaic-register/transform"
)

// bboxSamples is the per-axis sampling resolution used to estimate a
// transform's mosaic-space bounding box.
const bboxSamples = 16

// Progress fractions reported around each pass.
const (
	progressBase      = 0.15
	progressSpan      = 0.8
	progressAfterWarp = 0.2
	progressAfterCorr = 0.9
)

// controlSet is the control point lattice of one tile: tile-space points in
// row-major order over a cols-by-rows lattice.
type controlSet struct {
	uv         []geom.Point
	cols, rows int
}

// driver carries the per-run state shared by the refinement transactions.
type driver struct {
	cfg      *Config
	log      Sink
	progress Progress

	tiles      []Tile
	transforms []transform.Transform

	start      int // first mobile tile (1 when tile 0 is anchored)
	warped     []*tile.Image
	warpedMask []*tile.Image
	neighbors  [][]int
	controls   []controlSet

	// per-pass output, indexed by tile; written by disjoint transactions:
	shift [][]geom.Vec
}

// Refine iteratively refines the tile transforms in place so that
// overlapping regions of the mosaic align. The transform slice must be
// parallel to the tile slice; entries are *transform.Grid, *transform.Mesh
// or *transform.Legendre values.
//
// Contract violations (empty tile set, mismatched counts, inconsistent
// pixel spacing) return an error before any transform is touched. Per-point
// and per-tile matching failures are recovered internally by dropping the
// affected displacement estimates.
func Refine(cfg *Config, tiles []Tile, transforms []transform.Transform) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := validateInputs(tiles, transforms); err != nil {
		return nil, err
	}

	res := &Result{}
	if len(tiles) < 2 {
		// nothing to align against:
		return res, nil
	}

	d := &driver{
		cfg:        cfg,
		log:        sinkOrNull(cfg.Log),
		progress:   progressOrNull(cfg.Progress),
		tiles:      tiles,
		transforms: transforms,
		warped:     make([]*tile.Image, len(tiles)),
		warpedMask: make([]*tile.Image, len(tiles)),
		controls:   make([]controlSet, len(tiles)),
		shift:      make([][]geom.Vec, len(tiles)),
	}
	if cfg.KeepFirstTileFixed {
		d.start = 1
		// the anchor is copied verbatim and never updated:
		d.warped[0] = tiles[0].Image.Clone()
		d.warpedMask[0] = onesMask(tiles[0])
	}
	for i := range tiles {
		d.controls[i] = controlPoints(transforms[i], cfg)
	}

	pool := workpool.NewPool(cfg.NumThreads, nil)

	lastAvg := math.MaxFloat64
	for pass := 0; pass < cfg.NumPasses; pass++ {
		d.progress.Major(progressBase + progressSpan*float64(pass)/float64(cfg.NumPasses))
		d.log.Printf("--------------------------- pass %d ---------------------------", pass)

		if cfg.PrewarpTiles {
			for i := d.start; i < len(tiles); i++ {
				pool.PushBack(&warpTileTx{d: d, index: i})
			}
			pool.PreDistributeWork()
			pool.Start()
			pool.Wait()
		}
		d.progress.Minor(progressAfterWarp)

		d.discoverNeighbors()

		for i := range d.shift {
			d.shift[i] = nil
		}
		for i := d.start; i < len(tiles); i++ {
			pool.PushBack(&refineTileTx{d: d, index: i})
		}
		pool.PreDistributeWork()
		pool.Start()
		pool.Wait()
		d.progress.Minor(progressAfterCorr)

		d.applyShifts()

		worst, avg, count := displacementStats(d.shift[d.start:])
		d.log.Printf("%d  average displacement: %g   max displacement: %g", pass, avg, worst)

		res.Passes = pass + 1
		res.MeanDisplacement = avg
		res.MaxDisplacement = worst

		if count > 0 {
			if avg <= cfg.DisplacementThreshold {
				res.Converged = true
				break
			}
			if avg >= lastAvg {
				// oscillating or diverging:
				break
			}
			lastAvg = avg
		}
	}

	return res, nil
}

// onesMask returns the tile's mask, or an all-valid mask when none is set.
func onesMask(t Tile) *tile.Image {
	if t.Mask != nil {
		return t.Mask.Clone()
	}
	m := tile.New(t.Image.Nx, t.Image.Ny, t.Image.Origin, t.Image.Spacing)
	m.Fill(1)
	return m
}

// controlPoints returns the control lattice of a transform: the mesh
// vertices of a grid or mesh transform, or a regular lattice over the
// domain of a polynomial transform.
func controlPoints(tr transform.Transform, cfg *Config) controlSet {
	switch t := tr.(type) {
	case *transform.Grid:
		mesh := t.Vertices()
		uv := make([]geom.Point, len(mesh))
		for i := range mesh {
			uv[i] = mesh[i].UV
		}
		return controlSet{uv: uv, cols: t.Cols() + 1, rows: t.Rows() + 1}

	case *transform.Mesh:
		mesh := t.Vertices()
		uv := make([]geom.Point, len(mesh))
		for i := range mesh {
			uv[i] = mesh[i].UV
		}
		// irregular mesh; regularize along the vertex order:
		return controlSet{uv: uv, cols: len(mesh), rows: 1}

	default:
		dom := tr.Domain()
		ext := dom.Ext()
		rows, cols := cfg.ControlRows, cfg.ControlCols
		uv := make([]geom.Point, 0, (rows+1)*(cols+1))
		for r := 0; r <= rows; r++ {
			for c := 0; c <= cols; c++ {
				uv = append(uv, geom.Pt(
					dom.Min.X+float64(c)/float64(cols)*ext.X,
					dom.Min.Y+float64(r)/float64(rows)*ext.Y,
				))
			}
		}
		return controlSet{uv: uv, cols: cols + 1, rows: rows + 1}
	}
}

// mosaicBBox estimates the mosaic-space bounding box of a transform by
// mapping a regular lattice of tile-space samples.
func mosaicBBox(tr transform.Transform) geom.Box {
	dom := tr.Domain()
	ext := dom.Ext()
	box := geom.EmptyBox()
	for r := 0; r <= bboxSamples; r++ {
		for c := 0; c <= bboxSamples; c++ {
			uv := geom.Pt(
				dom.Min.X+float64(c)/float64(bboxSamples)*ext.X,
				dom.Min.Y+float64(r)/float64(bboxSamples)*ext.Y,
			)
			if xy, ok := tr.TransformInv(uv); ok {
				box.Expand(xy)
			}
		}
	}
	return box
}

// discoverNeighbors rebuilds the per-tile neighbor lists: tile j is a
// neighbor of tile i when their mosaic bounding boxes intersect.
func (d *driver) discoverNeighbors() {
	n := len(d.tiles)
	boxes := make([]geom.Box, n)
	for i := 0; i < n; i++ {
		boxes[i] = mosaicBBox(d.transforms[i])
	}

	d.neighbors = make([][]int, n)
	for i := d.start; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j || !boxes[i].Intersects(boxes[j]) {
				continue
			}
			d.neighbors[i] = append(d.neighbors[i], j)
		}
	}
}

// applyShifts writes the blended displacements back into the transforms.
// Grid and mesh transforms displace their control points directly; the
// polynomial transform is re-fit to the displaced control set.
func (d *driver) applyShifts() {
	for i := d.start; i < len(d.tiles); i++ {
		shift := d.shift[i]
		if shift == nil || allZero(shift) {
			continue
		}

		switch t := d.transforms[i].(type) {
		case *transform.Grid:
			_ = t.Update(shift)
		case *transform.Mesh:
			_ = t.Update(shift)
		case *transform.Legendre:
			d.refitPolynomial(t, d.controls[i], shift)
		}
	}
}

func allZero(shift []geom.Vec) bool {
	for _, v := range shift {
		if v.X != 0 || v.Y != 0 {
			return false
		}
	}
	return true
}

// refitPolynomial solves for the polynomial parameters that map the
// displaced control point positions back onto their tile-space targets.
// A singular fit keeps the previous parameters.
func (d *driver) refitPolynomial(t *transform.Legendre, cs controlSet, shift []geom.Vec) {
	uvIn := make([]geom.Point, 0, len(cs.uv))
	xyOut := make([]geom.Point, 0, len(cs.uv))
	for k, uv := range cs.uv {
		center, ok := t.TransformInv(uv)
		if !ok {
			continue
		}
		uvIn = append(uvIn, center.Add(shift[k]))
		xyOut = append(xyOut, uv)
	}

	if err := t.SolveForParameters(0, t.Degree()+1, uvIn, xyOut); err != nil {
		d.log.Printf("polynomial fit refused: %v", err)
	}
}

// warpTileTx warps one tile and its mask into mosaic space.
type warpTileTx struct {
	d     *driver
	index int
}

// Execute implements workpool.Transaction.
func (t *warpTileTx) Execute(th *workpool.Thread) error {
	d := t.d
	i := t.index
	d.log.Printf("%4d. warping image tile", i)

	box := mosaicBBox(d.transforms[i])
	if box.IsEmpty() {
		return nil
	}
	d.warped[i], d.warpedMask[i] = tile.Warp(d.tiles[i].Image, d.tiles[i].Mask, d.transforms[i], box)
	return nil
}

// refineTileTx computes the blended displacement field of one tile against
// all of its neighbors. Each transaction owns its correlation scratch and
// writes only its own slot of the shared shift slice.
type refineTileTx struct {
	d     *driver
	index int
}

// Execute implements workpool.Transaction.
func (t *refineTileTx) Execute(th *workpool.Thread) error {
	d := t.d
	cfg := d.cfg
	i := t.index
	cs := d.controls[i]
	n := len(cs.uv)
	w := cfg.Neighborhood

	// mosaic-space position of every control point under the current
	// transform; misses are skipped this pass:
	centers := make([]geom.Point, n)
	centerOK := make([]bool, n)
	for k, uv := range cs.uv {
		centers[k], centerOK[k] = d.transforms[i].TransformInv(uv)
	}

	// thread-local scratch:
	win0 := tile.New(w, w, geom.Point{}, d.tiles[i].Image.Spacing)
	win1 := tile.New(w, w, geom.Point{}, d.tiles[i].Image.Spacing)
	msk0 := tile.New(w, w, geom.Point{}, d.tiles[i].Image.Spacing)
	msk1 := tile.New(w, w, geom.Point{}, d.tiles[i].Image.Spacing)
	sc := phasecorr.NewScratch(w, w)

	shift := make([]geom.Vec, n)
	mass := make([]float64, n)

	for _, j := range d.neighbors[i] {
		if err := th.TerminateOnRequest(); err != nil {
			return err
		}
		if cfg.PrewarpTiles && (d.warped[i] == nil || d.warped[j] == nil) {
			continue
		}
		d.log.Printf("matching %d:%d", i, j)

		field := newDisplacementField(cs.cols, cs.rows)
		for k := 0; k < n; k++ {
			if !centerOK[k] {
				continue
			}
			if err := th.TerminateOnRequest(); err != nil {
				return err
			}

			if cfg.PrewarpTiles {
				// fixed neighborhood from the neighbor tile:
				tile.CropWindow(win0, d.warped[j], centers[k], w)
				tile.CropWindow(msk0, d.warpedMask[j], centers[k], w)
				// moving neighborhood from this tile:
				tile.CropWindow(win1, d.warped[i], centers[k], w)
				tile.CropWindow(msk1, d.warpedMask[i], centers[k], w)
			} else {
				tile.WarpWindow(win0, msk0, d.tiles[j].Image, d.tiles[j].Mask, d.transforms[j], centers[k])
				tile.WarpWindow(win1, msk1, d.tiles[i].Image, d.tiles[i].Mask, d.transforms[i], centers[k])
			}

			if tile.OverlapRatio(msk0, msk1) < cfg.MinimumOverlap {
				continue
			}

			maxima := phasecorr.Correlate(sc,
				win0.Pix, w, w,
				win1.Pix, w, w,
				cfg.LowPassRadius, cfg.LowPassSharpness,
				cfg.MinimumOverlap, cfg.MaximumOverlap)

			if s, ok := phasecorr.BestShift(maxima, w, w, w, w, cfg.MinimumOverlap, cfg.MaximumOverlap); ok {
				field.set(k, s)
			}
		}

		regularizeDisplacements(shift, mass, field, cfg.MedianRadius)
	}

	if !cfg.KeepFirstTileFixed {
		for k := range shift {
			shift[k] = shift[k].Scale(1 / (1 + mass[k]))
		}
	}

	d.shift[i] = shift
	return nil
}
