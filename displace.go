package mosaic

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/mosaickit/go-mosaic-register/geom"
)

// displacementField holds the raw per-control-point displacement estimates
// of one (tile, neighbor) pair on the control lattice: dx/dy components and
// db confidence (0 for no estimate, 1 for accepted).
type displacementField struct {
	cols, rows int
	dx, dy, db []float64
}

func newDisplacementField(cols, rows int) *displacementField {
	n := cols * rows
	return &displacementField{
		cols: cols,
		rows: rows,
		dx:   make([]float64, n),
		dy:   make([]float64, n),
		db:   make([]float64, n),
	}
}

func (f *displacementField) set(i int, v geom.Vec) {
	f.dx[i] = v.X
	f.dy[i] = v.Y
	f.db[i] = 1
}

// regularizeDisplacements smooths the raw displacement field with a
// weighted median filter of the given window radius and accumulates the
// result: the smoothed vectors are added to xyShift, the contributor counts
// to mass. Lattice indexing is clipped at the edges, not wrapped.
func regularizeDisplacements(xyShift []geom.Vec, mass []float64, f *displacementField, medianRadius int) {
	var wx, wy []float64

	for r := 0; r < f.rows; r++ {
		for c := 0; c < f.cols; c++ {
			wx = wx[:0]
			wy = wy[:0]

			r0 := clip(r-medianRadius, 0, f.rows-1)
			r1 := clip(r+medianRadius, 0, f.rows-1)
			c0 := clip(c-medianRadius, 0, f.cols-1)
			c1 := clip(c+medianRadius, 0, f.cols-1)

			for wr := r0; wr <= r1; wr++ {
				for wc := c0; wc <= c1; wc++ {
					i := wr*f.cols + wc
					if f.db[i] <= 0 {
						continue
					}
					wx = append(wx, f.dx[i])
					wy = append(wy, f.dy[i])
				}
			}

			if len(wx) == 0 {
				continue
			}

			i := r*f.cols + c
			m := vectorMedian(wx, wy)
			xyShift[i] = xyShift[i].Add(m)
			mass[i] += float64(len(wx))
		}
	}
}

// vectorMedian returns the member vector minimizing the sum of L1 distances
// to all the others.
func vectorMedian(wx, wy []float64) geom.Vec {
	best := 0
	bestCost := math.Inf(1)
	for i := range wx {
		var cost float64
		for j := range wx {
			cost += math.Abs(wx[i]-wx[j]) + math.Abs(wy[i]-wy[j])
		}
		if cost < bestCost {
			bestCost = cost
			best = i
		}
	}
	return geom.V(wx[best], wy[best])
}

func clip(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// displacementStats returns the maximum and mean absolute displacement
// component over all per-tile shift vectors.
func displacementStats(shift [][]geom.Vec) (worst, avg float64, count int) {
	var abs []float64
	for _, s := range shift {
		for _, v := range s {
			abs = append(abs, math.Abs(v.X), math.Abs(v.Y))
		}
	}
	if len(abs) == 0 {
		return 0, 0, 0
	}
	return floats.Max(abs), floats.Sum(abs) / float64(len(abs)), len(abs)
}
