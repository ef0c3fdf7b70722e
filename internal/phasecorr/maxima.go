// Package phasecorr estimates the translation between two image neighborhoods
// using phase correlation: the normalized cross-power spectrum is inverted
// into a displacement probability density, masked by the admissible overlap
// range, and scanned for center-of-mass maxima on the toroidal grid.
package phasecorr

import (
	"math"
	"sort"
)

// LocalMax is a detected maximum: the mean cluster value, the value-weighted
// centroid of the cluster, and the cluster pixel count.
type LocalMax struct {
	Value float64
	X, Y  float64
	Area  int
}

// histogramBins is the resolution of the value histogram used to pick the
// clipping threshold.
const histogramBins = 4096

// 8-connected neighborhood stencil, 4-connected entries first.
var stencil = [8][2]int{
	{0, -1}, {-1, 0}, {0, 1}, {1, 0},
	{-1, -1}, {1, 1}, {-1, 1}, {1, -1},
}

type pixel struct {
	x, y int
}

type clusterBBox struct {
	minX, minY int
	maxX, maxY int
}

func newClusterBBox() clusterBBox {
	return clusterBBox{
		minX: math.MaxInt32, minY: math.MaxInt32,
		maxX: math.MinInt32, maxY: math.MinInt32,
	}
}

func (b *clusterBBox) update(x, y int) {
	if x < b.minX {
		b.minX = x
	}
	if y < b.minY {
		b.minY = y
	}
	if x > b.maxX {
		b.maxX = x
	}
	if y > b.maxY {
		b.maxY = y
	}
}

// FindMaximaCM thresholds the field, flood-labels the surviving clusters and
// reports the center of mass of each cluster as a maximum.
//
// The percentage refers to the number of pixels that fall below the maxima,
// so the fraction of pixels above the threshold is 1 - percentage. This way
// a threshold can be chosen without knowing anything about the field values.
// The field wraps toroidally; clusters broken across the periodic boundary
// are merged. The result is sorted by value, best first.
func FindMaximaCM(field []float64, nx, ny int, percentage float64) []LocalMax {
	vMin := math.Inf(1)
	vMax := math.Inf(-1)
	for _, v := range field {
		vMin = math.Min(vMin, v)
		vMax = math.Max(vMax, v)
	}

	vRng := vMax - vMin
	if vRng == 0 || math.IsNaN(vRng) || math.IsInf(vRng, 0) {
		// there are no peaks in this field:
		return nil
	}

	// histogram and cumulative histogram of the values:
	var pdf [histogramBins]int
	for _, v := range field {
		bin := int((v - vMin) / vRng * float64(histogramBins-1))
		pdf[bin]++
	}

	wh := float64(nx * ny)
	clipMin := vMin
	cdf := pdf[0]
	for i := 1; i < histogramBins; i++ {
		cdf += pdf[i]
		clipMin = vMin + float64(i)/float64(histogramBins-1)*vRng
		if float64(cdf) >= percentage*wh {
			break
		}
	}

	// threshold, remap to (0, 1] with background at 0:
	background := clipMin - vRng*1e-3
	vals := make([]float64, len(field))
	for i, v := range field {
		if v < clipMin {
			continue
		}
		vals[i] = (v - background) / (vMax - background)
	}

	// classify the clusters:
	clusterMap := make([]int32, nx*ny)
	for i := range clusterMap {
		clusterMap[i] = -1
	}
	var clusters [][]pixel
	var bboxes []clusterBBox

	var neighbors []int32
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			if vals[y*nx+x] <= 0 {
				continue
			}

			// collect the cluster ids of the labeled neighbors:
			neighbors = neighbors[:0]
			for _, st := range stencil {
				u := x + st[0]
				v := y + st[1]
				if u < 0 || u >= nx || v < 0 || v >= ny {
					continue
				}
				id := clusterMap[v*nx+u]
				if id < 0 {
					continue
				}
				seen := false
				for _, n := range neighbors {
					if n == id {
						seen = true
						break
					}
				}
				if !seen {
					neighbors = append(neighbors, id)
				}
			}

			if len(neighbors) == 0 {
				// make a new cluster:
				id := int32(len(clusters))
				clusters = append(clusters, []pixel{{x, y}})
				bb := newClusterBBox()
				bb.update(x, y)
				bboxes = append(bboxes, bb)
				clusterMap[y*nx+x] = id
				continue
			}

			// add this pixel to the lowest neighboring cluster
			// and merge the rest into it:
			id := neighbors[0]
			for _, n := range neighbors[1:] {
				if n < id {
					id = n
				}
			}
			clusterMap[y*nx+x] = id
			clusters[id] = append(clusters[id], pixel{x, y})
			bboxes[id].update(x, y)

			for _, old := range neighbors {
				if old == id {
					continue
				}
				for _, p := range clusters[old] {
					clusterMap[p.y*nx+p.x] = id
					clusters[id] = append(clusters[id], p)
					bboxes[id].update(p.x, p.y)
				}
				clusters[old] = nil
				bboxes[old] = newClusterBBox()
			}
		}
	}

	mergePeriodic(clusters, bboxes, clusterMap, nx, ny)

	// calculate the center of mass for each cluster:
	var maxima []LocalMax
	for _, cluster := range clusters {
		if len(cluster) == 0 {
			continue
		}

		var mx, my, mt float64
		for _, p := range cluster {
			// cluster coordinates may have been shifted outside the
			// field to stay contiguous; sample the wrapped pixel:
			u := ((p.x % nx) + nx) % nx
			v := ((p.y % ny) + ny) % ny
			m := vals[v*nx+u]
			mx += m * float64(p.x)
			my += m * float64(p.y)
			mt += m
		}

		cx := math.Mod(mx/mt+float64(nx), float64(nx))
		cy := math.Mod(my/mt+float64(ny), float64(ny))
		maxima = append(maxima, LocalMax{
			Value: mt / float64(len(cluster)),
			X:     cx,
			Y:     cy,
			Area:  len(cluster),
		})
	}

	// best candidate first:
	sort.SliceStable(maxima, func(i, j int) bool {
		return maxima[i].Value > maxima[j].Value
	})
	return maxima
}

// mergePeriodic merges clusters that are broken up across the periodic
// boundary. The losing cluster's pixels are shifted by the field period so
// their coordinates become contiguous with the winner.
func mergePeriodic(clusters [][]pixel, bboxes []clusterBBox, clusterMap []int32, nx, ny int) {
	for i := range clusters {
		// the cluster may grow while it is scanned; index explicitly:
		for j := 0; j < len(clusters[i]); j++ {
			p := clusters[i][j]
			x := ((p.x % nx) + nx) % nx
			y := ((p.y % ny) + ny) % ny

			for _, st := range stencil {
				u := (x + st[0] + nx) % nx
				v := (y + st[1] + ny) % ny

				id := clusterMap[v*nx+u]
				if id < 0 || int(id) == i {
					continue
				}

				// figure out which boundaries the cluster is broken across:
				ba := &bboxes[i]
				bb := &bboxes[id]
				mergeX := bb.maxX-ba.minX > nx/2 || ba.maxX-bb.minX > nx/2
				mergeY := bb.maxY-ba.minY > ny/2 || ba.maxY-bb.minY > ny/2

				shiftX := 0
				if mergeX {
					shiftX = nx
					if ba.minX <= 0 {
						shiftX = -nx
					}
				}
				shiftY := 0
				if mergeY {
					shiftY = ny
					if ba.minY <= 0 {
						shiftY = -ny
					}
				}

				for _, q := range clusters[id] {
					qu := ((q.x % nx) + nx) % nx
					qv := ((q.y % ny) + ny) % ny
					clusterMap[qv*nx+qu] = int32(i)

					q.x += shiftX
					q.y += shiftY
					clusters[i] = append(clusters[i], q)
					ba.update(q.x, q.y)
				}
				clusters[id] = nil
				bboxes[id] = newClusterBBox()
			}
		}
	}
}

// ThresholdMaxima discards maxima whose mass (area times value) falls below
// the given ratio of the total mass of all maxima.
func ThresholdMaxima(maxima []LocalMax, threshold float64) []LocalMax {
	var total float64
	for _, m := range maxima {
		total += float64(m.Area) * m.Value
	}

	kept := maxima[:0]
	thresholdMass := threshold * total
	for _, m := range maxima {
		if float64(m.Area)*m.Value < thresholdMass {
			continue
		}
		kept = append(kept, m)
	}
	return kept
}

// RejectNegligibleMaxima discards maxima that are worse than the best
// maximum by a factor greater than the given threshold ratio.
func RejectNegligibleMaxima(maxima []LocalMax, threshold float64) []LocalMax {
	var best float64
	for _, m := range maxima {
		best = math.Max(best, m.Value)
	}

	kept := maxima[:0]
	for _, m := range maxima {
		if best/m.Value > threshold {
			continue
		}
		kept = append(kept, m)
	}
	return kept
}
