// Package mosaic refines the spatial transforms of a 2-D image mosaic so
// that overlapping tiles align at subpixel accuracy.
//
// Every tile arrives with an approximate transform placing it in a shared
// mosaic coordinate frame, either a bivariate Legendre polynomial warp or a
// triangle-mesh grid transform (see the transform package). Refinement runs
// in passes: tiles are warped into mosaic space, each overlapping neighbor
// pair is matched at every control point by FFT phase correlation, the
// resulting displacement estimates are median-regularized and blended, and
// the transforms are updated in place. Passes repeat until the mean absolute
// displacement falls below a threshold, stops improving, or the configured
// number of passes has run.
//
// # Quick Start
//
//	cfg := mosaic.DefaultConfig()
//	cfg.Neighborhood = 128
//	cfg.NumPasses = 4
//	cfg.NumThreads = 4
//
//	tiles := []mosaic.Tile{{Image: img0}, {Image: img1}}
//	transforms := []transform.Transform{grid0, grid1}
//
//	result, err := mosaic.Refine(cfg, tiles, transforms)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Passes, result.MeanDisplacement)
//
// The refined control point positions (or polynomial parameters) are written
// back into the supplied transforms; the package itself never reads or
// writes files.
//
// # Concurrency
//
// Work is scheduled as transactions on a fixed worker pool: one transaction
// per tile warp and one per tile refinement. Displacement blending is plain
// vector addition, so results are bit-for-bit independent of the worker
// count. NumThreads == 1 selects a fully single-threaded path.
package mosaic
