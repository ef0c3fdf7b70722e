// Command refine-mosaic refines the placement of partially overlapping
// image tiles using FFT phase correlation.
//
// Usage:
//
//	refine-mosaic -config mosaic.yaml
//	refine-mosaic -config mosaic.yaml -debug-dir ./debug
//
// The YAML configuration names the tile images, their approximate mosaic
// positions and the refinement options; refined control point positions are
// printed to stdout. See the example config in spec.go.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	mosaic "github.com/mosaickit/go-mosaic-register"
	"github.com/mosaickit/go-mosaic-register/geom"
	"github.com/mosaickit/go-mosaic-register/tile"
	"github.com/mosaickit/go-mosaic-register/transform"
)

func main() {
	configPath := flag.String("config", "", "YAML mosaic description (required)")
	debugDir := flag.String("debug-dir", "", "write warped tile PNGs into this directory")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	if *configPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*configPath, *debugDir, logger); err != nil {
		logger.WithError(err).Fatal("refinement failed")
	}
}

func run(configPath, debugDir string, logger *logrus.Logger) error {
	spec, err := LoadSpec(configPath)
	if err != nil {
		return fmt.Errorf("loading %s: %w", configPath, err)
	}

	tiles := make([]mosaic.Tile, len(spec.Tiles))
	transforms := make([]transform.Transform, len(spec.Tiles))
	for i, ts := range spec.Tiles {
		img, err := LoadGrayPNG(ts.Image)
		if err != nil {
			return fmt.Errorf("tile %d: %w", i, err)
		}
		var mask *tile.Image
		if ts.Mask != "" {
			if mask, err = LoadGrayPNG(ts.Mask); err != nil {
				return fmt.Errorf("tile %d mask: %w", i, err)
			}
			binarize(mask)
		}
		tiles[i] = mosaic.Tile{Image: img, Mask: mask}

		g := transform.NewGrid()
		xy := placementLattice(spec.GridRows, spec.GridCols, img, geom.Pt(ts.X, ts.Y))
		if err := g.Setup(spec.GridRows, spec.GridCols, geom.Pt(0, 0), geom.Pt(1, 1), xy); err != nil {
			return fmt.Errorf("tile %d transform: %w", i, err)
		}
		transforms[i] = g

		logger.WithFields(logrus.Fields{
			"tile": i,
			"size": fmt.Sprintf("%dx%d", img.Nx, img.Ny),
			"at":   fmt.Sprintf("(%g, %g)", ts.X, ts.Y),
		}).Debug("loaded tile")
	}

	cfg := spec.RefineConfig()
	cfg.Log = mosaic.NewLogrusSink(logger)

	res, err := mosaic.Refine(cfg, tiles, transforms)
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"passes":    res.Passes,
		"mean":      res.MeanDisplacement,
		"max":       res.MaxDisplacement,
		"converged": res.Converged,
	}).Info("refinement finished")

	for i, tr := range transforms {
		g := tr.(*transform.Grid)
		for r := 0; r <= g.Rows(); r++ {
			for c := 0; c <= g.Cols(); c++ {
				v := g.Vertex(r, c)
				fmt.Printf("%d %d %d %.4f %.4f\n", i, r, c, v.XY.X, v.XY.Y)
			}
		}
	}

	if debugDir != "" {
		if err := dumpWarpedTiles(debugDir, tiles, transforms); err != nil {
			return err
		}
	}
	return nil
}

// placementLattice spreads the control points uniformly over the tile's
// pixel area at the given mosaic position.
func placementLattice(rows, cols int, img *tile.Image, at geom.Point) []geom.Point {
	xy := make([]geom.Point, (rows+1)*(cols+1))
	for r := 0; r <= rows; r++ {
		for c := 0; c <= cols; c++ {
			xy[r*(cols+1)+c] = geom.Pt(
				at.X+float64(c)/float64(cols)*float64(img.Nx)*img.Spacing.X,
				at.Y+float64(r)/float64(rows)*float64(img.Ny)*img.Spacing.Y,
			)
		}
	}
	return xy
}

// binarize snaps a grayscale mask to 0/1.
func binarize(m *tile.Image) {
	for i, v := range m.Pix {
		if v >= 0.5 {
			m.Pix[i] = 1
		} else {
			m.Pix[i] = 0
		}
	}
}

func dumpWarpedTiles(dir string, tiles []mosaic.Tile, transforms []transform.Transform) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for i := range tiles {
		box := geom.EmptyBox()
		g := transforms[i].(*transform.Grid)
		for _, v := range g.Vertices() {
			box.Expand(v.XY)
		}
		warped, _ := tile.Warp(tiles[i].Image, tiles[i].Mask, transforms[i], box)
		name := fmt.Sprintf("%s/tile-%02d-warped.png", dir, i)
		if err := warped.SavePNG(fmt.Sprintf("tile %d", i), name); err != nil {
			return err
		}
	}
	return nil
}
