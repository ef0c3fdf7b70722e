package mosaic

import (
	"errors"
	"fmt"

	"github.com/mosaickit/go-mosaic-register/tile"
	"github.com/mosaickit/go-mosaic-register/transform"
)

var (
	// ErrInvalidConfig indicates invalid refinement configuration.
	ErrInvalidConfig = errors.New("invalid refinement configuration")

	// ErrNoTiles indicates an empty tile set.
	ErrNoTiles = errors.New("no tiles to refine")

	// ErrSpacingMismatch indicates tiles with inconsistent pixel spacing.
	ErrSpacingMismatch = errors.New("inconsistent tile pixel spacing")

	// ErrTransformMismatch indicates a tile/transform count mismatch or an
	// unusable transform.
	ErrTransformMismatch = errors.New("tile and transform sets do not match")
)

// Default configuration values.
const (
	defaultNeighborhood     = 128
	defaultMinimumOverlap   = 0.25
	defaultMaximumOverlap   = 1.0
	defaultMedianRadius     = 1
	defaultNumPasses        = 1
	defaultThreshold        = 0.25
	defaultControlRows      = 4
	defaultControlCols      = 4
	defaultLowPassRadius    = 0.5
	defaultLowPassSharpness = 0.1
)

// Tile couples an image with its optional validity mask. The mask uses 0/1
// pixels on the image's grid; a nil mask marks the whole tile valid.
type Tile struct {
	Image *tile.Image
	Mask  *tile.Image
}

// Config holds the refinement options.
type Config struct {
	// Neighborhood is the side length, in pixels, of the correlation
	// window extracted around every control point.
	Neighborhood int

	// PrewarpTiles warps every mobile tile into mosaic space once per
	// pass. When false, neighborhoods are warped on demand.
	PrewarpTiles bool

	// MinimumOverlap is the lower bound on the fractional neighborhood
	// overlap of an acceptable match.
	MinimumOverlap float64

	// MaximumOverlap is the upper bound; 1.0 disables it.
	MaximumOverlap float64

	// MedianRadius is the window radius of the displacement regularizer.
	MedianRadius int

	// NumPasses bounds the number of refinement passes.
	NumPasses int

	// KeepFirstTileFixed anchors tile 0: it is never warped again and its
	// transform is never updated.
	KeepFirstTileFixed bool

	// DisplacementThreshold is the mean per-pixel displacement below
	// which refinement stops.
	DisplacementThreshold float64

	// NumThreads is the worker count; 1 selects the single-threaded path.
	NumThreads int

	// ControlRows and ControlCols size the control point lattice used
	// when refining polynomial transforms. Grid transforms use their own
	// mesh.
	ControlRows int
	ControlCols int

	// LowPassRadius and LowPassSharpness parameterize the frequency
	// filter applied before phase correlation.
	LowPassRadius    float64
	LowPassSharpness float64

	// Log receives progress lines; nil means no logging.
	Log Sink

	// Progress receives the major/minor progress fractions; nil disables
	// progress reporting.
	Progress Progress
}

// DefaultConfig returns a Config with the defaults used by the original
// grid refinement tool.
func DefaultConfig() *Config {
	return &Config{
		Neighborhood:          defaultNeighborhood,
		PrewarpTiles:          true,
		MinimumOverlap:        defaultMinimumOverlap,
		MaximumOverlap:        defaultMaximumOverlap,
		MedianRadius:          defaultMedianRadius,
		NumPasses:             defaultNumPasses,
		DisplacementThreshold: defaultThreshold,
		NumThreads:            1,
		ControlRows:           defaultControlRows,
		ControlCols:           defaultControlCols,
		LowPassRadius:         defaultLowPassRadius,
		LowPassSharpness:      defaultLowPassSharpness,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}
	if c.Neighborhood < 8 {
		return fmt.Errorf("%w: neighborhood must be at least 8 pixels", ErrInvalidConfig)
	}
	if c.MinimumOverlap <= 0 || c.MinimumOverlap > 1 {
		return fmt.Errorf("%w: minimum overlap must be in (0, 1]", ErrInvalidConfig)
	}
	if c.MaximumOverlap < c.MinimumOverlap || c.MaximumOverlap > 1 {
		return fmt.Errorf("%w: maximum overlap must be in [minimum overlap, 1]", ErrInvalidConfig)
	}
	if c.MedianRadius < 0 {
		return fmt.Errorf("%w: median radius must not be negative", ErrInvalidConfig)
	}
	if c.NumPasses < 1 {
		return fmt.Errorf("%w: at least one pass is required", ErrInvalidConfig)
	}
	if c.DisplacementThreshold < 0 {
		return fmt.Errorf("%w: displacement threshold must not be negative", ErrInvalidConfig)
	}
	if c.NumThreads < 1 {
		return fmt.Errorf("%w: at least one thread is required", ErrInvalidConfig)
	}
	if c.ControlRows < 1 || c.ControlCols < 1 {
		return fmt.Errorf("%w: control lattice must be at least 1x1", ErrInvalidConfig)
	}
	if c.LowPassRadius <= 0 || c.LowPassRadius > 1 {
		return fmt.Errorf("%w: low-pass radius must be in (0, 1]", ErrInvalidConfig)
	}
	if c.LowPassSharpness < 0 || c.LowPassSharpness > 1 {
		return fmt.Errorf("%w: low-pass sharpness must be in [0, 1]", ErrInvalidConfig)
	}
	return nil
}

// Result reports the outcome of a refinement run.
type Result struct {
	// Passes is the number of passes that actually ran.
	Passes int

	// MeanDisplacement and MaxDisplacement are the statistics of the
	// final pass, in pixels.
	MeanDisplacement float64
	MaxDisplacement  float64

	// Converged is true when the mean displacement fell below the
	// configured threshold.
	Converged bool
}

// validateInputs checks the tile and transform sets against the contract
// surfaced by Refine: a present tile set, matching transform count,
// consistent pixel spacing and set-up transforms.
func validateInputs(tiles []Tile, transforms []transform.Transform) error {
	if len(tiles) == 0 {
		return ErrNoTiles
	}
	if len(transforms) != len(tiles) {
		return fmt.Errorf("%w: %d tiles, %d transforms", ErrTransformMismatch, len(tiles), len(transforms))
	}

	if tiles[0].Image == nil {
		return fmt.Errorf("%w: tile 0 has no image", ErrNoTiles)
	}
	sp := tiles[0].Image.Spacing
	if sp.X <= 0 || sp.Y <= 0 {
		return fmt.Errorf("%w: pixel spacing must be positive", ErrSpacingMismatch)
	}
	for i, t := range tiles {
		if t.Image == nil || len(t.Image.Pix) == 0 {
			return fmt.Errorf("%w: tile %d has no image", ErrNoTiles, i)
		}
		if t.Image.Spacing != sp {
			return fmt.Errorf("%w: tile %d", ErrSpacingMismatch, i)
		}
		if t.Mask != nil && (t.Mask.Nx != t.Image.Nx || t.Mask.Ny != t.Image.Ny) {
			return fmt.Errorf("%w: tile %d mask size", ErrTransformMismatch, i)
		}
		if transforms[i] == nil {
			return fmt.Errorf("%w: tile %d has no transform", ErrTransformMismatch, i)
		}
	}
	return nil
}
