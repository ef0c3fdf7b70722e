package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	mosaic "github.com/mosaickit/go-mosaic-register"
)

/* Example config file ...

neighborhood: 128
prewarp_tiles: true
minimum_overlap: 0.25
maximum_overlap: 1.0
median_radius: 1
num_passes: 4
keep_first_tile_fixed: true
displacement_threshold: 0.25
num_threads: 4
grid_rows: 4
grid_cols: 4

tiles:
  - image: tile00.png
    x: 0
    y: 0
  - image: tile01.png
    mask: tile01-mask.png
    x: 1824
    y: 12

*/

// TileSpec names one tile image and its approximate mosaic position.
type TileSpec struct {
	Image string  `yaml:"image"`
	Mask  string  `yaml:"mask"`
	X     float64 `yaml:"x"`
	Y     float64 `yaml:"y"`
}

// MosaicSpec is the YAML description of a refinement job.
type MosaicSpec struct {
	Neighborhood          int     `yaml:"neighborhood"`
	PrewarpTiles          *bool   `yaml:"prewarp_tiles"`
	MinimumOverlap        float64 `yaml:"minimum_overlap"`
	MaximumOverlap        float64 `yaml:"maximum_overlap"`
	MedianRadius          *int    `yaml:"median_radius"`
	NumPasses             int     `yaml:"num_passes"`
	KeepFirstTileFixed    bool    `yaml:"keep_first_tile_fixed"`
	DisplacementThreshold float64 `yaml:"displacement_threshold"`
	NumThreads            int     `yaml:"num_threads"`
	GridRows              int     `yaml:"grid_rows"`
	GridCols              int     `yaml:"grid_cols"`

	Tiles []TileSpec `yaml:"tiles"`
}

// LoadSpec reads and validates a YAML mosaic description.
func LoadSpec(path string) (*MosaicSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	spec := &MosaicSpec{}
	if err := yaml.UnmarshalStrict(raw, spec); err != nil {
		return nil, err
	}

	if len(spec.Tiles) == 0 {
		return nil, fmt.Errorf("no tiles listed")
	}
	for i, t := range spec.Tiles {
		if t.Image == "" {
			return nil, fmt.Errorf("tile %d: image path missing", i)
		}
	}
	if spec.GridRows == 0 {
		spec.GridRows = 4
	}
	if spec.GridCols == 0 {
		spec.GridCols = 4
	}
	return spec, nil
}

// RefineConfig converts the spec into refinement options, filling defaults
// for anything unset.
func (s *MosaicSpec) RefineConfig() *mosaic.Config {
	cfg := mosaic.DefaultConfig()
	if s.Neighborhood != 0 {
		cfg.Neighborhood = s.Neighborhood
	}
	if s.PrewarpTiles != nil {
		cfg.PrewarpTiles = *s.PrewarpTiles
	}
	if s.MinimumOverlap != 0 {
		cfg.MinimumOverlap = s.MinimumOverlap
	}
	if s.MaximumOverlap != 0 {
		cfg.MaximumOverlap = s.MaximumOverlap
	}
	if s.MedianRadius != nil {
		cfg.MedianRadius = *s.MedianRadius
	}
	if s.NumPasses != 0 {
		cfg.NumPasses = s.NumPasses
	}
	cfg.KeepFirstTileFixed = s.KeepFirstTileFixed
	if s.DisplacementThreshold != 0 {
		cfg.DisplacementThreshold = s.DisplacementThreshold
	}
	if s.NumThreads != 0 {
		cfg.NumThreads = s.NumThreads
	}
	return cfg
}
