package config

import (
	"errors"
	"fmt"
)

const (
	// TileSize is the edge length of a tile in pixels. The projection table
	// doubles from this size per level, so it is not configurable.
	TileSize = 256

	DefaultLevels    = 19
	DefaultWorkers   = 6
	DefaultQueueSize = 32
	DefaultExt       = "png"

	// EmptyPNGSize is the byte length of a fully blank 256x256 PNG as written by
	// the reference renderer. A tile of exactly this size is treated as having no
	// content. This is a size heuristic, not an inspection of the pixels, and it
	// must be recomputed when the codec or tile size changes.
	EmptyPNGSize = 103
)

var (
	ErrInvalidWorkers = errors.New("regiontiles: invalid worker count")
	ErrInvalidQueue   = errors.New("regiontiles: invalid queue size")
	ErrInvalidZoom    = errors.New("regiontiles: invalid zoom range")
	ErrInvalidRegion  = errors.New("regiontiles: invalid region")
)

type Config struct {
	Root          string
	Ext           string
	TMS           bool
	Workers       int
	QueueSize     int
	Levels        int
	EmptyTileSize int64 // 0 disables empty tile cleanup
	Verbose       bool  // log every finished tile at info level
}

func Default() *Config {
	return &Config{
		Root:          "tiles",
		Ext:           DefaultExt,
		Workers:       DefaultWorkers,
		QueueSize:     DefaultQueueSize,
		Levels:        DefaultLevels,
		EmptyTileSize: EmptyPNGSize,
	}
}

func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, c.Workers)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQueue, c.QueueSize)
	}
	if c.Levels <= 0 || c.Levels > 31 {
		return fmt.Errorf("%w: %d levels", ErrInvalidZoom, c.Levels)
	}
	if c.Root == "" {
		return errors.New("regiontiles: empty output root")
	}
	if c.Ext == "" {
		return errors.New("regiontiles: empty tile extension")
	}
	return nil
}

// Region is one named area to render. BBox is [west, south, east, north] in
// degrees; the corners may be given in either order.
type Region struct {
	Name    string     `mapstructure:"name"`
	BBox    [4]float64 `mapstructure:"bbox"`
	MinZoom int        `mapstructure:"minzoom"`
	MaxZoom int        `mapstructure:"maxzoom"`
}

// Validate checks the region against a projection table of the given number of levels.
func (r Region) Validate(levels int) error {
	if r.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidRegion)
	}
	if r.MinZoom < 0 || r.MaxZoom < r.MinZoom || r.MaxZoom >= levels {
		return fmt.Errorf("%w: %d-%d outside 0-%d (region %q)",
			ErrInvalidZoom, r.MinZoom, r.MaxZoom, levels-1, r.Name)
	}
	return nil
}
