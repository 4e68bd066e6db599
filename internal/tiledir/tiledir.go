// Package tiledir lays out rendered tiles on disk as
// "<root>/<region>/<z>/<x>/<y>.<ext>".
package tiledir

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/paulmach/orb/maptile"

	"hstin/regiontiles/internal/tiles"
)

// Layout builds paths for the tiles of one region. When TMS is set only the
// file name row is flipped; directories always use z and x.
type Layout struct {
	Root   string
	Region string
	Ext    string
	TMS    bool
}

func (l Layout) RegionDir() string {
	return filepath.Join(l.Root, l.Region)
}

func (l Layout) ZoomDir(z maptile.Zoom) string {
	return filepath.Join(l.RegionDir(), strconv.FormatUint(uint64(z), 10))
}

func (l Layout) ColumnDir(z maptile.Zoom, x uint32) string {
	return filepath.Join(l.ZoomDir(z), strconv.FormatUint(uint64(x), 10))
}

// Row returns the row used in the file name of tile.
func (l Layout) Row(tile maptile.Tile) uint32 {
	if l.TMS {
		return tiles.FlipY(tile)
	}
	return tile.Y
}

func (l Layout) TilePath(tile maptile.Tile) string {
	name := strconv.FormatUint(uint64(l.Row(tile)), 10) + "." + l.Ext
	return filepath.Join(l.ColumnDir(tile.Z, tile.X), name)
}

// EnsureDir creates path and its parents. It is safe to call concurrently for
// the same or overlapping paths: a directory that already exists, or that
// another caller created first, is not an error.
func EnsureDir(path string) error {
	err := os.MkdirAll(path, 0755)
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrExist) {
		if info, statErr := os.Stat(path); statErr == nil && info.IsDir() {
			return nil
		}
	}
	return err
}
