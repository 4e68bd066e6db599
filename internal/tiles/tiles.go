// Package tiles enumerates the tiles covering a geographic bounding box.
package tiles

import (
	"iter"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"hstin/regiontiles/internal/config"
	"hstin/regiontiles/internal/proj"
)

// BBox is a geographic box in degrees. The corners may be given in either
// order; Normalize sorts them.
type BBox struct {
	West, South, East, North float64
}

// FromArray builds a BBox from [west, south, east, north].
func FromArray(a [4]float64) BBox {
	return BBox{West: a[0], South: a[1], East: a[2], North: a[3]}
}

func (b BBox) Normalize() BBox {
	return BBox{
		West:  math.Min(b.West, b.East),
		South: math.Min(b.South, b.North),
		East:  math.Max(b.West, b.East),
		North: math.Max(b.South, b.North),
	}
}

// Bound returns the normalized box as an orb.Bound in lon/lat.
func (b BBox) Bound() orb.Bound {
	n := b.Normalize()
	return orb.Bound{Min: orb.Point{n.West, n.South}, Max: orb.Point{n.East, n.North}}
}

// Extent is the inclusive tile index range covering a box at one zoom level,
// already clipped to the valid range. Empty reports whether nothing is left.
type Extent struct {
	Zoom       int
	MinX, MaxX int
	MinY, MaxY int
}

func (e Extent) Empty() bool {
	return e.MinX > e.MaxX || e.MinY > e.MaxY
}

func (e Extent) Count() int64 {
	if e.Empty() {
		return 0
	}
	return int64(e.MaxX-e.MinX+1) * int64(e.MaxY-e.MinY+1)
}

// ExtentAt projects the north-west and south-east corners of the box to
// rounded pixels at zoom and converts them to tile indices. Indices outside
// [0, 2^zoom) are dropped.
func ExtentAt(t *proj.Table, b BBox, zoom int) Extent {
	n := b.Normalize()
	px0, py0 := t.ToPixelRounded(orb.Point{n.West, n.North}, zoom)
	px1, py1 := t.ToPixelRounded(orb.Point{n.East, n.South}, zoom)

	limit := 1<<zoom - 1
	return Extent{
		Zoom: zoom,
		MinX: max(tileIndex(px0), 0),
		MaxX: min(tileIndex(px1), limit),
		MinY: max(tileIndex(py0), 0),
		MaxY: min(tileIndex(py1), limit),
	}
}

// tileIndex floors a pixel coordinate to its tile. For the non-negative pixels
// of the world this is plain truncation.
func tileIndex(p int) int {
	q := p / config.TileSize
	if p < 0 && p%config.TileSize != 0 {
		q--
	}
	return q
}

// Enumerate yields the tiles covering b for zooms minZoom..maxZoom inclusive.
// All tiles of one zoom come before the next, and within a zoom the order is
// increasing x, then increasing y.
func Enumerate(t *proj.Table, b BBox, minZoom, maxZoom int) iter.Seq[maptile.Tile] {
	return func(yield func(maptile.Tile) bool) {
		for z := minZoom; z <= maxZoom; z++ {
			e := ExtentAt(t, b, z)
			for x := e.MinX; x <= e.MaxX; x++ {
				for y := e.MinY; y <= e.MaxY; y++ {
					if !yield(maptile.New(uint32(x), uint32(y), maptile.Zoom(z))) {
						return
					}
				}
			}
		}
	}
}

// Count returns the number of tiles Enumerate yields, without enumerating them.
func Count(t *proj.Table, b BBox, minZoom, maxZoom int) int64 {
	var n int64
	for z := minZoom; z <= maxZoom; z++ {
		n += ExtentAt(t, b, z).Count()
	}
	return n
}

// FlipY converts between the top-origin XYZ row and the bottom-origin TMS row.
func FlipY(tile maptile.Tile) uint32 {
	return (1 << uint32(tile.Z)) - 1 - tile.Y
}
