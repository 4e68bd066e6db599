// Package proj converts between geographic coordinates and global pixel
// coordinates of the spherical Web Mercator tile pyramid.
package proj

import (
	"math"

	"github.com/paulmach/orb"
)

// sinLimit bounds sin(lat) so the Mercator y stays finite near the poles.
const sinLimit = 0.9999

type level struct {
	pixelsPerDegree float64
	pixelsPerRadian float64
	origin          float64 // centre of the world in pixels, same for x and y
}

// Table holds the per-zoom scale factors. It is read-only after NewTable and
// safe to share between goroutines.
type Table struct {
	levels []level
}

// NewTable precomputes levels 0..n-1 for tiles of the given edge length.
func NewTable(n, tileSize int) *Table {
	levels := make([]level, n)
	c := float64(tileSize)
	for z := range levels {
		levels[z] = level{
			pixelsPerDegree: c / 360.0,
			pixelsPerRadian: c / (2 * math.Pi),
			origin:          c / 2,
		}
		c *= 2
	}
	return &Table{levels: levels}
}

// Levels returns the number of zoom levels in the table.
func (t *Table) Levels() int {
	return len(t.levels)
}

// ToPixel projects a lon/lat point to fractional global pixel coordinates at zoom.
// It panics if zoom is outside the table.
func (t *Table) ToPixel(ll orb.Point, zoom int) (float64, float64) {
	l := t.levels[zoom]
	s := math.Min(math.Max(math.Sin(ll.Lat()*math.Pi/180), -sinLimit), sinLimit)
	px := l.origin + ll.Lon()*l.pixelsPerDegree
	py := l.origin - 0.5*math.Log((1+s)/(1-s))*l.pixelsPerRadian
	return px, py
}

// ToPixelRounded is ToPixel rounded to the nearest whole pixel, which is what
// tile index arithmetic works on.
func (t *Table) ToPixelRounded(ll orb.Point, zoom int) (int, int) {
	px, py := t.ToPixel(ll, zoom)
	return int(math.Round(px)), int(math.Round(py))
}

// ToLonLat is the inverse of ToPixel.
func (t *Table) ToLonLat(px, py float64, zoom int) orb.Point {
	l := t.levels[zoom]
	lon := (px - l.origin) / l.pixelsPerDegree
	g := (py - l.origin) / -l.pixelsPerRadian
	lat := (2*math.Atan(math.Exp(g)) - 0.5*math.Pi) * 180 / math.Pi
	return orb.Point{lon, lat}
}

// WorldSize returns the edge of the whole world in pixels at zoom.
func (t *Table) WorldSize(zoom int) float64 {
	return 2 * t.levels[zoom].origin
}
