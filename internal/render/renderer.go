package render

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// Request asks a renderer for one square image. Bound is in the renderer's
// native coordinates, as returned by its Forward method.
type Request struct {
	Bound orb.Bound
	Zoom  int
	Size  int
	Path  string
}

// Renderer is the map rendering engine. Render must leave a complete file at
// req.Path when it returns nil. It is called from several workers at once.
type Renderer interface {
	Forward(ll orb.Point) orb.Point
	Render(ctx context.Context, req Request) error
}

// Mercator is the default native projection: spherical Web Mercator metres.
func Mercator(ll orb.Point) orb.Point {
	return project.WGS84.ToMercator(ll)
}

// writeFile writes through a temporary file in the target directory and
// renames it into place, so a crash mid-write never leaves a partial tile at
// path.
func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), ".tile-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()

	if err = write(f); err != nil {
		return fmt.Errorf("failed to encode tile: %w", err)
	}
	if err = f.Chmod(0644); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}
