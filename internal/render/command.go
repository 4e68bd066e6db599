package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// CommandRenderer runs an external rendering engine once per tile. Each
// argument may contain the placeholders {minx} {miny} {maxx} {maxy} {zoom}
// {size} and {path}; the bound placeholders are in native coordinates.
//
//	nik4 --fit-to-bbox {minx},{miny},{maxx},{maxy} --size {size} style.xml {path}
type CommandRenderer struct {
	Name string
	Args []string

	// Projection maps lon/lat to the engine's native coordinates; nil means
	// Web Mercator.
	Projection orb.Projection
}

func (r *CommandRenderer) Forward(ll orb.Point) orb.Point {
	if r.Projection == nil {
		return Mercator(ll)
	}
	return r.Projection(ll)
}

func (r *CommandRenderer) Render(ctx context.Context, req Request) error {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	replacer := strings.NewReplacer(
		"{minx}", f(req.Bound.Left()),
		"{miny}", f(req.Bound.Bottom()),
		"{maxx}", f(req.Bound.Right()),
		"{maxy}", f(req.Bound.Top()),
		"{zoom}", strconv.Itoa(req.Zoom),
		"{size}", strconv.Itoa(req.Size),
		"{path}", req.Path,
	)
	args := make([]string, len(r.Args))
	for i, a := range r.Args {
		args[i] = replacer.Replace(a)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.Name, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		// do not leave a partial tile for the next run to skip
		os.Remove(req.Path)
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", r.Name, err, msg)
		}
		return fmt.Errorf("%s: %w", r.Name, err)
	}

	if _, err := os.Stat(req.Path); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: no tile written to %s", r.Name, req.Path)
	}
	return nil
}
