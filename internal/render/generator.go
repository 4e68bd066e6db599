package render

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"hstin/regiontiles/internal/config"
	"hstin/regiontiles/internal/proj"
	"hstin/regiontiles/internal/tiledir"
	"hstin/regiontiles/internal/tiles"
)

type options struct {
	logger   *slog.Logger
	reporter func(TileResult)
	interval time.Duration
}

type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithReporter registers a callback invoked once per finished job. It runs on
// the worker goroutines and must be safe for concurrent use.
func WithReporter(fn func(TileResult)) Option {
	return func(o *options) { o.reporter = fn }
}

// WithProgressInterval sets how often a progress line is logged; 0 disables it.
func WithProgressInterval(d time.Duration) Option {
	return func(o *options) { o.interval = d }
}

// Generator renders the tile pyramids of regions with a fixed pool of workers
// fed from a bounded queue. One Generator may run several regions, one after
// another or concurrently; runs share only the read-only projection table.
type Generator struct {
	cfg      config.Config
	table    *proj.Table
	renderer Renderer
	opts     options
}

func NewGenerator(cfg *config.Config, renderer Renderer, opts ...Option) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if renderer == nil {
		return nil, errors.New("regiontiles: nil renderer")
	}

	o := options{
		logger:   slog.New(slog.DiscardHandler),
		interval: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Generator{
		cfg:      *cfg,
		table:    proj.NewTable(cfg.Levels, config.TileSize),
		renderer: renderer,
		opts:     o,
	}, nil
}

// Layout returns the output layout of a region.
func (g *Generator) Layout(region string) tiledir.Layout {
	return tiledir.Layout{Root: g.cfg.Root, Region: region, Ext: g.cfg.Ext, TMS: g.cfg.TMS}
}

// Generate renders every tile of the region that is not already on disk and
// returns once all workers have exited. Render failures are counted in
// Stats.Failed and do not stop the run. The error is non-nil only for invalid
// input, filesystem setup failures and cancellation.
func (g *Generator) Generate(ctx context.Context, region config.Region) (Stats, error) {
	stats := Stats{Region: region.Name}
	if err := region.Validate(g.cfg.Levels); err != nil {
		return stats, err
	}

	layout := g.Layout(region.Name)
	if err := tiledir.EnsureDir(layout.RegionDir()); err != nil {
		return stats, fmt.Errorf("failed to create output directory: %w", err)
	}

	startTime := time.Now()
	bbox := tiles.FromArray(region.BBox)
	total := tiles.Count(g.table, bbox, region.MinZoom, region.MaxZoom)
	g.opts.logger.Info("generating tiles",
		"region", region.Name, "tiles", total,
		"zoom", fmt.Sprintf("%d-%d", region.MinZoom, region.MaxZoom),
		"workers", g.cfg.Workers)

	var c counters
	jobs := make(chan TileJob, g.cfg.QueueSize)

	var wg sync.WaitGroup
	for range g.cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.work(ctx, jobs, &c)
		}()
	}

	stopProgress := g.startProgress(region.Name, total, &c)

	err := g.produce(ctx, layout, bbox, region, jobs)
	close(jobs)
	wg.Wait()
	stopProgress()

	stats = c.snapshot(region.Name, total, time.Since(startTime))
	g.opts.logger.Info("tile generation complete", stats.attrs()...)
	return stats, err
}

// produce feeds the queue in enumeration order. Directories are created once
// per zoom and once per column before the first job that needs them is sent,
// so workers never create directories themselves.
func (g *Generator) produce(ctx context.Context, layout tiledir.Layout, bbox tiles.BBox, region config.Region, jobs chan<- TileJob) error {
	lastZ, lastX := -1, -1
	for tile := range tiles.Enumerate(g.table, bbox, region.MinZoom, region.MaxZoom) {
		if int(tile.Z) != lastZ {
			if err := tiledir.EnsureDir(layout.ZoomDir(tile.Z)); err != nil {
				return fmt.Errorf("failed to create zoom directory: %w", err)
			}
			lastZ, lastX = int(tile.Z), -1
		}
		if int(tile.X) != lastX {
			if err := tiledir.EnsureDir(layout.ColumnDir(tile.Z, tile.X)); err != nil {
				return fmt.Errorf("failed to create column directory: %w", err)
			}
			lastX = int(tile.X)
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		job := TileJob{
			Region: region.Name,
			Path:   layout.TilePath(tile),
			Tile:   tile,
			TMS:    layout.TMS,
		}
		select {
		case jobs <- job:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (g *Generator) work(ctx context.Context, jobs <-chan TileJob, c *counters) {
	for job := range jobs {
		// after cancellation the queue is drained without rendering
		if ctx.Err() != nil {
			continue
		}
		res := g.process(ctx, job)
		c.record(res)
		g.report(res)
	}
}

// process applies the per-tile policy: keep an existing file, otherwise
// render it, then delete the result if it has the empty tile size.
func (g *Generator) process(ctx context.Context, job TileJob) (res TileResult) {
	start := time.Now()
	res.Job = job
	defer func() { res.Elapsed = time.Since(start) }()

	_, err := os.Stat(job.Path)
	switch {
	case err == nil:
		res.Outcome = OutcomeExisted
	case errors.Is(err, fs.ErrNotExist):
		if err := g.renderer.Render(ctx, g.request(job)); err != nil {
			res.Outcome, res.Err = OutcomeFailed, err
			return res
		}
		res.Outcome = OutcomeRendered
	default:
		res.Outcome, res.Err = OutcomeFailed, err
		return res
	}

	info, err := os.Stat(job.Path)
	if err != nil {
		res.Outcome, res.Err = OutcomeFailed, err
		return res
	}
	res.Size = info.Size()

	if g.cfg.EmptyTileSize > 0 && res.Size == g.cfg.EmptyTileSize {
		if err := os.Remove(job.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			res.Outcome, res.Err = OutcomeFailed, err
			return res
		}
		res.Empty = true
	}
	return res
}

// request converts the tile's pixel window to lon/lat through the projection
// table and then to the renderer's native coordinates.
func (g *Generator) request(job TileJob) Request {
	z := int(job.Tile.Z)
	x, y := float64(job.Tile.X), float64(job.Tile.Y)
	const ts = float64(config.TileSize)

	l0 := g.table.ToLonLat(x*ts, (y+1)*ts, z) // bottom left
	l1 := g.table.ToLonLat((x+1)*ts, y*ts, z) // top right
	c0 := g.renderer.Forward(l0)
	c1 := g.renderer.Forward(l1)

	return Request{
		Bound: orb.Bound{Min: c0, Max: c0}.Extend(c1),
		Zoom:  z,
		Size:  config.TileSize,
		Path:  job.Path,
	}
}

func (g *Generator) report(res TileResult) {
	t := res.Job.Tile
	args := []any{
		"region", res.Job.Region, "z", t.Z, "x", t.X, "y", t.Y,
		"outcome", res.Outcome, "empty", res.Empty, "elapsed", res.Elapsed,
	}
	switch {
	case res.Outcome == OutcomeFailed:
		g.opts.logger.Warn("tile failed", append(args, "error", res.Err)...)
	case g.cfg.Verbose:
		g.opts.logger.Info("tile done", args...)
	default:
		g.opts.logger.Debug("tile done", args...)
	}
	if g.opts.reporter != nil {
		g.opts.reporter(res)
	}
}
