package render_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"hstin/regiontiles/internal/config"
	"hstin/regiontiles/internal/render"
)

// fakeRenderer writes a file of size(req) bytes. Forward is the identity, so
// request bounds are in lon/lat.
type fakeRenderer struct {
	size  func(render.Request) int
	fail  func(render.Request) error
	delay time.Duration

	calls     atomic.Int64
	active    atomic.Int64
	maxActive atomic.Int64

	mu       sync.Mutex
	requests map[string][]render.Request
}

func (r *fakeRenderer) Forward(ll orb.Point) orb.Point { return ll }

func (r *fakeRenderer) Render(ctx context.Context, req render.Request) error {
	r.calls.Add(1)
	n := r.active.Add(1)
	defer r.active.Add(-1)
	for {
		m := r.maxActive.Load()
		if n <= m || r.maxActive.CompareAndSwap(m, n) {
			break
		}
	}

	r.mu.Lock()
	if r.requests == nil {
		r.requests = make(map[string][]render.Request)
	}
	r.requests[req.Path] = append(r.requests[req.Path], req)
	r.mu.Unlock()

	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if r.fail != nil {
		if err := r.fail(req); err != nil {
			return err
		}
	}
	size := 200
	if r.size != nil {
		size = r.size(req)
	}
	return os.WriteFile(req.Path, make([]byte, size), 0644)
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Root = t.TempDir()
	return cfg
}

var origin = config.Region{Name: "origin", BBox: [4]float64{-1, -1, 1, 1}, MinZoom: 0, MaxZoom: 2}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	require.NoError(t, err)
	return n
}

func TestGenerateDrain(t *testing.T) {
	for _, workers := range []int{1, 3, 16} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			t.Parallel()
			cfg := testConfig(t)
			cfg.Workers = workers
			r := &fakeRenderer{}

			g, err := render.NewGenerator(cfg, r)
			require.NoError(t, err)
			stats, err := g.Generate(context.Background(), origin)
			require.NoError(t, err)

			require.Equal(t, int64(9), stats.Total)
			require.Equal(t, int64(9), stats.Processed())
			require.Equal(t, int64(9), stats.Rendered)
			require.Equal(t, int64(9), r.calls.Load())
			require.Equal(t, 9, countFiles(t, filepath.Join(cfg.Root, "origin")))
			for path, reqs := range r.requests {
				require.Lenf(t, reqs, 1, "%s rendered more than once", path)
			}
			require.LessOrEqual(t, r.maxActive.Load(), int64(workers))
			require.Zero(t, r.active.Load())
		})
	}
}

func TestGenerateIdempotent(t *testing.T) {
	cfg := testConfig(t)
	r := &fakeRenderer{}
	g, err := render.NewGenerator(cfg, r)
	require.NoError(t, err)

	first, err := g.Generate(context.Background(), origin)
	require.NoError(t, err)
	require.Equal(t, int64(9), first.Rendered)

	second, err := g.Generate(context.Background(), origin)
	require.NoError(t, err)
	require.Zero(t, second.Rendered)
	require.Equal(t, int64(9), second.Existed)
	require.Equal(t, int64(9), r.calls.Load())
}

func TestGenerateEmptyTiles(t *testing.T) {
	cfg := testConfig(t)
	r := &fakeRenderer{
		size: func(req render.Request) int {
			// western half of the world is blank
			if req.Bound.Right() <= 0 {
				return config.EmptyPNGSize
			}
			return 500
		},
	}
	g, err := render.NewGenerator(cfg, r)
	require.NoError(t, err)

	stats, err := g.Generate(context.Background(), origin)
	require.NoError(t, err)
	require.Equal(t, int64(9), stats.Rendered)
	require.Equal(t, int64(4), stats.Empty)

	layout := g.Layout("origin")
	for _, tc := range []struct {
		path   string
		exists bool
	}{
		{filepath.Join(layout.ZoomDir(0), "0", "0.png"), true},
		{filepath.Join(layout.ZoomDir(1), "0", "0.png"), false},
		{filepath.Join(layout.ZoomDir(1), "0", "1.png"), false},
		{filepath.Join(layout.ZoomDir(1), "1", "0.png"), true},
		{filepath.Join(layout.ZoomDir(2), "1", "1.png"), false},
		{filepath.Join(layout.ZoomDir(2), "2", "2.png"), true},
	} {
		_, err := os.Stat(tc.path)
		require.Equalf(t, tc.exists, err == nil, "%s: %v", tc.path, err)
	}
}

func TestGenerateExistingFiles(t *testing.T) {
	cfg := testConfig(t)
	r := &fakeRenderer{}
	g, err := render.NewGenerator(cfg, r)
	require.NoError(t, err)

	region := config.Region{Name: "pre", BBox: [4]float64{-1, -1, 1, 1}, MinZoom: 1, MaxZoom: 1}
	layout := g.Layout(region.Name)
	empty := filepath.Join(layout.ColumnDir(1, 0), "0.png")
	other := filepath.Join(layout.ColumnDir(1, 1), "1.png")
	require.NoError(t, os.MkdirAll(filepath.Dir(empty), 0755))
	require.NoError(t, os.MkdirAll(filepath.Dir(other), 0755))
	require.NoError(t, os.WriteFile(empty, make([]byte, config.EmptyPNGSize), 0644))
	require.NoError(t, os.WriteFile(other, make([]byte, config.EmptyPNGSize+1), 0644))

	stats, err := g.Generate(context.Background(), region)
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.Existed)
	require.Equal(t, int64(2), stats.Rendered)
	require.Equal(t, int64(1), stats.Empty)
	require.Equal(t, int64(2), r.calls.Load())

	_, err = os.Stat(empty)
	require.ErrorIs(t, err, fs.ErrNotExist)
	info, err := os.Stat(other)
	require.NoError(t, err)
	require.Equal(t, int64(config.EmptyPNGSize+1), info.Size())
}

func TestGenerateFailuresContinue(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workers = 2
	errBoom := errors.New("boom")
	r := &fakeRenderer{
		fail: func(req render.Request) error {
			if req.Zoom == 2 {
				return errBoom
			}
			return nil
		},
	}

	var mu sync.Mutex
	var failed []error
	g, err := render.NewGenerator(cfg, r, render.WithReporter(func(res render.TileResult) {
		if res.Outcome == render.OutcomeFailed {
			mu.Lock()
			failed = append(failed, res.Err)
			mu.Unlock()
		}
	}))
	require.NoError(t, err)

	stats, err := g.Generate(context.Background(), origin)
	require.NoError(t, err)
	require.Equal(t, int64(5), stats.Rendered)
	require.Equal(t, int64(4), stats.Failed)
	require.Equal(t, int64(9), stats.Processed())
	require.Len(t, failed, 4)
	for _, err := range failed {
		require.ErrorIs(t, err, errBoom)
	}
}

func TestGenerateTMS(t *testing.T) {
	cfg := testConfig(t)
	cfg.TMS = true
	g, err := render.NewGenerator(cfg, &fakeRenderer{})
	require.NoError(t, err)

	region := config.Region{Name: "tms", BBox: [4]float64{10, 10, 20, 20}, MinZoom: 1, MaxZoom: 1}
	_, err = g.Generate(context.Background(), region)
	require.NoError(t, err)

	// tile (1, 0, 1) is stored under the flipped row
	_, err = os.Stat(filepath.Join(cfg.Root, "tms", "1", "1", "1.png"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(cfg.Root, "tms", "1", "1", "0.png"))
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestGenerateRequestBound(t *testing.T) {
	cfg := testConfig(t)
	r := &fakeRenderer{}
	g, err := render.NewGenerator(cfg, r)
	require.NoError(t, err)

	region := config.Region{Name: "b", BBox: [4]float64{10, 10, 20, 20}, MinZoom: 0, MaxZoom: 1}
	_, err = g.Generate(context.Background(), region)
	require.NoError(t, err)
	require.Len(t, r.requests, 2)

	const maxLat = 85.0511287798066
	approx := cmp.Comparer(func(a, b float64) bool { return math.Abs(a-b) < 1e-9 })
	for _, tc := range []struct {
		path string
		want render.Request
	}{
		{
			filepath.Join(cfg.Root, "b", "0", "0", "0.png"),
			render.Request{Bound: orb.Bound{Min: orb.Point{-180, -maxLat}, Max: orb.Point{180, maxLat}}, Zoom: 0, Size: 256},
		},
		{
			filepath.Join(cfg.Root, "b", "1", "1", "0.png"),
			render.Request{Bound: orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{180, maxLat}}, Zoom: 1, Size: 256},
		},
	} {
		reqs := r.requests[tc.path]
		require.Lenf(t, reqs, 1, "%s", tc.path)
		tc.want.Path = tc.path
		if diff := cmp.Diff(tc.want, reqs[0], approx); diff != "" {
			t.Errorf("request for %s mismatch (-want+got):\n%v", tc.path, diff)
		}
	}
}

func TestGenerateOutsideWorld(t *testing.T) {
	cfg := testConfig(t)
	r := &fakeRenderer{}
	g, err := render.NewGenerator(cfg, r)
	require.NoError(t, err)

	region := config.Region{Name: "void", BBox: [4]float64{190, -10, 200, 10}, MinZoom: 0, MaxZoom: 8}
	stats, err := g.Generate(context.Background(), region)
	require.NoError(t, err)
	require.Zero(t, stats.Total)
	require.Zero(t, stats.Processed())
	require.Zero(t, r.calls.Load())
}

func TestGenerateCancelled(t *testing.T) {
	cfg := testConfig(t)
	r := &fakeRenderer{}
	g, err := render.NewGenerator(cfg, r)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Generate(ctx, origin)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, r.calls.Load())
}

func TestGenerateCancelMidway(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workers = 2
	cfg.QueueSize = 2

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &fakeRenderer{}
	r.fail = func(render.Request) error {
		if r.calls.Load() >= 5 {
			cancel()
		}
		return nil
	}
	g, err := render.NewGenerator(cfg, r)
	require.NoError(t, err)

	world := config.Region{Name: "world", BBox: [4]float64{-180, -85, 180, 85}, MinZoom: 0, MaxZoom: 6}
	stats, err := g.Generate(ctx, world)
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, stats.Processed(), stats.Total)
	require.Less(t, r.calls.Load(), int64(20))
}

func TestGenerateConcurrentRegions(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workers = 4
	r := &fakeRenderer{delay: time.Millisecond}
	g, err := render.NewGenerator(cfg, r)
	require.NoError(t, err)

	regions := []config.Region{
		{Name: "a", BBox: [4]float64{-10, 35, 30, 70}, MinZoom: 0, MaxZoom: 5},
		{Name: "b", BBox: [4]float64{-125, 25, -65, 50}, MinZoom: 0, MaxZoom: 5},
	}
	results := make([]render.Stats, len(regions))
	errs := make([]error, len(regions))
	var wg sync.WaitGroup
	for i, region := range regions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = g.Generate(context.Background(), region)
		}()
	}
	wg.Wait()

	for i, stats := range results {
		require.NoError(t, errs[i])
		require.Equal(t, stats.Total, stats.Rendered)
		require.Equal(t, int(stats.Total), countFiles(t, filepath.Join(cfg.Root, regions[i].Name)))
	}
}

func TestGenerateInvalid(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workers = 0
	_, err := render.NewGenerator(cfg, &fakeRenderer{})
	require.ErrorIs(t, err, config.ErrInvalidWorkers)

	_, err = render.NewGenerator(testConfig(t), nil)
	require.Error(t, err)

	g, err := render.NewGenerator(testConfig(t), &fakeRenderer{})
	require.NoError(t, err)
	_, err = g.Generate(context.Background(), config.Region{Name: "deep", MinZoom: 0, MaxZoom: 19})
	require.ErrorIs(t, err, config.ErrInvalidZoom)
}

func TestGenerateLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	g, err := render.NewGenerator(testConfig(t), &fakeRenderer{}, render.WithLogger(logger))
	require.NoError(t, err)
	_, err = g.Generate(context.Background(), origin)
	require.NoError(t, err)

	out := buf.String()
	require.Equal(t, 9, strings.Count(out, "msg=\"tile done\""))
	require.Contains(t, out, "tile generation complete")
	require.Contains(t, out, "rendered=9")
}
