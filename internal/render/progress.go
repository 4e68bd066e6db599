package render

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Stats summarizes one Generate run.
type Stats struct {
	Region   string
	Total    int64 // tiles enumerated
	Rendered int64
	Existed  int64
	Empty    int64 // deleted as empty, counted in Rendered or Existed as well
	Failed   int64
	Elapsed  time.Duration
}

// Processed is the number of jobs that reached a worker.
func (s Stats) Processed() int64 {
	return s.Rendered + s.Existed + s.Failed
}

func (s Stats) attrs() []any {
	rate := 0.0
	if secs := s.Elapsed.Seconds(); secs > 0 {
		rate = float64(s.Processed()) / secs
	}
	return []any{
		"region", s.Region,
		"total", s.Total,
		"rendered", s.Rendered,
		"existed", s.Existed,
		"empty", s.Empty,
		"failed", s.Failed,
		"elapsed", s.Elapsed.Round(time.Millisecond),
		"tiles_per_sec", fmt.Sprintf("%.1f", rate),
	}
}

type counters struct {
	rendered atomic.Int64
	existed  atomic.Int64
	empty    atomic.Int64
	failed   atomic.Int64
}

func (c *counters) record(res TileResult) {
	switch res.Outcome {
	case OutcomeRendered:
		c.rendered.Add(1)
	case OutcomeExisted:
		c.existed.Add(1)
	case OutcomeFailed:
		c.failed.Add(1)
	}
	if res.Empty {
		c.empty.Add(1)
	}
}

func (c *counters) done() int64 {
	return c.rendered.Load() + c.existed.Load() + c.failed.Load()
}

func (c *counters) snapshot(region string, total int64, elapsed time.Duration) Stats {
	return Stats{
		Region:   region,
		Total:    total,
		Rendered: c.rendered.Load(),
		Existed:  c.existed.Load(),
		Empty:    c.empty.Load(),
		Failed:   c.failed.Load(),
		Elapsed:  elapsed,
	}
}

// startProgress logs a progress line every interval until stop is called.
// Lines are skipped while nothing changes.
func (g *Generator) startProgress(region string, total int64, c *counters) (stop func()) {
	if g.opts.interval <= 0 {
		return func() {}
	}

	startTime := time.Now()
	ticker := time.NewTicker(g.opts.interval)
	done := make(chan struct{})
	exited := make(chan struct{})

	go func() {
		defer close(exited)
		defer ticker.Stop()
		lastCompleted := int64(-1)

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				current := c.done()
				if current == lastCompleted {
					continue
				}
				lastCompleted = current

				elapsed := time.Since(startTime).Seconds()
				tilesPerSec := float64(current) / elapsed
				percent := 100
				if total > 0 {
					percent = int(float64(current) / float64(total) * 100)
				}

				g.opts.logger.Info("progress",
					"region", region,
					"done", humanize.Comma(current),
					"total", humanize.Comma(total),
					"percent", percent,
					"tiles_per_sec", fmt.Sprintf("%.1f", tilesPerSec),
					"eta", eta(total-current, tilesPerSec))
			}
		}
	}()

	return func() {
		close(done)
		<-exited
	}
}

func eta(remaining int64, rate float64) string {
	if rate <= 0 {
		return "calculating..."
	}
	secs := float64(remaining) / rate
	switch {
	case secs < 60:
		return fmt.Sprintf("%.0fs", secs)
	case secs < 3600:
		return fmt.Sprintf("%.1fm", secs/60)
	}
	return fmt.Sprintf("%.1fh", secs/3600)
}
