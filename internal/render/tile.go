package render

import (
	"time"

	"github.com/paulmach/orb/maptile"
)

// TileJob is one tile to produce. Each job is sent to exactly one worker.
type TileJob struct {
	Region string
	Path   string
	Tile   maptile.Tile
	TMS    bool
}

type Outcome int

const (
	// OutcomeRendered means the renderer produced the file during this run.
	OutcomeRendered Outcome = iota
	// OutcomeExisted means a file was already present and rendering was skipped.
	OutcomeExisted
	// OutcomeFailed means the renderer or the filesystem returned an error.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRendered:
		return "rendered"
	case OutcomeExisted:
		return "exists"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// TileResult reports what happened to a job. Empty is set when the file
// matched the empty tile size and was deleted, whether it was rendered now or
// found on disk.
type TileResult struct {
	Job     TileJob
	Outcome Outcome
	Empty   bool
	Size    int64
	Elapsed time.Duration
	Err     error
}
