package repository

import (
	"context"
	"time"
)

// Purger removes aged terminal jobs. Implementations must delete upscale rows
// and job rows in one transaction so a crash never strands an upscale row
// whose source job is gone.
type Purger interface {
	// PurgeOld deletes completed/failed rows created before cutoff and
	// returns (jobs deleted, upscale jobs deleted).
	PurgeOld(ctx context.Context, cutoff time.Time) (int, int, error)
}
