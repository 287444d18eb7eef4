package processor

import (
	"context"

	"framefarm/internal/pkg/logger"
	"framefarm/internal/ports"
)

// Cleanup removes the frames a failed chunk left behind so a later download
// of the session only sees complete chunks.
type Cleanup struct {
	enabled bool
	sp      ports.StorageProvider
	log     *logger.Logger
}

func NewCleanup(enabled bool, sp ports.StorageProvider, log *logger.Logger) *Cleanup {
	return &Cleanup{enabled: enabled, sp: sp, log: log}
}

// PartialFrames deletes keys and returns how many were removed. Delete
// errors are logged, never returned.
func (c *Cleanup) PartialFrames(ctx context.Context, keys []string) int {
	if !c.enabled || len(keys) == 0 {
		return 0
	}

	removed := 0
	for _, k := range keys {
		if err := c.sp.DeleteObject(ctx, k); err != nil {
			c.log.LogError(ctx, "failed to remove partial frame", err, "key", k)
			continue
		}
		removed++
	}
	if removed > 0 {
		if err := c.sp.Commit(ctx); err != nil {
			c.log.LogError(ctx, "failed to commit frame cleanup", err)
		}
	}
	return removed
}
