package storage

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// Cleanup removes result files older than maxAge and returns how many were
// deleted. Statuses expire after the same age, so nothing can still point
// at them.
func (l *Local) Cleanup(maxAge time.Duration) int {
	now := time.Now()
	removed := 0
	_ = filepath.Walk(l.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		if now.Sub(info.ModTime()) >= maxAge {
			if os.Remove(path) == nil {
				removed++
			}
		}
		return nil
	})
	return removed
}

// RunCleanup calls Cleanup every interval until ctx is done.
func (l *Local) RunCleanup(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := l.Cleanup(maxAge); n > 0 {
				log.Info().Int("removed", n).Str("dir", l.dir).Msg("expired results removed")
			}
		}
	}
}
