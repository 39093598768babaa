package health

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when more than limit goroutines are running,
// which usually means handlers are leaking.
func GoroutineCountCheck(limit int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > limit {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, limit)
		}
		return nil
	}
}

// GCMaxPauseCheck fails when a garbage collection finished since the
// previous run paused the world for longer than limit. Older pauses are
// ignored so a single slow collection does not fail liveness forever.
func GCMaxPauseCheck(limit time.Duration) CheckFunc {
	var (
		mu     sync.Mutex
		lastGC int64
	)
	return func(context.Context) error {
		var stats debug.GCStats
		debug.ReadGCStats(&stats)

		mu.Lock()
		fresh := stats.NumGC - lastGC
		lastGC = stats.NumGC
		mu.Unlock()

		// Pause holds the most recent pauses first.
		recent := stats.Pause[:min(int(fresh), len(stats.Pause))]
		for _, pause := range recent {
			if pause > limit {
				return errors.Errorf("GC pause %s exceeds threshold %s", pause, limit)
			}
		}
		return nil
	}
}
