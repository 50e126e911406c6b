// Package mono provides a low-level monotonic clock independent of wall-clock
// adjustments, used by package lru for aging.
package mono

import "time"

var start = time.Now()

// NanoTime returns nanoseconds since an arbitrary, process-local epoch.
// Only differences between two NanoTime() calls are meaningful.
func NanoTime() int64 { return int64(time.Since(start)) }

// Since returns the monotonic duration elapsed since t (a prior NanoTime()).
func Since(t int64) time.Duration { return time.Duration(NanoTime() - t) }
