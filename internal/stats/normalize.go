// Package stats holds the in-process stream statistics cache and the
// normalization applied before raw counters are shown to callers.
package stats

import (
	"math"

	"github.com/arkilian/streamcatalog/pkg/types"
)

// bytesPerMiB converts raw byte counters to mebibytes.
const bytesPerMiB = 1024.0 * 1024.0

// Normalize converts storage and compressed sizes from bytes to MiB rounded to
// two decimals. Counters and time bounds are returned untouched.
func Normalize(s types.StreamStats) types.StreamStats {
	s.StorageSize = roundTo2(s.StorageSize / bytesPerMiB)
	s.CompressedSize = roundTo2(s.CompressedSize / bytesPerMiB)
	return s
}

// roundTo2 rounds to the nearest hundredth, ties away from zero.
func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}
