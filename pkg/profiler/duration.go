package profiler

import "time"

// durationMS converts d to fractional milliseconds without the precision
// loss of an intermediate integer division.
func durationMS(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
