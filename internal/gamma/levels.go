package gamma

import (
	"math"
	"sort"
)

// IdentifyLevels returns up to n strikes with the largest absolute exposure,
// largest first. Equal magnitudes keep their input order.
func IdentifyLevels(byStrike []StrikeExposure, n int) []StrikeExposure {
	sorted := make([]StrikeExposure, len(byStrike))
	copy(sorted, byStrike)

	sort.SliceStable(sorted, func(i, j int) bool {
		return math.Abs(sorted[i].GammaExposure) > math.Abs(sorted[j].GammaExposure)
	})

	if n < 0 {
		n = 0
	}
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
