package parking

import "math"

// Snapshot repair rules. Sensors occasionally report occupancy above
// capacity, omit the rate, or omit the occupancy entirely; the readings
// are repaired rather than discarded so the dashboard always has a
// value per lot.

// Repair fixes one snapshot. meanFraction is the lot's historical mean
// occupancy fraction (0..1), NaN when no history exists.
func Repair(s Snapshot, meanFraction float64) Snapshot {
	hasCap := !isNull(s.Capacity) && s.Capacity > 0

	// Occupancy can never exceed capacity.
	if !isNull(s.Occupancy) && hasCap && s.Occupancy > s.Capacity {
		s.Occupancy = s.Capacity
	}

	// A missing occupancy is recovered from the reported rate, or from
	// the lot's typical fill level.
	if isNull(s.Occupancy) && hasCap {
		switch {
		case !isNull(s.OccupancyRate):
			s.Occupancy = math.Round(s.OccupancyRate / 100 * s.Capacity)
		case !isNull(meanFraction):
			s.Occupancy = math.Round(meanFraction * s.Capacity)
		}
	}

	// Derive or re-derive the rate once occupancy and capacity agree.
	if !isNull(s.Occupancy) && hasCap {
		s.OccupancyRate = math.Round(s.Occupancy/s.Capacity*100*100) / 100
	}
	return s
}

// MeanFraction computes the mean occupancy/capacity over a history of
// readings, skipping rows where either side is missing or the capacity
// is zero. Returns NaN when nothing usable remains.
func MeanFraction(occupancy, capacity []float64) float64 {
	sum, n := 0.0, 0
	for i := range occupancy {
		if i >= len(capacity) {
			break
		}
		occ, capVal := occupancy[i], capacity[i]
		if isNull(occ) || isNull(capVal) || capVal <= 0 {
			continue
		}
		frac := occ / capVal
		if frac > 1 {
			frac = 1
		}
		sum += frac
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// InterpolateHistory fills interior gaps of a history series by linear
// interpolation. Leading and trailing gaps stay missing.
func InterpolateHistory(vals []float64) int {
	filled := 0
	prev := -1
	for i, v := range vals {
		if isNull(v) {
			continue
		}
		if prev >= 0 && i-prev > 1 {
			step := (v - vals[prev]) / float64(i-prev)
			for j := prev + 1; j < i; j++ {
				vals[j] = math.Round(vals[prev] + step*float64(j-prev))
				filled++
			}
		}
		prev = i
	}
	return filled
}
