package accuracy

import "math"

// welfordState accumulates running statistics over prediction errors using
// Welford's online algorithm, so a score bucket needs O(1) memory no matter
// how many samples it holds.
type welfordState struct {
	count int
	mean  float64
	m2    float64 // sum of squared differences from the mean
}

// update folds one observation into the running statistics.
func (w *welfordState) update(value float64) {
	w.count++
	delta := value - w.mean
	w.mean += delta / float64(w.count)
	delta2 := value - w.mean
	w.m2 += delta * delta2
}

// stdDev returns the population standard deviation, or 0 with fewer than two
// observations.
func (w *welfordState) stdDev() float64 {
	if w.count < 2 {
		return 0
	}
	return math.Sqrt(w.m2 / float64(w.count))
}
