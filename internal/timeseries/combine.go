package timeseries

import "sort"

// Add returns the element-wise sum of a and b. The shorter input is treated as
// zero-padded, so Add is associative and commutative.
func Add(a, b []float64) []float64 {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]float64, n)
	for i := range out {
		if i < len(a) {
			out[i] += a[i]
		}
		if i < len(b) {
			out[i] += b[i]
		}
	}
	return out
}

// Combine sums every source of one area minute by minute. Sources are added in
// sorted key order so float results are reproducible.
func Combine(series SourceSeries) []float64 {
	var out []float64
	for _, key := range sortedKeys(series) {
		out = Add(out, series[key])
	}
	return out
}

// CombineAreas collapses the per-source series of every area into one series
// per area. Areas without any contributing source are absent from the result.
func CombineAreas(r *Regularized) map[string][]float64 {
	out := make(map[string][]float64, len(r.Series))
	for area, series := range r.Series {
		if len(series) == 0 {
			continue
		}
		out[area] = Combine(series)
	}
	return out
}

func sortedKeys(series SourceSeries) []string {
	keys := make([]string, 0, len(series))
	for k := range series {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
