package timeseries

import "github.com/rotisserie/eris"

// Convention selects the EWMA weighting scheme.
type Convention string

const (
	// AdjustFalse is the plain recursion s[t] = α·x[t] + (1−α)·s[t−1], s[0] = x[0].
	AdjustFalse Convention = "adjust_false"
	// AdjustTrue divides by the decaying weight sum, so early outputs are a
	// weighted mean of the history seen so far.
	AdjustTrue Convention = "adjust_true"
)

// DefaultSpan is the decay span, in minutes, applied when none is configured.
const DefaultSpan = 4

// ParseConvention validates a configured convention name.
func ParseConvention(s string) (Convention, error) {
	switch Convention(s) {
	case AdjustFalse, "":
		return AdjustFalse, nil
	case AdjustTrue:
		return AdjustTrue, nil
	default:
		return "", eris.Errorf("timeseries: unknown smoothing convention %q", s)
	}
}

// Alpha returns the smoothing factor for a decay span.
func Alpha(span float64) float64 {
	return 2 / (span + 1)
}

// Smooth applies an exponentially weighted moving average to values.
func Smooth(values []float64, span float64, conv Convention) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	alpha := Alpha(span)
	decay := 1 - alpha

	if conv == AdjustTrue {
		var num, den float64
		for i, x := range values {
			num = x + decay*num
			den = 1 + decay*den
			out[i] = num / den
		}
		return out
	}

	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + decay*out[i-1]
	}
	return out
}
