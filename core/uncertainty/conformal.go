package uncertainty

import (
	"fmt"
	"math"
	"sort"

	"github.com/huangsam/macindex/schema"
)

// ConformalBands builds split-conformal bands around score from historical
// absolute residuals. For n residuals and coverage L the half-width is the
// k-th smallest residual with k = ⌈(n+1)L⌉; when k exceeds n the band is
// the whole unit interval.
func ConformalBands(score float64, residuals []float64, levels []float64) (*schema.ConformalResult, error) {
	if len(residuals) == 0 {
		return nil, fmt.Errorf("%w: no resolved residuals for conformal bands", schema.ErrInsufficientData)
	}
	sorted := make([]float64, len(residuals))
	copy(sorted, residuals)
	sort.Float64s(sorted)
	n := len(sorted)

	res := &schema.ConformalResult{Residuals: n}
	for _, level := range levelsOrDefault(levels) {
		k := int(math.Ceil(float64(n+1) * level))
		if k > n {
			res.Intervals = append(res.Intervals, schema.Interval{Level: level, Lower: 0, Upper: 1})
			continue
		}
		q := sorted[max(k, 1)-1]
		res.Intervals = append(res.Intervals, schema.Interval{
			Level: level,
			Lower: clamp01(score - q),
			Upper: clamp01(score + q),
		})
	}
	return res, nil
}

// Annotate attaches both interval families to a report. A missing family is
// flagged rather than substituted by the other.
func Annotate(report *schema.CompositeReport, boot *schema.BootstrapResult, conf *schema.ConformalResult) {
	report.Uncertainty = &schema.UncertaintyReport{Bootstrap: boot, Conformal: conf}
	if boot == nil {
		report.AddFlag(schema.FlagBootstrapUnavailable)
	}
	if conf == nil {
		report.AddFlag(schema.FlagConformalUnavailable)
	}
}
