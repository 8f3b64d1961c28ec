package schema

import "errors"

// Error classes shared by every stage. Callers branch on them with errors.Is.
var (
	// ErrConfig marks malformed thresholds, weights or tables. Fatal at startup.
	ErrConfig = errors.New("configuration error")

	// ErrInsufficientData marks too few pillars or scenarios to compute a result.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrFitFailed marks a numerical fit that did not converge or degenerated.
	ErrFitFailed = errors.New("fit failed")
)
