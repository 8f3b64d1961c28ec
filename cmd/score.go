package cmd

import (
	"github.com/huangsam/macindex/core"
	"github.com/huangsam/macindex/internal/contract"
	"github.com/spf13/cobra"
)

// scoreCmd computes the composite for a single date.
var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Compute the composite stress score for one date.",
	Long: `Score every indicator, aggregate pillars and combine them into the composite.

For the chosen date (the last observation unless --as-of is set) this:
- Scores each indicator against its era's thresholds
- Aggregates indicator scores into pillar scores
- Fits weights on crises resolved by that date
- Applies the breach penalty and calibration
- Classifies the regime and recommends a posture

Examples:
  # Score the latest observation
  macindex score --observations data/observations.csv

  # Score a past date with bootstrap intervals
  macindex score --observations data/observations.csv --as-of 2020-03-20 --bootstrap

  # Write the full report as JSON
  macindex score --observations data/observations.csv --output json --output-file score.json`,
	Args:    cobra.NoArgs,
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := core.ExecuteScore(rootCtx, cfg, cacheManager); err != nil {
			contract.LogFatal("Cannot compute composite", err)
		}
	},
}
