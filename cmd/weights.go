package cmd

import (
	"github.com/huangsam/macindex/core"
	"github.com/huangsam/macindex/internal/contract"
	"github.com/spf13/cobra"
)

// weightsCmd fits pillar weights on the crisis catalog.
var weightsCmd = &cobra.Command{
	Use:   "weights",
	Short: "Fit pillar weights on historical crisis scenarios.",
	Long: `Fit pillar weights from the crisis scenario catalog.

The estimator learns how pillar scores map to crisis severity and its
feature importances become the weights. Pillar interactions are reported
separately. With --validate, a leave-one-out pass reports the error on
each held-out crisis.

Examples:
  # Fit on the built-in catalog
  macindex weights

  # Ridge estimator with validation, only crises resolved by 2015
  macindex weights --estimator ridge --validate --as-of 2015-01-01`,
	Args:    cobra.NoArgs,
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := core.ExecuteWeights(rootCtx, cfg, cacheManager); err != nil {
			contract.LogFatal("Cannot fit weights", err)
		}
	},
}
