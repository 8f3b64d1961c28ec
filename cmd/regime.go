package cmd

import (
	"github.com/huangsam/macindex/core"
	"github.com/huangsam/macindex/internal/contract"
	"github.com/spf13/cobra"
)

// regimeCmd classifies each date into a market regime.
var regimeCmd = &cobra.Command{
	Use:   "regime",
	Short: "Classify pillar history into normal and fragile regimes.",
	Long: `Fit the two-state regime model on pillar history and report, for every
step between --start and --end, the probability of being in the fragile
state. Falls back to a threshold rule when the model cannot be fitted.

Examples:
  # Regime series over the observation span
  macindex regime --observations data/observations.csv

  # Only since 2019, as CSV
  macindex regime --observations data/observations.csv --start 2019-01-01 --output csv`,
	Args:    cobra.NoArgs,
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := core.ExecuteRegime(rootCtx, cfg, cacheManager); err != nil {
			contract.LogFatal("Cannot classify regimes", err)
		}
	},
}
