package cmd

import (
	"github.com/huangsam/macindex/core"
	"github.com/huangsam/macindex/internal/contract"
	"github.com/spf13/cobra"
)

// metricsCmd displays the formal definitions of the composite.
var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Display the composite formula, pillars, indicators and penalties",
	Long: `Show the formal definition of the composite for the selected family.

Provides complete transparency into how the score is built, including:
- Pillars and the weights in force before any fit
- Indicators and their threshold sets
- The breach penalty table and calibration bounds
- Regime label bands

No observations are read - this is purely informational.

Examples:
  # Show the MAC definition
  macindex metrics

  # GRRI definition with custom weights from a config file
  macindex metrics --family grri --config .macindex.yaml`,
	Args:    cobra.NoArgs,
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := core.ExecuteMetrics(rootCtx, cfg, cacheManager); err != nil {
			contract.LogFatal("Cannot display metrics", err)
		}
	},
}
