package cmd

import (
	"github.com/huangsam/macindex/core"
	"github.com/huangsam/macindex/internal/contract"
	"github.com/spf13/cobra"
)

// penaltiesCmd derives the breach penalty table from data.
var penaltiesCmd = &cobra.Command{
	Use:   "penalties",
	Short: "Derive the breach penalty table from observed breach rates.",
	Long: `Estimate how often each pillar breaches over the observation history and
turn those rates into a penalty per breach count.

Models:
  independence - pillars breach independently (Poisson binomial)
  dirichlet    - smoothed empirical distribution of breach counts

Examples:
  macindex penalties --observations data/observations.csv --penalty-model dirichlet`,
	Args:    cobra.NoArgs,
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := core.ExecutePenalties(rootCtx, cfg, cacheManager); err != nil {
			contract.LogFatal("Cannot derive penalties", err)
		}
	},
}
