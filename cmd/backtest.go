package cmd

import (
	"github.com/huangsam/macindex/core"
	"github.com/huangsam/macindex/internal/contract"
	"github.com/spf13/cobra"
)

// backtestCmd runs the walk-forward backtest.
var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Walk the composite forward through history and grade it against crises.",
	Long: `Score every step of the observation history using only information available
at that date, refitting weights as crises resolve.

Reports:
- The composite series with regime and posture
- Hit rate, lead time and false positives per decision threshold
- Per-era calibration summaries
- Every refit and whether it succeeded

When a run backend is configured, each run and its composites are recorded
for later listing and export with 'macindex runs'.

Examples:
  # Weekly backtest over the full history
  macindex backtest --observations data/observations.csv

  # Monthly steps, refit yearly, record the run in SQLite
  macindex backtest --observations data/observations.csv --step-days 30 --refit-every 12 --run-backend sqlite

  # Export the series to Parquet
  macindex backtest --observations data/observations.csv --output parquet --output-file series.parquet`,
	Args:    cobra.NoArgs,
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := core.ExecuteBacktest(rootCtx, cfg, cacheManager); err != nil {
			contract.LogFatal("Cannot run backtest", err)
		}
	},
}
