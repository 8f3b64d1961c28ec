package schema

import "time"

// RunRecord represents a row from the macindex_runs table.
type RunRecord struct {
	RunID         int64
	RunUUID       string
	Family        string
	StartTime     time.Time
	EndTime       *time.Time
	RunDurationMs *int32
	TotalDates    int32
	ConfigParams  *string
}

// CompositeRecord represents a row from the macindex_composites table.
type CompositeRecord struct {
	RunID         int64
	ScoreDate     time.Time
	Score         float64
	Indeterminate bool
	Label         string
	BreachCount   int32
	Penalty       float64
	Alpha         float64
	Fragility     *float64
	InCrisis      bool
	Flags         string
}

// CompositeRecordFrom flattens a backtest point for storage.
func CompositeRecordFrom(runID int64, p BacktestPoint) CompositeRecord {
	rec := CompositeRecord{
		RunID:         runID,
		ScoreDate:     p.Date,
		Score:         p.Score,
		Indeterminate: p.Indeterminate,
		Label:         string(p.Label),
		BreachCount:   int32(p.BreachCount),
		Penalty:       p.Penalty,
		Alpha:         p.Alpha,
		InCrisis:      p.InCrisis,
		Flags:         JoinFlags(p.Flags),
	}
	if p.Regime != nil {
		f := p.Regime.Fragility
		rec.Fragility = &f
	}
	return rec
}
