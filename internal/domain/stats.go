package domain

import "context"

type GlobalStats struct {
	TotalRuns       int64   `json:"totalRuns"`
	TotalCP         int64   `json:"totalCP"`
	TotalDBP        int64   `json:"totalDBP"`
	TotalDuration   int64   `json:"totalDuration"`
	AverageDuration float64 `json:"averageDuration"`
}

type StatsStore interface {
	// RecordRun adds a completed run to the aggregates and returns the new totals.
	RecordRun(ctx context.Context, run *Run) (GlobalStats, error)
	Global(ctx context.Context) (GlobalStats, error)
}
