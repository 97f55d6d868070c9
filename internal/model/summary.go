package model

import "time"

// ExtractSummary captures metrics from one extraction run, lake or remote.
type ExtractSummary struct {
	RunID         string
	Source        string // "lake" or "remote"
	Units         int    // partitions or entities considered
	UnitsOK       int
	UnitsEmpty    int
	UnitsFailed   int
	UnitsSkipped  int
	RowsDRG       int64
	RowsProcedure int64
	RowsInvalid   int64
	Hospitals     int
	DurationTotal time.Duration
}

// BuildSummary captures metrics from the unpivot → clean → classify → assemble run.
type BuildSummary struct {
	RunID             string
	RawRows           int64
	Observations      int64
	CleanRows         int64
	DroppedNoCode     int64
	DroppedNotTarget  int64
	DroppedCharge     int64
	Ambiguous         int64
	PanelRows         int64
	PanelDropped      int64
	Hospitals         int
	HospitalsWithData int
	CodesCovered      int
	CodesUncovered    []CodeKey
	OutputFiles       []string
	DurationTotal     time.Duration
}
