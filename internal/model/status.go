package model

import "errors"

// UnitStatus is the outcome of one unit of extraction work: a lake partition
// or a remote entity.
type UnitStatus string

const (
	StatusOK      UnitStatus = "ok"
	StatusEmpty   UnitStatus = "empty"
	StatusFailed  UnitStatus = "failed"
	StatusSkipped UnitStatus = "skipped"
)

// ErrMissingPrerequisite marks input data whose absence makes a phase
// impossible to run (lake directory, hospital file, extract outputs).
var ErrMissingPrerequisite = errors.New("missing prerequisite")
