package exitcode

const (
	Success           = 0
	UsageError        = 1
	PreconditionError = 2
	SourceConnError   = 3
	ExtractError      = 4
	BuildError        = 5
	PartialSuccess    = 6
	PublishError      = 7
)
