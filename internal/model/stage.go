package model

// Stage is a named point in the transfer episode state machine.
type Stage string

const (
	StageInitializing  Stage = "initializing"
	StageSerializing   Stage = "serializing"
	StageQueuing       Stage = "queuing"
	StageTransferring  Stage = "transferring"
	StageDequeuing     Stage = "dequeuing"
	StageDeserializing Stage = "deserializing"
	StageCleanup       Stage = "cleanup"
)

// stageOrder gives each stage a total order so controllers can compare
// "have we passed this stage yet".
var stageOrder = map[Stage]int{
	StageInitializing:  0,
	StageSerializing:   1,
	StageQueuing:       2,
	StageTransferring:  3,
	StageDequeuing:     4,
	StageDeserializing: 5,
	StageCleanup:       6,
}

// Ordinal returns the stage's position in the fixed pipeline order. Unknown
// stages sort before everything else.
func (s Stage) Ordinal() int {
	if n, ok := stageOrder[s]; ok {
		return n
	}
	return -1
}

// Before reports whether s comes strictly earlier than other in the pipeline.
func (s Stage) Before(other Stage) bool {
	return s.Ordinal() < other.Ordinal()
}

// After reports whether s comes strictly later than other in the pipeline.
func (s Stage) After(other Stage) bool {
	return s.Ordinal() > other.Ordinal()
}

// Status is the per-stage lifecycle label.
type Status string

const (
	StatusPending   Status = "pending"
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusErrored   Status = "errored"
)

// Finished reports whether a status is a terminal one for the purposes of
// ProceedToAndWait.
func (s Status) Finished() bool {
	return s == StatusCompleted || s == StatusErrored
}
