package model

import "time"

// RunModeKind selects where candidates come from.
type RunModeKind string

const (
	ModeHunt  RunModeKind = "hunt"
	ModeWatch RunModeKind = "watch"
)

// Valid reports whether m is hunt or watch.
func (m RunModeKind) Valid() bool { return m == ModeHunt || m == ModeWatch }

// RunStatus is the lifecycle state of a SignalRun.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// SignalRunStats are counters accumulated across one run.
type SignalRunStats struct {
	QueriesExecuted       int     `json:"queriesExecuted"`
	CandidatesFound       int     `json:"candidatesFound"`
	CandidatesAfterDedup  int     `json:"candidatesAfterDedup"`
	EvidenceChunksFetched int     `json:"evidenceChunksFetched"`
	SignalEvaluations     int     `json:"signalEvaluations"`
	LeadsGenerated        int     `json:"leadsGenerated"`
	LeadsPassedGate       int     `json:"leadsPassedGate"`
	InsufficientEvidence  int     `json:"insufficientEvidence"`
	Disqualified          int     `json:"disqualified"`
	DuplicatesSkipped     int     `json:"duplicatesSkipped"`
	InputTokens           int64   `json:"inputTokens"`
	OutputTokens          int64   `json:"outputTokens"`
	PagesFetched          int     `json:"pagesFetched"`
	EstimatedCostUSD      float64 `json:"estimatedCostUsd"`
}

// UnitError is a non-fatal failure scoped to one unit of work.
type UnitError struct {
	Kind    string `json:"kind"`
	Unit    string `json:"unit"`
	Message string `json:"message"`
}

// SignalRun is the lifecycle record of one pipeline execution.
type SignalRun struct {
	ID         string         `json:"id"`
	UserID     string         `json:"userId"`
	Mode       RunModeKind    `json:"mode"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt *time.Time     `json:"finishedAt,omitempty"`
	Status     RunStatus      `json:"status"`
	Stats      SignalRunStats `json:"stats"`
	Errors     []UnitError    `json:"errors,omitempty"`
	Error      string         `json:"error,omitempty"`
}
