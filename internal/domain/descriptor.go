package domain

import "time"

// AlgorithmStatus is the lifecycle state of a pool entry.
type AlgorithmStatus string

const (
	AlgorithmStatusActive  AlgorithmStatus = "ACTIVE"
	AlgorithmStatusRetired AlgorithmStatus = "RETIRED"
)

// AlgorithmDescriptor is the structured, non-executable representation of an
// algorithm instance: a registered family name plus a validated parameter
// set. Descriptors are never treated as code.
type AlgorithmDescriptor struct {
	ID     string
	Name   string
	Family string
	Params map[string]any
	// Generation is 0 for seed algorithms and parent generation + 1 for
	// evolved ones.
	Generation int
	// ParentIDs holds zero, one (mutation), or two (crossover) ancestors.
	ParentIDs []string
	Status    AlgorithmStatus
	CreatedAt time.Time
	RetiredAt *time.Time
}

// CandidateDescriptor is a proposed descriptor returned by the strategy
// oracle. Rationale is audit-only free text and is never executed.
type CandidateDescriptor struct {
	Name      string
	Family    string
	Params    map[string]any
	ParentIDs []string
	Rationale string
}

// MarketSummary condenses market conditions over the evaluation window for
// inclusion in a proposal request.
type MarketSummary struct {
	WindowStart   time.Time
	WindowEnd     time.Time
	Symbols       []string
	AvgSentiment  float64
	ReturnPct     map[string]float64
	VolatilityPct map[string]float64
}

// ProposalRequest is the payload sent to the strategy-generation oracle.
type ProposalRequest struct {
	CycleID    string
	Selected   []AlgorithmDescriptor
	Metrics    []PerformanceMetricSnapshot
	Conditions MarketSummary
}

// ProposalResponse is the ordered candidate batch returned by the oracle.
type ProposalResponse struct {
	Candidates []CandidateDescriptor
}

// EvolutionCycleRecord is the append-only audit record of one evolution
// cycle, sufficient to reconstruct the full genealogy decision.
type EvolutionCycleRecord struct {
	CycleID     string
	Timestamp   time.Time
	SelectedIDs []string
	Proposed    []CandidateDescriptor
	AcceptedIDs []string
	RetiredIDs  []string
	// Aborted is set with a reason when the cycle ended without mutating
	// the pool (oracle timeout, validation wipeout).
	Aborted bool
	Reason  string
}
