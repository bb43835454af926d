package domain

import "errors"

var (
	// ErrInsufficientFunds rejects a buy whose total cost exceeds cash.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInsufficientPosition rejects a sell larger than the held quantity.
	ErrInsufficientPosition = errors.New("insufficient position")
	// ErrAlgorithmExecution marks an isolated per-algorithm failure; the
	// executor degrades the algorithm to HOLD for the tick.
	ErrAlgorithmExecution = errors.New("algorithm execution failed")
	// ErrDataUnavailable marks a tick skipped for lack of market data.
	ErrDataUnavailable = errors.New("market data unavailable")
	// ErrProposalTimeout aborts an evolution cycle when the oracle does
	// not answer within its deadline.
	ErrProposalTimeout = errors.New("proposal timed out")
	// ErrProposalValidation marks a candidate descriptor that failed
	// family or parameter validation.
	ErrProposalValidation = errors.New("proposal validation failed")
	// ErrPoolIntegrity marks an attempt to mutate a retired or unknown
	// descriptor. Fatal to the evolution cycle only.
	ErrPoolIntegrity = errors.New("pool integrity violation")
	// ErrCycleInProgress guards against overlapping evolution cycles.
	ErrCycleInProgress = errors.New("evolution cycle already in progress")
	// ErrNotFound is the generic missing-row error for stores and caches.
	ErrNotFound = errors.New("not found")
)
