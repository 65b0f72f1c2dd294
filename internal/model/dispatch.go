package model

import "time"

// JobTerminalState is the terminal outcome of a DispatchJob (spec §3).
type JobTerminalState string

const (
	JobPending          JobTerminalState = ""
	JobDelivered        JobTerminalState = "delivered"
	JobPermanentlyFailed JobTerminalState = "permanently-failed"
	JobCancelled        JobTerminalState = "cancelled"
	JobDeferred         JobTerminalState = "deferred"
)

// DispatchJob is a unit of work for a transport worker (spec §3).
type DispatchJob struct {
	ID       JobID
	Lead     *Lead
	Decision RoutingDecision
	AttemptCount  int
	NextAttemptAt time.Time
	LastError     string
	Terminal      JobTerminalState

	// SLADeadline is used for priority derivation (spec §4.5:
	// "premium urgent first").
	SLADeadline time.Time
	Tier        Tier

	// ExternalTransactionID is populated on success if the transport
	// response yields one (spec §3).
	ExternalTransactionID string
}

// Priority derives the dispatch queue priority: premium leads with
// the least SLA time remaining sort first (spec §4.5).
func (j *DispatchJob) Priority(now time.Time) int64 {
	// Smaller remaining time => higher priority => larger priority
	// number when inverted against a max horizon. The tier weight
	// exceeds the whole urgency range, so tier always dominates.
	const maxHorizon = int64(24 * time.Hour)
	tierWeight := int64(j.Tier.Rank()) * (maxHorizon + 1)
	remaining := j.SLADeadline.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	urgency := maxHorizon - int64(remaining)
	if urgency < 0 {
		urgency = 0
	}
	return tierWeight + urgency
}
