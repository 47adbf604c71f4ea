package domain

import "time"

// VerdictRecord is an audit row for one eligibility evaluation.
type VerdictRecord struct {
	VerdictID      string
	Verdict        EligibilityVerdict
	PoolAccount    string
	ObservedAtSlot int64
	RecordedAt     time.Time
}

// ExecutionRecord is an audit row for one terminal execution result.
type ExecutionRecord struct {
	Result     TradeExecutionResult
	UserID     string
	RecordedAt time.Time
}
