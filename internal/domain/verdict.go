package domain

// Decision is the outcome of an eligibility evaluation.
type Decision string

const (
	DecisionAdmit  Decision = "ADMIT"
	DecisionReject Decision = "REJECT"
)

// ReasonCode names a failed admission criterion.
type ReasonCode string

// Reason codes, listed in reporting order.
const (
	ReasonInsufficientHolders   ReasonCode = "INSUFFICIENT_HOLDERS"
	ReasonInsufficientLiquidity ReasonCode = "INSUFFICIENT_LIQUIDITY"
	ReasonUnsupportedDecimals   ReasonCode = "UNSUPPORTED_DECIMALS"
	ReasonStalePool             ReasonCode = "STALE_POOL"
)

// CriterionResult represents pass/fail for one criterion.
type CriterionResult struct {
	Reason    ReasonCode
	Threshold string
	Actual    string
	Pass      bool
}

// EligibilityVerdict is the admission decision for one pool state.
// Decision is Admit iff Reasons is empty.
type EligibilityVerdict struct {
	TokenMint      string
	LastUpdateTime uint32
	Decision       Decision
	Reasons        []ReasonCode
	Metrics        MarketMetrics
	Criteria       []CriterionResult
	EvaluatedAt    int64 // unix seconds
}

// Admitted reports whether the verdict admits the pool.
func (v EligibilityVerdict) Admitted() bool {
	return v.Decision == DecisionAdmit
}
