package decision

import (
	"fmt"
	"time"

	"solana-pool-sniper/internal/domain"
)

// Evaluator evaluates admission criteria.
type Evaluator struct {
	policy Policy
	now    func() time.Time
}

// NewEvaluator creates a new admission evaluator. A nil clock uses time.Now.
func NewEvaluator(policy Policy, now func() time.Time) *Evaluator {
	if now == nil {
		now = time.Now
	}
	return &Evaluator{policy: policy, now: now}
}

// Evaluate produces an EligibilityVerdict from a pool state and its market metrics.
// ADMIT if ALL criteria pass. REJECT lists every failed criterion in fixed order.
// Performs no I/O.
func (e *Evaluator) Evaluate(state domain.PoolState, metrics domain.MarketMetrics) domain.EligibilityVerdict {
	now := e.now()
	criteria := e.evaluateCriteria(state, metrics, now)

	var reasons []domain.ReasonCode
	for _, c := range criteria {
		if !c.Pass {
			reasons = append(reasons, c.Reason)
		}
	}

	decision := domain.DecisionAdmit
	if len(reasons) > 0 {
		decision = domain.DecisionReject
	}

	return domain.EligibilityVerdict{
		TokenMint:      state.TokenMint,
		LastUpdateTime: state.LastUpdateTime,
		Decision:       decision,
		Reasons:        reasons,
		Metrics:        metrics,
		Criteria:       criteria,
		EvaluatedAt:    now.Unix(),
	}
}

// evaluateCriteria evaluates the 4 admission criteria in reporting order.
func (e *Evaluator) evaluateCriteria(state domain.PoolState, metrics domain.MarketMetrics, now time.Time) []domain.CriterionResult {
	criteria := make([]domain.CriterionResult, 4)

	// 1. Holders >= MinHolders
	criteria[0] = domain.CriterionResult{
		Reason:    domain.ReasonInsufficientHolders,
		Threshold: fmt.Sprintf(">= %d", e.policy.MinHolders),
		Actual:    fmt.Sprintf("%d", metrics.HoldersCount),
		Pass:      metrics.HoldersCount >= e.policy.MinHolders,
	}

	// 2. Liquidity >= MinimumLiquiditySOL × 1e9
	minLamports := e.policy.MinimumLiquidityLamports()
	criteria[1] = domain.CriterionResult{
		Reason:    domain.ReasonInsufficientLiquidity,
		Threshold: fmt.Sprintf(">= %d lamports", minLamports),
		Actual:    fmt.Sprintf("%d lamports", metrics.TotalLiquidityLamports),
		Pass:      metrics.TotalLiquidityLamports >= minLamports,
	}

	// 3. Decimals <= MaxTokenDecimals
	criteria[2] = domain.CriterionResult{
		Reason:    domain.ReasonUnsupportedDecimals,
		Threshold: fmt.Sprintf("<= %d", e.policy.MaxTokenDecimals),
		Actual:    fmt.Sprintf("%d", metrics.TokenDecimals),
		Pass:      metrics.TokenDecimals <= e.policy.MaxTokenDecimals,
	}

	// 4. Age <= NewPoolWindow. Timestamps ahead of the local clock count as fresh.
	age := now.Unix() - int64(state.LastUpdateTime)
	window := int64(e.policy.NewPoolWindow / time.Second)
	criteria[3] = domain.CriterionResult{
		Reason:    domain.ReasonStalePool,
		Threshold: fmt.Sprintf("age <= %ds", window),
		Actual:    fmt.Sprintf("age %ds", age),
		Pass:      age <= window,
	}

	return criteria
}
