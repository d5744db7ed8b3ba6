package gating

// CostEstimate compares the gated pipeline against always calling the
// expensive reasoner, for a given observed escalation rate.
type CostEstimate struct {
	TotalInferences     int     `json:"total_inferences"`
	EscalationRate      float64 `json:"escalation_rate"`
	CheapInferences     float64 `json:"cheap_inferences"`
	ExpensiveInferences float64 `json:"expensive_inferences"`
	GatedCostUSD        float64 `json:"gated_cost_usd"`
	AlwaysExpensiveUSD  float64 `json:"always_expensive_cost_usd"`
	SavingsUSD          float64 `json:"savings_usd"`
	SavingsPct          float64 `json:"savings_pct"`
}

// EstimateSavings computes the cost picture for totalInferences requests at
// the given escalation rate. Costs are per 1000 inferences.
func EstimateSavings(totalInferences int, escalationRate, cheapCostPer1K, expensiveCostPer1K float64) CostEstimate {
	total := float64(totalInferences)
	cheap := total * (1 - escalationRate)
	expensive := total * escalationRate

	gated := cheap*cheapCostPer1K/1000 + expensive*expensiveCostPer1K/1000
	alwaysExpensive := total * expensiveCostPer1K / 1000

	est := CostEstimate{
		TotalInferences:     totalInferences,
		EscalationRate:      escalationRate,
		CheapInferences:     cheap,
		ExpensiveInferences: expensive,
		GatedCostUSD:        gated,
		AlwaysExpensiveUSD:  alwaysExpensive,
		SavingsUSD:          alwaysExpensive - gated,
	}
	if alwaysExpensive > 0 {
		est.SavingsPct = est.SavingsUSD / alwaysExpensive * 100
	}
	return est
}
