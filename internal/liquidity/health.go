package liquidity

import (
	"trade_engine/internal/amm"
	"trade_engine/internal/core"
)

// Health summarizes the engine's liquidity position across venues. All
// rates are expressed in basis points of total liquidity.
type Health struct {
	// TotalValue is the summed value of all tracked pool balances.
	TotalValue uint64
	// UtilizationBps is the share of total value sitting in pools that
	// have a target ratio, against value parked elsewhere.
	UtilizationBps uint64
	// ImbalanceBps is the worst single-pool deviation from target.
	ImbalanceBps uint64
	// RiskScore blends imbalance, utilization and market volatility.
	RiskScore uint64
	// NeedsRebalance is set when RiskScore exceeds the caller's threshold.
	NeedsRebalance bool
}

// Assess measures balances against targets and returns a Health snapshot.
// volatilityBps is the caller's market-instability signal; values above
// BpsDenominator are clamped. The risk score gives imbalance double weight
// since it is the only component a rebalance can actually fix:
//
//	risk = (2*imbalance + utilization + volatility) / 4
//
// NeedsRebalance raises when the score is strictly above riskThresholdBps,
// so a zero threshold flags any nonzero risk.
func Assess(balances []PoolBalance, targets []core.LiquidityRatio, volatilityBps, riskThresholdBps uint64) (Health, error) {
	imbalance, err := Imbalance(balances, targets)
	if err != nil {
		return Health{}, err
	}

	targeted := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		targeted[poolKey(t.Venue, t.Pool)] = struct{}{}
	}

	var total, deployed uint64
	for _, b := range balances {
		t, err := checkedTotal(total, b.Current)
		if err != nil {
			return Health{}, err
		}
		total = t
		if _, ok := targeted[poolKey(b.Venue, b.Pool)]; ok {
			d, err := checkedTotal(deployed, b.Current)
			if err != nil {
				return Health{}, err
			}
			deployed = d
		}
	}

	h := Health{TotalValue: total, ImbalanceBps: imbalance}
	if total == 0 {
		// Nothing deployed means nothing at risk.
		return h, nil
	}

	util, err := amm.MulDiv(deployed, core.BpsDenominator, total)
	if err != nil {
		return Health{}, err
	}
	h.UtilizationBps = util

	if volatilityBps > core.BpsDenominator {
		volatilityBps = core.BpsDenominator
	}
	h.RiskScore = (2*imbalance + util + volatilityBps) / 4
	h.NeedsRebalance = h.RiskScore > riskThresholdBps
	return h, nil
}
