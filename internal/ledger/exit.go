// internal/ledger/exit.go
package ledger

// TakeProfitTarget returns the price at which take-profit triggers.
func TakeProfitTarget(buyPrice, tpPct float64) float64 {
	return buyPrice * (1 + tpPct/100)
}

// StopLossTarget returns the price at which stop-loss triggers.
func StopLossTarget(buyPrice, slPct float64) float64 {
	return buyPrice * (1 - slPct/100)
}

// EvaluateExit decides whether a position should be closed at curPrice.
// The take-profit comparison is >= and the stop-loss comparison is <=.
func EvaluateExit(buyPrice, curPrice, tpPct, slPct float64) (ExitReason, bool) {
	if buyPrice <= 0 || curPrice <= 0 {
		return "", false
	}
	// 1e-12 absorbs float noise so that 1.0*1.3 still triggers at 1.30.
	const eps = 1e-12
	if curPrice >= TakeProfitTarget(buyPrice, tpPct)-eps*buyPrice {
		return ReasonTakeProfit, true
	}
	if curPrice <= StopLossTarget(buyPrice, slPct)+eps*buyPrice {
		return ReasonStopLoss, true
	}
	return "", false
}
