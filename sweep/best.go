package sweep

import "github.com/evdnx/trendsweep/backtest"

// Best keeps the winning result of a search. A strictly greater profit
// replaces the incumbent and equal profits keep the lower index, so the
// winner does not depend on the order results arrive in.
type Best struct {
	Index  int
	Result backtest.Result
	set    bool
}

// Offer considers r, produced by the cell at idx. It reports whether r
// became the new best.
func (b *Best) Offer(idx int, r backtest.Result) bool {
	if b.set {
		switch {
		case r.Profit > b.Result.Profit:
		case r.Profit == b.Result.Profit && idx < b.Index:
		default:
			return false
		}
	}
	b.Index, b.Result, b.set = idx, r, true
	return true
}

// Found reports whether any result was offered.
func (b *Best) Found() bool { return b.set }
