// Package trader tracks per-trader state: position, cash, fill
// history, and the toxicity (adverse-selection) signal that bot views
// and snapshots report. It never executes or rejects orders —
// that is matching's and risk's job respectively.
package trader

import (
	"math"

	"exchangesim/internal/common"
)

// Fill is one immutable execution applied to a ledger. Ledgers never
// mutate a Fill once appended; correcting a mistaken fill means
// appending an offsetting one.
type Fill struct {
	Price        int64
	Quantity     int64
	Side         common.Side
	Tick         common.Tick
	Counterparty common.TraderID
	Fee          int64
}

func (f Fill) notional() int64 {
	return f.Price * f.Quantity
}

func (f Fill) signedQty() int64 {
	if f.Side == common.Bid {
		return f.Quantity
	}
	return -f.Quantity
}

// pnlContribution is this fill's profit at settlement, excluding fees.
func (f Fill) pnlContribution(settlement int64) int64 {
	if f.Side == common.Bid {
		return (settlement - f.Price) * f.Quantity
	}
	return (f.Price - settlement) * f.Quantity
}

// Ledger is one trader's (human or bot) mutable book of record.
// Position, cash and fees paid are maintained incrementally from
// Apply, and toxicity from UpdateToxicity; VWAP, average cost and the
// P&L metrics are computed on demand from the fill history.
type Ledger struct {
	ID           common.TraderID
	IsBot        bool
	position     int64
	cash         int64
	startingCash int64
	feesPaid     int64
	fills        []Fill

	toxicity  float64 // EWMA of the binary adverse-selection indicator
	toxicityA float64 // EWMA weight for new observations
}

// New constructs a ledger seeded with startingCash. toxicityAlpha
// defaults to 0.15 (the teacher's EWMA weight) when <= 0.
func New(id common.TraderID, isBot bool, startingCash int64, toxicityAlpha float64) *Ledger {
	if toxicityAlpha <= 0 {
		toxicityAlpha = 0.15
	}
	return &Ledger{ID: id, IsBot: isBot, cash: startingCash, startingCash: startingCash, toxicityA: toxicityAlpha}
}

// Position returns current signed position: positive long, negative
// short, zero flat.
func (l *Ledger) Position() int64 { return l.position }

// Cash is starting cash plus cumulative cash flow from trades and
// fees — not P&L.
func (l *Ledger) Cash() int64 { return l.cash }

// FeesPaid is the running total of fees deducted from cash.
func (l *Ledger) FeesPaid() int64 { return l.feesPaid }

// Fills returns a defensive copy of the fill history.
func (l *Ledger) Fills() []Fill {
	out := make([]Fill, len(l.fills))
	copy(out, l.fills)
	return out
}

// NumFills is the count of fills applied so far.
func (l *Ledger) NumFills() int { return len(l.fills) }

// Toxicity is the current EWMA of the binary adverse-selection
// indicator, in [0, 1]. Values near 1 mean this trader's taker fills
// have consistently been followed by the mid moving in the direction
// they traded (against the makers they hit); values near 0 mean the
// opposite.
func (l *Ledger) Toxicity() float64 { return l.toxicity }

// Apply records fill against the ledger: position, cash, and fees move
// immediately. This is the only way position, cash, fees and the fill
// history change after construction.
func (l *Ledger) Apply(f Fill) {
	if f.Side == common.Bid {
		l.position += f.Quantity
		l.cash -= f.notional()
	} else {
		l.position -= f.Quantity
		l.cash += f.notional()
	}
	l.cash -= f.Fee
	l.feesPaid += f.Fee
	l.fills = append(l.fills, f)
}

// UpdateToxicity folds one resolved fill's adverse-selection outcome
// into the EWMA. signedDeltaMid is (mid_after_next_tick - fill_price)
// carrying the aggressor's sign; the indicator is 1 when that product
// is positive (the mid moved in the direction this taker traded, i.e.
// against the maker that filled it). Resolution
// is deferred by one tick by the caller, which tracks the pending
// queue of not-yet-resolvable fills.
func (l *Ledger) UpdateToxicity(signedDeltaMid float64) {
	indicator := 0.0
	if signedDeltaMid > 0 {
		indicator = 1.0
	}
	l.toxicity = (1-l.toxicityA)*l.toxicity + l.toxicityA*indicator
}

// MarkToMarket is cash + position*mark: this trader's total equity at
// mark, including the starting bankroll. Use PnL, not this, for
// anything that should be zero for a trader who hasn't traded yet.
func (l *Ledger) MarkToMarket(mark int64) int64 {
	return l.cash + l.position*mark
}

// PnL is mark-to-market equity net of the starting bankroll — what a
// trader has actually made or lost. Risk gates and reported P&L must
// use this, not MarkToMarket, or a trader seeded with nonzero
// startingCash can never trip a loss- or margin-based limit.
func (l *Ledger) PnL(mark int64) int64 {
	return l.MarkToMarket(mark) - l.startingCash
}

// VWAP is the volume-weighted average fill price across the entire
// fill history, 0 if there are no fills.
func (l *Ledger) VWAP() int64 {
	var value, qty int64
	for _, f := range l.fills {
		value += f.notional()
		qty += f.Quantity
	}
	if qty == 0 {
		return 0
	}
	return value / qty
}

// averageCost is the average price of the fills on the side matching
// the current position's direction — the cost basis of the open
// position.
func (l *Ledger) averageCost() int64 {
	var buyValue, buyQty, sellValue, sellQty int64
	for _, f := range l.fills {
		if f.Side == common.Bid {
			buyValue += f.notional()
			buyQty += f.Quantity
		} else {
			sellValue += f.notional()
			sellQty += f.Quantity
		}
	}
	switch {
	case l.position > 0 && buyQty > 0:
		return buyValue / buyQty
	case l.position < 0 && sellQty > 0:
		return sellValue / sellQty
	default:
		return 0
	}
}

// RealizedPnL splits total P&L into its realized component, backing
// out the unrealized P&L still sitting in the open position at its
// average cost.
func (l *Ledger) RealizedPnL(mark int64) int64 {
	total := l.PnL(mark)
	unrealized := l.position * (mark - l.averageCost())
	return total - unrealized
}

// ExecutionQuality is a simplified Sharpe-style ratio over the last
// window fills' P&L contributions at mark — a risk-adjusted measure of
// how well this trader has been executing, used only for reporting.
func (l *Ledger) ExecutionQuality(mark int64, window int) float64 {
	if len(l.fills) < 2 {
		return 0
	}
	recent := l.fills
	if window > 0 && len(recent) > window {
		recent = recent[len(recent)-window:]
	}
	returns := make([]float64, len(recent))
	var sum float64
	for i, f := range recent {
		returns[i] = float64(f.pnlContribution(mark))
		sum += returns[i]
	}
	mean := sum / float64(len(returns))
	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))
	stdDev := math.Sqrt(variance)
	if stdDev == 0 {
		return 0
	}
	return mean / stdDev
}
