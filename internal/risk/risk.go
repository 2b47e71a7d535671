// Package risk gates orders before they reach the book and liquidates
// traders after a tick closes. Pre-trade checks never mutate the book
// or the ledger; their only side effect is appending blocked orders to
// the manager's risk event ring. Post-tick checks may emit a deferred
// flatten directive
// but never mutate the book directly — the simulator applies it at
// the start of the next tick, keeping one match per tick.
package risk

import (
	"fmt"
	"math"

	"exchangesim/internal/book"
	"exchangesim/internal/common"
	"exchangesim/internal/trader"
)

// Limits bundles the per-session risk configuration. All fields are
// read-only after construction.
type Limits struct {
	MaxOrderQty        int64
	PositionLimit      int64
	ConcentrationFrac  float64
	LossLimit          int64
	MarginThreshold    int64
	MarginPenaltyTicks int64
	MinTickSize        int64 // price granularity MarginPenaltyTicks is denominated in; <= 0 defaults to 1
	VarK               float64
}

func (l Limits) tickSize() int64 {
	if l.MinTickSize <= 0 {
		return 1
	}
	return l.MinTickSize
}

// Event is one audited risk decision — a block or a liquidation —
// independent of the fatal invariant-violation path.
type Event struct {
	Tick     common.Tick
	TraderID common.TraderID
	Kind     error
	Action   string // "blocked" or "liquidated"
	Details  string
}

// Manager evaluates Limits against live ledgers and book state. It
// keeps a bounded ring of recent Events for snapshot reporting.
type Manager struct {
	limits    Limits
	events    []Event
	maxEvents int
}

// New constructs a Manager. maxEvents bounds the retained event ring;
// 0 defaults to 256.
func New(limits Limits, maxEvents int) *Manager {
	if maxEvents <= 0 {
		maxEvents = 256
	}
	return &Manager{limits: limits, maxEvents: maxEvents}
}

func (m *Manager) record(e Event) {
	m.events = append(m.events, e)
	if len(m.events) > m.maxEvents {
		m.events = m.events[len(m.events)-m.maxEvents:]
	}
}

// RecentEvents returns a copy of the retained risk event ring, oldest
// first.
func (m *Manager) RecentEvents() []Event {
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// CheckOrder runs the fixed-order pre-trade checks (§4.4): size limit,
// position limit, concentration, loss circuit breaker. The first
// failure wins and no later check runs.
func (m *Manager) CheckOrder(now common.Tick, led *trader.Ledger, side common.Side, qty int64, aggressive bool, b *book.Book, mark int64) error {
	if qty > m.limits.MaxOrderQty {
		m.record(Event{Tick: now, TraderID: led.ID, Kind: common.ErrSizeLimitExceeded, Action: "blocked",
			Details: fmt.Sprintf("qty %d > max_order_qty %d", qty, m.limits.MaxOrderQty)})
		return common.ErrSizeLimitExceeded
	}

	signed := qty
	if side == common.Ask {
		signed = -qty
	}
	newPosition := led.Position() + signed
	if abs64(newPosition) > m.limits.PositionLimit {
		m.record(Event{Tick: now, TraderID: led.ID, Kind: common.ErrPositionLimitExceeded, Action: "blocked",
			Details: fmt.Sprintf("would-be position %d exceeds limit %d", newPosition, m.limits.PositionLimit)})
		return common.ErrPositionLimitExceeded
	}

	if aggressive && m.limits.ConcentrationFrac > 0 {
		oppositeDepth := b.TotalQty(side.Opposite())
		if float64(qty) > m.limits.ConcentrationFrac*float64(oppositeDepth) {
			m.record(Event{Tick: now, TraderID: led.ID, Kind: common.ErrConcentrationTooHigh, Action: "blocked",
				Details: fmt.Sprintf("qty %d exceeds %.2f of opposite depth %d", qty, m.limits.ConcentrationFrac, oppositeDepth)})
			return common.ErrConcentrationTooHigh
		}
	}

	if pnl := led.PnL(mark); pnl < m.limits.LossLimit {
		m.record(Event{Tick: now, TraderID: led.ID, Kind: common.ErrLossCircuitBreaker, Action: "blocked",
			Details: fmt.Sprintf("pnl %d below loss_limit %d", pnl, m.limits.LossLimit)})
		return common.ErrLossCircuitBreaker
	}

	return nil
}

// FlattenDirective is a deferred forced-liquidation order the
// simulator injects at the start of the next tick.
type FlattenDirective struct {
	TraderID common.TraderID
	Side     common.Side
	Qty      int64
	Price    int64
}

// PostTickCheck marks led to market against mid; if P&L has fallen
// below the margin threshold it returns a FlattenDirective for exactly
// -position at a penalty price beyond the opposite best. Returns nil
// if no liquidation is warranted.
func (m *Manager) PostTickCheck(now common.Tick, led *trader.Ledger, b *book.Book, mid int64) *FlattenDirective {
	pnl := led.PnL(mid)
	if pnl >= m.limits.MarginThreshold {
		return nil
	}
	position := led.Position()
	if position == 0 {
		return nil
	}

	penalty := m.limits.MarginPenaltyTicks * m.limits.tickSize()

	var side common.Side
	var penaltyBase int64
	var ok bool
	if position > 0 {
		side = common.Ask
		penaltyBase, ok = b.BestBid()
		if !ok {
			penaltyBase = mid
		}
		penaltyBase -= penalty
	} else {
		side = common.Bid
		penaltyBase, ok = b.BestAsk()
		if !ok {
			penaltyBase = mid
		}
		penaltyBase += penalty
	}

	m.record(Event{Tick: now, TraderID: led.ID, Kind: common.ErrMarginCallForced, Action: "liquidated",
		Details: fmt.Sprintf("pnl %d below margin_threshold %d, flattening position %d", pnl, m.limits.MarginThreshold, position)})

	return &FlattenDirective{TraderID: led.ID, Side: side, Qty: abs64(position), Price: penaltyBase}
}

// VaR is a simple parametric value-at-risk estimate: k · stddev(recent
// mid returns) · |position|.
func VaR(k float64, recentMidReturns []float64, position int64) float64 {
	if len(recentMidReturns) == 0 {
		return 0
	}
	var mean float64
	for _, r := range recentMidReturns {
		mean += r
	}
	mean /= float64(len(recentMidReturns))
	var variance float64
	for _, r := range recentMidReturns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(recentMidReturns))
	return k * math.Sqrt(variance) * float64(abs64(position))
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
