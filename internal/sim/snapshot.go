package sim

import (
	"exchangesim/internal/book"
	"exchangesim/internal/common"
	"exchangesim/internal/risk"
)

// TraderView is one visible trader's position/P&L/risk metrics as
// reported on a MarketSnapshot.
type TraderView struct {
	TraderID common.TraderID
	Position int64
	Cash     int64
	PnL      int64
	VWAP     int64
	Toxicity float64
	VaR      float64
}

// MarketSnapshot is the immutable, value-copy view delivered to
// subscribers once per tick.
type MarketSnapshot struct {
	Tick       common.Tick
	Bids       []book.DepthLevel
	Asks       []book.DepthLevel
	BestBid    int64
	HasBestBid bool
	BestAsk    int64
	HasBestAsk bool
	Mid        int64
	HasMid     bool
	LastTrade  int64
	FairValue  int64
	Volatility float64

	Traders     []TraderView
	Leaderboard []TraderView // Traders sorted by PnL, descending

	RecentRiskEvents []risk.Event

	Fatal string // non-empty once the simulator is poisoned by an invariant violation
}
