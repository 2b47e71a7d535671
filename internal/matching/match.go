// Package matching implements price-time-priority crossing over a
// book.Book: maker/taker attribution by (timestamp, order_id), trade
// at the maker's resting price, and deterministic self-trade
// prevention.
package matching

import (
	"exchangesim/internal/book"
	"exchangesim/internal/common"
)

// MatchEvent is one fill produced by a single call to Match. Treat it
// as read-only; downstream consumers (trader ledgers, risk, journal)
// never mutate a published event.
type MatchEvent struct {
	MatchID   uint64
	Tick      common.Tick
	BuyerID   common.TraderID
	SellerID  common.TraderID
	Price     int64
	Quantity  int64
	TakerID   common.TraderID
	BuyOrder  common.OrderID
	SellOrder common.OrderID
}

// Engine runs the crossing loop against one book. It is not
// concurrency-safe; the simulator's single tick thread is its only
// caller.
type Engine struct {
	book     *book.Book
	matchSeq uint64
}

// New wraps b for matching. b must outlive the Engine.
func New(b *book.Book) *Engine {
	return &Engine{book: b}
}

// Match sweeps crossing price levels until the spread reopens or one
// side empties, returning every fill produced. Self-trades are
// resolved by silently removing the newer (taker) order instead of
// emitting an event.
func (e *Engine) Match(now common.Tick) []MatchEvent {
	var events []MatchEvent
	for {
		bidPrice, bidOk := e.book.BestBid()
		askPrice, askOk := e.book.BestAsk()
		if !bidOk || !askOk || bidPrice < askPrice {
			break
		}

		bidOrder, ok := e.book.FrontOf(common.Bid, bidPrice)
		if !ok {
			continue
		}
		askOrder, ok := e.book.FrontOf(common.Ask, askPrice)
		if !ok {
			continue
		}

		bidKey := bidOrder.Key()
		askKey := askOrder.Key()

		var executionPrice int64
		var takerID common.TraderID
		bidIsMaker := bidKey.Less(askKey) || bidKey == askKey
		if bidIsMaker {
			executionPrice = bidOrder.Price
			takerID = askOrder.TraderID
		} else {
			executionPrice = askOrder.Price
			takerID = bidOrder.TraderID
		}

		if bidOrder.TraderID == askOrder.TraderID {
			// Self-trade prevention: drop the newer (taker) order and
			// keep sweeping. No event is produced for this pair.
			if bidIsMaker {
				e.book.Cancel(askOrder.ID)
			} else {
				e.book.Cancel(bidOrder.ID)
			}
			continue
		}

		matchQty := min(bidOrder.RemainingQty, askOrder.RemainingQty)
		bidOrder.RemainingQty -= matchQty
		askOrder.RemainingQty -= matchQty

		e.matchSeq++
		events = append(events, MatchEvent{
			MatchID:   e.matchSeq,
			Tick:      now,
			BuyerID:   bidOrder.TraderID,
			SellerID:  askOrder.TraderID,
			Price:     executionPrice,
			Quantity:  matchQty,
			TakerID:   takerID,
			BuyOrder:  bidOrder.ID,
			SellOrder: askOrder.ID,
		})

		if bidOrder.RemainingQty == 0 {
			e.book.Cancel(bidOrder.ID)
		}
		if askOrder.RemainingQty == 0 {
			e.book.Cancel(askOrder.ID)
		}
	}
	return events
}
