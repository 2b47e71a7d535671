// Package book implements the central limit order book: price-level
// FIFO storage, the order_id/trader_id indices, and expiry. It mirrors
// the shape of the teacher's tidwall/btree-backed OrderBook but keys
// price levels on integer ticks and tracks the two indices the matching
// engine and risk manager depend on.
package book

import (
	"fmt"

	"github.com/tidwall/btree"

	"exchangesim/internal/common"
)

// location is the index entry for a resting order: which side, which
// price level, and who owns it.
type location struct {
	side     common.Side
	price    int64
	traderID common.TraderID
}

type levels = btree.BTreeG[*priceLevel]

// Book is the two-sided CLOB for a single instrument. It owns the only
// mutable state the matching engine touches; every other component
// reads committed snapshots.
type Book struct {
	minTickSize int64

	bids *levels // ordered highest price first
	asks *levels // ordered lowest price first

	byID     map[common.OrderID]location
	byTrader map[common.TraderID]map[common.OrderID]struct{}
}

// New constructs an empty book snapping all prices to tickSize.
func New(tickSize int64) *Book {
	if tickSize <= 0 {
		tickSize = 1
	}
	bids := btree.NewBTreeG(func(a, b *priceLevel) bool { return a.price > b.price })
	asks := btree.NewBTreeG(func(a, b *priceLevel) bool { return a.price < b.price })
	return &Book{
		minTickSize: tickSize,
		bids:        bids,
		asks:        asks,
		byID:        make(map[common.OrderID]location),
		byTrader:    make(map[common.TraderID]map[common.OrderID]struct{}),
	}
}

// SnapPrice rounds price to the nearest multiple of the book's tick
// size. Callers are expected to snap before constructing an Order.
func (b *Book) SnapPrice(price int64) int64 {
	t := b.minTickSize
	ticks := price / t
	if rem := price % t; rem*2 >= t {
		ticks++
	}
	return ticks * t
}

func (b *Book) sideLevels(side common.Side) *levels {
	if side == common.Bid {
		return b.bids
	}
	return b.asks
}

// Insert places order on the tail of its (side, price) level. The order
// must not already be present and must have remaining_qty ==
// original_qty (fresh order, never partially filled before insertion).
func (b *Book) Insert(o *common.Order) error {
	if o.Price <= 0 || o.Price%b.minTickSize != 0 {
		return fmt.Errorf("%w: price %d not a multiple of tick size %d", common.ErrBadPrice, o.Price, b.minTickSize)
	}
	if o.RemainingQty <= 0 || o.RemainingQty != o.OriginalQty {
		return fmt.Errorf("%w: qty %d", common.ErrBadQty, o.RemainingQty)
	}
	if _, exists := b.byID[o.ID]; exists {
		return fmt.Errorf("%w: order %d", common.ErrDuplicateID, o.ID)
	}

	lv := b.sideLevels(o.Side)
	key := &priceLevel{price: o.Price}
	level, ok := lv.GetMut(key)
	if !ok {
		level = &priceLevel{price: o.Price}
		lv.Set(level)
	}
	level.push(o)

	b.byID[o.ID] = location{side: o.Side, price: o.Price, traderID: o.TraderID}
	set, ok := b.byTrader[o.TraderID]
	if !ok {
		set = make(map[common.OrderID]struct{})
		b.byTrader[o.TraderID] = set
	}
	set[o.ID] = struct{}{}
	return nil
}

// Cancel removes order_id from the book. Returns ErrUnknownOrder if it
// is not resting.
func (b *Book) Cancel(id common.OrderID) (*common.Order, error) {
	loc, ok := b.byID[id]
	if !ok {
		return nil, common.ErrUnknownOrder
	}
	o := b.removeFromLevel(loc, id)
	if o == nil {
		return nil, common.ErrUnknownOrder
	}
	b.dropIndex(id, loc)
	return o, nil
}

// CancelAll cancels every order resting for traderID, returning how
// many were removed.
func (b *Book) CancelAll(traderID common.TraderID) int {
	ids, ok := b.byTrader[traderID]
	if !ok {
		return 0
	}
	victims := make([]common.OrderID, 0, len(ids))
	for id := range ids {
		victims = append(victims, id)
	}
	n := 0
	for _, id := range victims {
		if _, err := b.Cancel(id); err == nil {
			n++
		}
	}
	return n
}

// Expire removes every resting GTC order whose expires_at has passed.
// IOC orders are never touched here — the simulator cleans those up
// within the same tick (§4.3 step 8).
func (b *Book) Expire(now common.Tick) int {
	n := 0
	n += b.expireSide(b.bids, now)
	n += b.expireSide(b.asks, now)
	return n
}

func (b *Book) expireSide(lv *levels, now common.Tick) int {
	var stale []*common.Order
	lv.Scan(func(level *priceLevel) bool {
		for _, o := range level.orders {
			if o.TimeInForce == common.GTC && o.ExpiresAt <= now {
				stale = append(stale, o)
			}
		}
		return true
	})
	for _, o := range stale {
		loc, ok := b.byID[o.ID]
		if !ok {
			continue
		}
		if b.removeFromLevel(loc, o.ID) != nil {
			b.dropIndex(o.ID, loc)
		}
	}
	return len(stale)
}

// removeFromLevel deletes order_id from its (side, price) level,
// dropping the level itself if it becomes empty. Returns the removed
// order, or nil if it was not found (stale index entry).
func (b *Book) removeFromLevel(loc location, id common.OrderID) *common.Order {
	lv := b.sideLevels(loc.side)
	level, ok := lv.GetMut(&priceLevel{price: loc.price})
	if !ok {
		return nil
	}
	for i, o := range level.orders {
		if o.ID == id {
			removed := o
			level.removeAt(i)
			if level.empty() {
				lv.Delete(level)
			}
			return removed
		}
	}
	return nil
}

func (b *Book) dropIndex(id common.OrderID, loc location) {
	delete(b.byID, id)
	if set, ok := b.byTrader[loc.traderID]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(b.byTrader, loc.traderID)
		}
	}
}

// BestBid returns the highest resting bid price, if any.
func (b *Book) BestBid() (int64, bool) {
	lv, ok := b.bids.Min()
	if !ok {
		return 0, false
	}
	return lv.price, true
}

// BestAsk returns the lowest resting ask price, if any.
func (b *Book) BestAsk() (int64, bool) {
	lv, ok := b.asks.Min()
	if !ok {
		return 0, false
	}
	return lv.price, true
}

// Mid returns the arithmetic mean of best bid and best ask, if both
// sides are populated.
func (b *Book) Mid() (int64, bool) {
	bb, ok1 := b.BestBid()
	ba, ok2 := b.BestAsk()
	if !ok1 || !ok2 {
		return 0, false
	}
	return (bb + ba) / 2, true
}

// DepthLevel is one (price, aggregate_qty) row of a depth snapshot.
type DepthLevel struct {
	Price int64
	Qty   int64
}

// Depth returns up to n populated levels per side: descending for
// bids, ascending for asks.
func (b *Book) Depth(n int) (bids, asks []DepthLevel) {
	bids = collectDepth(b.bids, n)
	asks = collectDepth(b.asks, n)
	return
}

func collectDepth(lv *levels, n int) []DepthLevel {
	out := make([]DepthLevel, 0, n)
	lv.Scan(func(level *priceLevel) bool {
		if len(out) >= n {
			return false
		}
		out = append(out, DepthLevel{Price: level.price, Qty: level.totalQty()})
		return true
	})
	return out
}

// TotalQty sums remaining quantity resting on one side of the book —
// used by the risk manager's concentration check.
func (b *Book) TotalQty(side common.Side) int64 {
	var sum int64
	b.sideLevels(side).Scan(func(level *priceLevel) bool {
		sum += level.totalQty()
		return true
	})
	return sum
}

// OrdersByTrader returns every order currently resting for traderID,
// ordered by (timestamp, order_id) — the trader-to-order lookup the
// design notes require instead of a back-pointer from Order.
func (b *Book) OrdersByTrader(traderID common.TraderID) []*common.Order {
	ids, ok := b.byTrader[traderID]
	if !ok {
		return nil
	}
	out := make([]*common.Order, 0, len(ids))
	for id := range ids {
		loc, ok := b.byID[id]
		if !ok {
			continue
		}
		lv := b.sideLevels(loc.side)
		level, ok := lv.GetMut(&priceLevel{price: loc.price})
		if !ok {
			continue
		}
		for _, o := range level.orders {
			if o.ID == id {
				out = append(out, o)
				break
			}
		}
	}
	sortOrders(out)
	return out
}

func sortOrders(os []*common.Order) {
	for i := 1; i < len(os); i++ {
		for j := i; j > 0 && os[j].Key().Less(os[j-1].Key()); j-- {
			os[j], os[j-1] = os[j-1], os[j]
		}
	}
}

// FrontOf exposes the resting head order on a side/price, used by the
// matching engine to peek without mutating the book.
func (b *Book) FrontOf(side common.Side, price int64) (*common.Order, bool) {
	lv := b.sideLevels(side)
	level, ok := lv.GetMut(&priceLevel{price: price})
	if !ok || level.empty() {
		return nil, false
	}
	return level.orders[0], true
}

// Consistent checks invariant P1: by_id covers exactly the orders
// present in bids ∪ asks, and no empty level keys exist. It is O(L·O);
// the simulator runs it at the end of every tick.
func (b *Book) Consistent() error {
	seen := make(map[common.OrderID]struct{}, len(b.byID))
	check := func(side common.Side, lv *levels) error {
		var err error
		lv.Scan(func(level *priceLevel) bool {
			if level.empty() {
				err = fmt.Errorf("%w: empty level at price %d", common.ErrInvariantViolation, level.price)
				return false
			}
			for _, o := range level.orders {
				loc, ok := b.byID[o.ID]
				if !ok || loc.side != side || loc.price != level.price {
					err = fmt.Errorf("%w: order %d missing/mismatched index entry", common.ErrInvariantViolation, o.ID)
					return false
				}
				seen[o.ID] = struct{}{}
			}
			return true
		})
		return err
	}
	if err := check(common.Bid, b.bids); err != nil {
		return err
	}
	if err := check(common.Ask, b.asks); err != nil {
		return err
	}
	if len(seen) != len(b.byID) {
		return fmt.Errorf("%w: index has orders not present in any level", common.ErrInvariantViolation)
	}
	return nil
}
