package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exchangesim/internal/book"
	"exchangesim/internal/common"
)

func order(id common.OrderID, trader common.TraderID, side common.Side, price, qty int64, ts common.Tick) *common.Order {
	return &common.Order{
		ID:           id,
		TraderID:     trader,
		Side:         side,
		Price:        price,
		OriginalQty:  qty,
		RemainingQty: qty,
		Timestamp:    ts,
		TimeInForce:  common.GTC,
		ExpiresAt:    1 << 30,
	}
}

func TestMatchAtMakerPrice(t *testing.T) {
	b := book.New(1)
	require.NoError(t, b.Insert(order(1, "alice", common.Bid, 100, 10, 0)))
	require.NoError(t, b.Insert(order(2, "bob", common.Ask, 99, 5, 1)))

	events := New(b).Match(1)
	require.Len(t, events, 1)
	e := events[0]
	assert.Equal(t, int64(100), e.Price) // maker (bid, ts=0) price wins
	assert.Equal(t, int64(5), e.Quantity)
	assert.Equal(t, common.TraderID("bob"), e.TakerID)
	assert.Equal(t, common.TraderID("alice"), e.BuyerID)
	assert.Equal(t, common.TraderID("bob"), e.SellerID)

	bb, _ := b.BestBid()
	assert.Equal(t, int64(100), bb)
	_, askOk := b.BestAsk()
	assert.False(t, askOk)
}

func TestPartialFillAcrossLevels(t *testing.T) {
	b := book.New(1)
	require.NoError(t, b.Insert(order(1, "alice", common.Ask, 100, 3, 0)))
	require.NoError(t, b.Insert(order(2, "alice2", common.Ask, 101, 10, 1)))
	require.NoError(t, b.Insert(order(3, "bob", common.Bid, 101, 5, 2)))

	events := New(b).Match(1)
	require.Len(t, events, 2)
	assert.Equal(t, int64(3), events[0].Quantity)
	assert.Equal(t, int64(2), events[1].Quantity)

	_, askOk := b.BestAsk()
	require.True(t, askOk)
	ap, _ := b.BestAsk()
	assert.Equal(t, int64(101), ap)
}

func TestSelfTradePreventionRemovesTaker(t *testing.T) {
	b := book.New(1)
	require.NoError(t, b.Insert(order(1, "alice", common.Bid, 100, 5, 0)))
	require.NoError(t, b.Insert(order(2, "alice", common.Ask, 100, 5, 1)))

	events := New(b).Match(1)
	assert.Empty(t, events)

	bb, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, int64(100), bb)
	_, askOk := b.BestAsk()
	assert.False(t, askOk)
}

func TestNoMatchWhenSpreadOpen(t *testing.T) {
	b := book.New(1)
	require.NoError(t, b.Insert(order(1, "alice", common.Bid, 99, 5, 0)))
	require.NoError(t, b.Insert(order(2, "bob", common.Ask, 100, 5, 1)))

	events := New(b).Match(1)
	assert.Empty(t, events)
}

func TestTimePriorityWithinLevel(t *testing.T) {
	b := book.New(1)
	require.NoError(t, b.Insert(order(1, "first", common.Bid, 100, 5, 0)))
	require.NoError(t, b.Insert(order(2, "second", common.Bid, 100, 5, 1)))
	require.NoError(t, b.Insert(order(3, "taker", common.Ask, 100, 5, 2)))

	events := New(b).Match(1)
	require.Len(t, events, 1)
	assert.Equal(t, common.TraderID("first"), events[0].BuyerID)

	front, ok := b.FrontOf(common.Bid, 100)
	require.True(t, ok)
	assert.Equal(t, common.OrderID(2), front.ID)
}
