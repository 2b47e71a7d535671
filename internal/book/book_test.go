package book

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exchangesim/internal/common"
)

func mkOrder(id common.OrderID, trader common.TraderID, side common.Side, price, qty int64, ts common.Tick) *common.Order {
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

func TestInsertAndBestPrices(t *testing.T) {
	b := New(1)
	require.NoError(t, b.Insert(mkOrder(1, "alice", common.Bid, 100, 5, 0)))
	require.NoError(t, b.Insert(mkOrder(2, "bob", common.Bid, 101, 5, 1)))
	require.NoError(t, b.Insert(mkOrder(3, "carol", common.Ask, 105, 5, 2)))

	bb, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, int64(101), bb)

	ba, ok := b.BestAsk()
	require.True(t, ok)
	assert.Equal(t, int64(105), ba)

	require.NoError(t, b.Consistent())
}

func TestFIFOWithinLevel(t *testing.T) {
	b := New(1)
	require.NoError(t, b.Insert(mkOrder(1, "alice", common.Bid, 100, 5, 0)))
	require.NoError(t, b.Insert(mkOrder(2, "bob", common.Bid, 100, 5, 1)))

	front, ok := b.FrontOf(common.Bid, 100)
	require.True(t, ok)
	assert.Equal(t, common.OrderID(1), front.ID)
}

func TestCancelRemovesEmptyLevel(t *testing.T) {
	b := New(1)
	require.NoError(t, b.Insert(mkOrder(1, "alice", common.Bid, 100, 5, 0)))

	removed, err := b.Cancel(1)
	require.NoError(t, err)
	assert.Equal(t, common.OrderID(1), removed.ID)

	_, ok := b.BestBid()
	assert.False(t, ok)
	require.NoError(t, b.Consistent())
}

func TestCancelUnknownOrder(t *testing.T) {
	b := New(1)
	_, err := b.Cancel(999)
	assert.ErrorIs(t, err, common.ErrUnknownOrder)
}

func TestCancelAll(t *testing.T) {
	b := New(1)
	require.NoError(t, b.Insert(mkOrder(1, "alice", common.Bid, 100, 5, 0)))
	require.NoError(t, b.Insert(mkOrder(2, "alice", common.Ask, 110, 5, 1)))
	require.NoError(t, b.Insert(mkOrder(3, "bob", common.Bid, 99, 5, 2)))

	n := b.CancelAll("alice")
	assert.Equal(t, 2, n)

	orders := b.OrdersByTrader("bob")
	require.Len(t, orders, 1)
	assert.Equal(t, common.OrderID(3), orders[0].ID)
}

func TestInsertRejectsUnsnappedPrice(t *testing.T) {
	b := New(5)
	err := b.Insert(mkOrder(1, "alice", common.Bid, 102, 5, 0))
	assert.ErrorIs(t, err, common.ErrBadPrice)
}

func TestInsertRejectsDuplicateID(t *testing.T) {
	b := New(1)
	require.NoError(t, b.Insert(mkOrder(1, "alice", common.Bid, 100, 5, 0)))
	err := b.Insert(mkOrder(1, "bob", common.Bid, 101, 3, 1))
	assert.ErrorIs(t, err, common.ErrDuplicateID)
}

func TestExpireRemovesOnlyStaleGTC(t *testing.T) {
	b := New(1)
	fresh := mkOrder(1, "alice", common.Bid, 100, 5, 0)
	fresh.ExpiresAt = 10
	stale := mkOrder(2, "bob", common.Bid, 99, 5, 1)
	stale.ExpiresAt = 2
	ioc := mkOrder(3, "carol", common.Ask, 105, 5, 2)
	ioc.TimeInForce = common.IOC
	ioc.ExpiresAt = 0

	require.NoError(t, b.Insert(fresh))
	require.NoError(t, b.Insert(stale))
	require.NoError(t, b.Insert(ioc))

	n := b.Expire(5)
	assert.Equal(t, 1, n)

	_, err := b.Cancel(2)
	assert.ErrorIs(t, err, common.ErrUnknownOrder)

	_, err = b.Cancel(1)
	assert.NoError(t, err)
	_, err = b.Cancel(3)
	assert.NoError(t, err)
}

func TestDepthOrdering(t *testing.T) {
	b := New(1)
	require.NoError(t, b.Insert(mkOrder(1, "a", common.Bid, 100, 1, 0)))
	require.NoError(t, b.Insert(mkOrder(2, "a", common.Bid, 102, 1, 1)))
	require.NoError(t, b.Insert(mkOrder(3, "a", common.Bid, 101, 1, 2)))

	bids, _ := b.Depth(10)
	require.Len(t, bids, 3)
	assert.Equal(t, []int64{102, 101, 100}, []int64{bids[0].Price, bids[1].Price, bids[2].Price})
}
