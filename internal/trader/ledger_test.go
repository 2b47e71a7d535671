package trader

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"exchangesim/internal/common"
)

func TestApplyBuyUpdatesPositionAndCash(t *testing.T) {
	l := New("alice", false, 10_000, 0)
	l.Apply(Fill{Price: 100, Quantity: 5, Side: common.Bid, Counterparty: "bob"})

	assert.Equal(t, int64(5), l.Position())
	assert.Equal(t, int64(10_000-500), l.Cash())
}

func TestApplySellUpdatesPositionAndCash(t *testing.T) {
	l := New("alice", false, 0, 0)
	l.Apply(Fill{Price: 100, Quantity: 5, Side: common.Ask, Counterparty: "bob"})

	assert.Equal(t, int64(-5), l.Position())
	assert.Equal(t, int64(500), l.Cash())
}

func TestFeesDeductedFromCash(t *testing.T) {
	l := New("alice", false, 0, 0)
	l.Apply(Fill{Price: 100, Quantity: 1, Side: common.Bid, Fee: 2})
	assert.Equal(t, int64(-102), l.Cash())
	assert.Equal(t, int64(2), l.FeesPaid())
}

func TestMarkToMarket(t *testing.T) {
	l := New("alice", false, 0, 0)
	l.Apply(Fill{Price: 100, Quantity: 5, Side: common.Bid})
	assert.Equal(t, int64(-500+5*110), l.MarkToMarket(110))
}

func TestPnLExcludesStartingCash(t *testing.T) {
	l := New("alice", false, 1_000_000, 0)
	assert.Equal(t, int64(1_000_000), l.MarkToMarket(100))
	assert.Equal(t, int64(0), l.PnL(100))

	l.Apply(Fill{Price: 100, Quantity: 5, Side: common.Bid})
	assert.Equal(t, int64(1_000_000-500+5*110), l.MarkToMarket(110))
	assert.Equal(t, int64(-500+5*110), l.PnL(110))
}

func TestVWAP(t *testing.T) {
	l := New("alice", false, 0, 0)
	l.Apply(Fill{Price: 100, Quantity: 2, Side: common.Bid})
	l.Apply(Fill{Price: 110, Quantity: 2, Side: common.Bid})
	assert.Equal(t, int64(105), l.VWAP())
}

func TestToxicityEWMAMovesTowardIndicator(t *testing.T) {
	l := New("alice", false, 0, 0)
	l.UpdateToxicity(5) // mid moved in this taker's direction, aggressor-signed positive
	assert.Greater(t, l.Toxicity(), 0.0)
}

func TestToxicityEWMAStaysZeroWhenFavorable(t *testing.T) {
	l := New("alice", false, 0, 0)
	l.UpdateToxicity(-5) // mid moved against this taker's direction
	assert.Equal(t, 0.0, l.Toxicity())
}

func TestRealizedPnLFlatPosition(t *testing.T) {
	l := New("alice", false, 0, 0)
	l.Apply(Fill{Price: 100, Quantity: 5, Side: common.Bid})
	l.Apply(Fill{Price: 110, Quantity: 5, Side: common.Ask})
	assert.Equal(t, int64(0), l.Position())
	assert.Equal(t, l.MarkToMarket(110), l.RealizedPnL(110))
}
