package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exchangesim/internal/common"
	"exchangesim/internal/config"
)

// submit enqueues cmd directly on the MPSC channel and returns the
// response channel, without blocking the test goroutine the way
// Submit would (Submit's send half is non-blocking on a buffered
// channel, but its receive half would deadlock until a Tick runs).
func submit(s *Simulator, cmd Command) <-chan Result {
	resp := make(chan Result, 1)
	s.cmdCh <- cmdEnvelope{cmd: cmd, resp: resp}
	return resp
}

func newTestSim() *Simulator {
	cfg := config.Preset("MEDIUM")
	cfg.ConcentrationFrac = 0 // disabled: these scenarios exercise book/matching mechanics, not concentration limits
	s := New(cfg, 1, nil)
	s.RegisterTrader("A", false, 1_000_000)
	s.RegisterTrader("B", false, 1_000_000)
	s.RegisterTrader("C", false, 1_000_000)
	return s
}

func TestFIFOSamePrice(t *testing.T) {
	s := newTestSim()

	rA := submit(s, Command{Kind: CmdSubmit, TraderID: "A", Side: common.Bid, Price: 100, Qty: 10, TIF: common.GTC})
	snap, err := s.Tick()
	require.NoError(t, err)
	require.True(t, (<-rA).Accepted)
	assert.Equal(t, common.Tick(1), snap.Tick)

	rB := submit(s, Command{Kind: CmdSubmit, TraderID: "B", Side: common.Bid, Price: 100, Qty: 10, TIF: common.GTC})
	_, err = s.Tick()
	require.NoError(t, err)
	require.True(t, (<-rB).Accepted)

	rC := submit(s, Command{Kind: CmdSubmit, TraderID: "C", Side: common.Ask, Price: 100, Qty: 5, TIF: common.GTC})
	snap, err = s.Tick()
	require.NoError(t, err)
	require.True(t, (<-rC).Accepted)

	require.Len(t, snap.Bids, 1)
	assert.Equal(t, int64(100), snap.Bids[0].Price)
	assert.Equal(t, int64(15), snap.Bids[0].Qty) // A's 5 remaining + B's 10

	aOrders := s.book.OrdersByTrader("A")
	require.Len(t, aOrders, 1)
	assert.Equal(t, int64(5), aOrders[0].RemainingQty)

	bOrders := s.book.OrdersByTrader("B")
	require.Len(t, bOrders, 1)
	assert.Equal(t, int64(10), bOrders[0].RemainingQty)
}

func TestPricePriority(t *testing.T) {
	s := newTestSim()

	rA := submit(s, Command{Kind: CmdSubmit, TraderID: "A", Side: common.Bid, Price: 101, Qty: 5, TIF: common.GTC})
	rB := submit(s, Command{Kind: CmdSubmit, TraderID: "B", Side: common.Bid, Price: 100, Qty: 10, TIF: common.GTC})
	_, err := s.Tick()
	require.NoError(t, err)
	require.True(t, (<-rA).Accepted)
	require.True(t, (<-rB).Accepted)

	rC := submit(s, Command{Kind: CmdSubmit, TraderID: "C", Side: common.Ask, Price: 100, Qty: 7, TIF: common.GTC})
	snap, err := s.Tick()
	require.NoError(t, err)
	require.True(t, (<-rC).Accepted)

	require.Len(t, snap.Bids, 1)
	assert.Equal(t, int64(100), snap.Bids[0].Price)
	assert.Equal(t, int64(8), snap.Bids[0].Qty)
	assert.Empty(t, snap.Asks)

	bOrders := s.book.OrdersByTrader("B")
	require.Len(t, bOrders, 1)
	assert.Equal(t, int64(8), bOrders[0].RemainingQty)
}

func TestSelfTradePreventionViaSimulator(t *testing.T) {
	s := newTestSim()

	rA := submit(s, Command{Kind: CmdSubmit, TraderID: "A", Side: common.Bid, Price: 100, Qty: 5, TIF: common.GTC})
	_, err := s.Tick()
	require.NoError(t, err)
	require.True(t, (<-rA).Accepted)

	rA2 := submit(s, Command{Kind: CmdSubmit, TraderID: "A", Side: common.Ask, Price: 100, Qty: 3, TIF: common.GTC})
	snap, err := s.Tick()
	require.NoError(t, err)
	require.True(t, (<-rA2).Accepted)

	assert.Empty(t, snap.Asks)
	require.Len(t, snap.Bids, 1)
	assert.Equal(t, int64(5), snap.Bids[0].Qty)

	aOrders := s.book.OrdersByTrader("A")
	require.Len(t, aOrders, 1)
	assert.Equal(t, common.Bid, aOrders[0].Side)
	assert.Equal(t, int64(5), aOrders[0].RemainingQty)
}

func TestIOCLeftoverCleanup(t *testing.T) {
	s := newTestSim()

	rB := submit(s, Command{Kind: CmdSubmit, TraderID: "B", Side: common.Ask, Price: 100, Qty: 3, TIF: common.GTC})
	_, err := s.Tick()
	require.NoError(t, err)
	require.True(t, (<-rB).Accepted)

	rA := submit(s, Command{Kind: CmdSubmit, TraderID: "A", Side: common.Bid, Price: 100, Qty: 10, TIF: common.IOC})
	snap, err := s.Tick()
	require.NoError(t, err)
	require.True(t, (<-rA).Accepted)

	assert.Empty(t, snap.Bids)
	assert.Empty(t, snap.Asks)
	assert.Equal(t, int64(100), snap.LastTrade)

	require.NoError(t, s.book.Consistent())
}

func TestExpiryRemovesStaleGTC(t *testing.T) {
	s := newTestSim()

	rB := submit(s, Command{Kind: CmdSubmit, TraderID: "B", Side: common.Bid, Price: 100, Qty: 5, TIF: common.GTC, ExpiresAt: 3})
	_, err := s.Tick() // tick 1
	require.NoError(t, err)
	require.True(t, (<-rB).Accepted)

	_, err = s.Tick() // tick 2, not yet expired
	require.NoError(t, err)
	bOrders := s.book.OrdersByTrader("B")
	require.Len(t, bOrders, 1)

	snap, err := s.Tick() // tick 3, expires before matching
	require.NoError(t, err)
	assert.Empty(t, snap.Bids)
	assert.Empty(t, s.book.OrdersByTrader("B"))
}

func TestMarginCallForcesLiquidationNextTick(t *testing.T) {
	// A dedicated, tighter margin_threshold than any preset carries, so
	// a ~20% mid drop on a small position is enough to trip it within
	// one test without needing an unrealistically large loss.
	cfg := config.Preset("MEDIUM")
	cfg.MarginThreshold = -100
	cfg.ConcentrationFrac = 0
	s := New(cfg, 1, nil)
	s.RegisterTrader("A", false, 0)
	s.RegisterTrader("B", false, 0)
	s.RegisterTrader("C", false, 0)

	// Give A a +10 long position at price 100 via a fill against B.
	rB := submit(s, Command{Kind: CmdSubmit, TraderID: "B", Side: common.Ask, Price: 100, Qty: 10, TIF: common.GTC})
	_, err := s.Tick()
	require.NoError(t, err)
	require.True(t, (<-rB).Accepted)

	rA := submit(s, Command{Kind: CmdSubmit, TraderID: "A", Side: common.Bid, Price: 100, Qty: 10, TIF: common.IOC})
	_, err = s.Tick()
	require.NoError(t, err)
	require.True(t, (<-rA).Accepted)

	led := s.ledgers["A"]
	require.Equal(t, int64(10), led.Position())

	// Drive the mid down far enough to breach margin_threshold on the
	// next post-tick check: C posts a deep resting quote on both sides
	// so the book's mid reflects the drop.
	rC1 := submit(s, Command{Kind: CmdSubmit, TraderID: "C", Side: common.Bid, Price: 79, Qty: 15, TIF: common.GTC})
	rC2 := submit(s, Command{Kind: CmdSubmit, TraderID: "C", Side: common.Ask, Price: 81, Qty: 1, TIF: common.GTC})
	_, err = s.Tick()
	require.NoError(t, err)
	require.True(t, (<-rC1).Accepted)
	require.True(t, (<-rC2).Accepted)

	require.NotEmpty(t, s.pendingLiquid, "post-tick check should have queued a flatten directive once mark-to-market breached margin_threshold")
	directive := s.pendingLiquid[0]
	assert.Equal(t, common.TraderID("A"), directive.TraderID)
	assert.Equal(t, common.Ask, directive.Side)
	assert.Equal(t, int64(10), directive.Qty)

	snap, err := s.Tick()
	require.NoError(t, err)
	assert.Equal(t, int64(0), led.Position())
	assert.Empty(t, s.pendingLiquid)
	_ = snap
}
