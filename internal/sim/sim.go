// Package sim orchestrates the single-tick pipeline: expiry, bot
// quoting, human commands, matching, fill application, IOC cleanup,
// risk checks, and snapshot emission. Exactly one call to Tick ever
// runs at a time; everything else is either read-only or queued for
// the next Tick to consume.
package sim

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/rs/zerolog/log"

	"exchangesim/internal/book"
	"exchangesim/internal/bots"
	"exchangesim/internal/common"
	"exchangesim/internal/config"
	"exchangesim/internal/journal"
	"exchangesim/internal/matching"
	"exchangesim/internal/risk"
	"exchangesim/internal/trader"
)

// cmdEnvelope pairs a queued command with the channel its submitter
// is blocked on. This is the MPSC shape: any number of goroutines may
// send envelopes, only Tick ever receives them.
type cmdEnvelope struct {
	cmd  Command
	resp chan Result
}

type pendingToxicity struct {
	enqueueTick   common.Tick
	fillPrice     int64
	aggressorSign float64
	takerID       common.TraderID
}

// Simulator owns the book, ledgers, matching engine, risk manager,
// and bot roster for one session. It is not safe for concurrent use
// beyond the MPSC command channel — Submit may be called from any
// goroutine, but Tick must only ever run from one.
type Simulator struct {
	cfg config.Config
	rng *rand.Rand

	now common.Tick

	book        *book.Book
	matchEngine *matching.Engine
	ledgers     map[common.TraderID]*trader.Ledger
	riskMgr     *risk.Manager
	roster      *bots.Roster

	nextOrderID common.OrderID

	fairValue   int64
	uncertainty float64
	volatility  float64
	lastMid     int64
	midReturns  []float64 // bounded window of tick-over-tick mid deltas, for VaR

	tape            []bots.TradePrint
	pendingToxicity []pendingToxicity
	pendingLiquid   []risk.FlattenDirective

	cmdCh  chan cmdEnvelope
	subs   []chan MarketSnapshot
	paused bool
	fatal  error

	jnl *journal.Writer
}

// New constructs a Simulator seeded for deterministic replay. seed
// drives the single RNG stream every stochastic choice in the session
// (latency jitter, fair-value walk) reads from, in a fixed order.
func New(cfg config.Config, seed int64, jnl *journal.Writer) *Simulator {
	b := book.New(cfg.MinTickSize)
	s := &Simulator{
		cfg:         cfg,
		rng:         rand.New(rand.NewSource(seed)),
		book:        b,
		matchEngine: matching.New(b),
		ledgers:     make(map[common.TraderID]*trader.Ledger),
		roster:      bots.NewRoster(),
		fairValue:   100 * cfg.MinTickSize,
		lastMid:     100 * cfg.MinTickSize,
		jnl:         jnl,
		cmdCh:       make(chan cmdEnvelope, 1024),
	}
	s.riskMgr = risk.New(s.limits(cfg), 256)
	return s
}

func (s *Simulator) limits(cfg config.Config) risk.Limits {
	return risk.Limits{
		MaxOrderQty:        cfg.MaxOrderQty,
		PositionLimit:      cfg.PositionLimit,
		ConcentrationFrac:  cfg.ConcentrationFrac,
		LossLimit:          cfg.LossLimit,
		MarginThreshold:    cfg.MarginThreshold,
		MarginPenaltyTicks: cfg.MarginPenaltyTicks,
		MinTickSize:        cfg.MinTickSize,
		VarK:               cfg.VarK,
	}
}

// RegisterTrader creates a ledger for id, seeded with startingCash.
func (s *Simulator) RegisterTrader(id common.TraderID, isBot bool, startingCash int64) {
	s.ledgers[id] = trader.New(id, isBot, startingCash, s.cfg.ToxicityAlpha)
}

// RegisterBot adds agent to the roster with the given base latency;
// the difficulty preset's bot_latency_multiplier scales BaseLatency
// uniformly.
func (s *Simulator) RegisterBot(agent bots.Agent, latency bots.Latency) {
	s.roster.Register(bots.NewScheduled(agent, latency, s.cfg.BotLatencyMultiplier))
}

// Subscribe registers a channel that receives a value-copy of every
// MarketSnapshot this simulator emits.
func (s *Simulator) Subscribe() <-chan MarketSnapshot {
	ch := make(chan MarketSnapshot, 16)
	s.subs = append(s.subs, ch)
	return ch
}

// Submit enqueues cmd onto the MPSC command channel and blocks for its
// synchronous result. Safe to call from any goroutine; the command is
// not applied until the simulator's next Tick drains it.
func (s *Simulator) Submit(cmd Command) Result {
	return <-s.Enqueue(cmd)
}

// Enqueue sends cmd onto the MPSC command channel and returns
// immediately with the channel its Result will arrive on, without
// waiting for a Tick to drain it. Exists alongside the blocking Submit
// for replay, which must enqueue several commands in their original
// order before the Tick that processes them runs.
func (s *Simulator) Enqueue(cmd Command) <-chan Result {
	resp := make(chan Result, 1)
	s.cmdCh <- cmdEnvelope{cmd: cmd, resp: resp}
	return resp
}

// Fatal returns the invariant violation that poisoned this simulator,
// if any. Once non-nil, Tick refuses to run further.
func (s *Simulator) Fatal() error { return s.fatal }

// Now is the current tick sequence number.
func (s *Simulator) Now() common.Tick { return s.now }

// RNG exposes the session's single random stream so callers
// constructing bots outside the package (the CLI) can hand it to
// stochastic strategies like NoiseTrader, keeping every draw on the
// one seeded stream determinism requires.
func (s *Simulator) RNG() *rand.Rand { return s.rng }

func (s *Simulator) nextID() common.OrderID {
	s.nextOrderID++
	return s.nextOrderID
}

// sortedTraderIDs returns every registered trader id in a fixed
// order, used anywhere the pipeline must iterate all traders
// deterministically instead of relying on Go's randomized map order.
func (s *Simulator) sortedTraderIDs() []common.TraderID {
	ids := make([]common.TraderID, 0, len(s.ledgers))
	for id := range s.ledgers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Tick advances the simulator by exactly one step, per §4.3. It is a
// no-op (beyond draining Pause/Resume/SetParam) when paused, and
// refuses to run at all once fatal is set.
func (s *Simulator) Tick() (MarketSnapshot, error) {
	if s.fatal != nil {
		return MarketSnapshot{}, s.fatal
	}

	drained := s.drainCommands()
	if s.paused && !drained.forceTick {
		// Order commands stay queued, in order, for the first unpaused Tick.
		for _, env := range drained.human {
			s.cmdCh <- env
		}
		return s.buildSnapshot(nil), nil
	}

	s.now++

	// Deferred forced liquidations from the previous tick's post-tick
	// check are applied first, ahead of both bot and human commands.
	iocIDs := make(map[common.OrderID]struct{})
	for _, d := range s.pendingLiquid {
		s.applyFlatten(d, iocIDs)
	}
	s.pendingLiquid = nil

	s.book.Expire(s.now)

	s.stepFairValue()

	view := func(traderID common.TraderID) bots.View {
		return s.buildBotView(traderID)
	}

	for _, scheduled := range s.roster.Entries() {
		led := s.ledgers[scheduled.Agent.TraderID()]
		if led == nil {
			continue
		}
		decision, ran := scheduled.Consult(s.now, view(led.ID), s.rng)
		if !ran {
			continue
		}
		s.applyDecision(led, decision, iocIDs)
	}

	for _, env := range drained.human {
		env.resp <- s.applyCommand(env.cmd, iocIDs)
	}

	events := s.matchEngine.Match(s.now)

	for _, e := range events {
		if err := s.applyMatchEvent(e); err != nil {
			return s.poison(err)
		}
	}

	for id := range iocIDs {
		s.book.Cancel(id)
	}

	s.updateVolatility(events)

	s.resolvePendingToxicity()

	// Post-tick checks run in a fixed trader order (sorted by id) rather
	// than map iteration order, so the resulting event and liquidation
	// sequences stay reproducible for a given seed and command stream.
	for _, id := range s.sortedTraderIDs() {
		led := s.ledgers[id]
		if d := s.riskMgr.PostTickCheck(s.now, led, s.book, s.mid()); d != nil {
			s.pendingLiquid = append(s.pendingLiquid, *d)
		}
	}

	if err := s.book.Consistent(); err != nil {
		return s.poison(err)
	}

	snapshot := s.buildSnapshot(events)
	if err := s.appendJournal(events, snapshot); err != nil {
		return MarketSnapshot{}, err
	}
	for _, ch := range s.subs {
		select {
		case ch <- snapshot:
		default:
		}
	}
	return snapshot, nil
}

type drainedCommands struct {
	human     []cmdEnvelope
	forceTick bool
}

// drainCommands empties the MPSC queue at the start of Tick — this is
// the only point in the whole pipeline that touches the channel.
// Pause/Resume/Tick/SetParam are control commands with no order
// semantics, so they are resolved immediately, before step 1;
// Submit/Cancel/CancelAll are deferred to applyCommand at step 5 so
// their Result reflects the actual risk/book outcome.
func (s *Simulator) drainCommands() drainedCommands {
	var out drainedCommands
	for {
		select {
		case env := <-s.cmdCh:
			switch env.cmd.Kind {
			case CmdPause:
				s.paused = true
				env.resp <- Result{Accepted: true}
			case CmdResume:
				s.paused = false
				env.resp <- Result{Accepted: true}
			case CmdTick:
				out.forceTick = true
				env.resp <- Result{Accepted: true}
			case CmdSetParam:
				env.resp <- s.applySetParam(env.cmd)
			default:
				out.human = append(out.human, env)
			}
		default:
			return out
		}
	}
}

func (s *Simulator) applySetParam(cmd Command) Result {
	if _, ok := setParamWhitelist[cmd.ParamKey]; !ok {
		return Result{Accepted: false, Reject: fmt.Errorf("setparam: unknown key %q", cmd.ParamKey)}
	}
	var f float64
	if _, err := fmt.Sscanf(cmd.ParamValue, "%g", &f); err != nil {
		return Result{Accepted: false, Reject: fmt.Errorf("setparam: bad value %q: %w", cmd.ParamValue, err)}
	}
	switch cmd.ParamKey {
	case "max_order_qty":
		s.riskMgr = risk.New(withMaxOrderQty(s.limits(s.cfg), int64(f)), 256)
	case "position_limit":
		s.riskMgr = risk.New(withPositionLimit(s.limits(s.cfg), int64(f)), 256)
	case "loss_limit":
		s.riskMgr = risk.New(withLossLimit(s.limits(s.cfg), int64(f)), 256)
	case "margin_threshold":
		s.riskMgr = risk.New(withMarginThreshold(s.limits(s.cfg), int64(f)), 256)
	case "concentration_frac":
		s.riskMgr = risk.New(withConcentration(s.limits(s.cfg), f), 256)
	case "bot_latency_multiplier":
		s.cfg.BotLatencyMultiplier = f
	case "volatility_cap":
		s.cfg.VolatilityCap = f
	}
	return Result{Accepted: true}
}

func withMaxOrderQty(l risk.Limits, v int64) risk.Limits     { l.MaxOrderQty = v; return l }
func withPositionLimit(l risk.Limits, v int64) risk.Limits   { l.PositionLimit = v; return l }
func withLossLimit(l risk.Limits, v int64) risk.Limits       { l.LossLimit = v; return l }
func withMarginThreshold(l risk.Limits, v int64) risk.Limits { l.MarginThreshold = v; return l }
func withConcentration(l risk.Limits, v float64) risk.Limits { l.ConcentrationFrac = v; return l }

// stepFairValue advances the fair-value/uncertainty schedule by one
// tick, bounded by the configured volatility cap. The walk draws from
// the session RNG so it is reproducible given a fixed seed.
func (s *Simulator) stepFairValue() {
	step := (s.rng.Float64()*2 - 1) * s.cfg.VolatilityCap * float64(s.cfg.MinTickSize)
	s.fairValue += int64(step)
	if s.fairValue < s.cfg.MinTickSize {
		s.fairValue = s.cfg.MinTickSize
	}
	s.uncertainty = s.cfg.VolatilityCap * (1 + s.rng.Float64())
}

func (s *Simulator) mid() int64 {
	if m, ok := s.book.Mid(); ok {
		return m
	}
	return s.fairValue
}

func (s *Simulator) buildBotView(traderID common.TraderID) bots.View {
	bids, asks := s.book.Depth(s.cfg.SnapshotDepthN)
	led := s.ledgers[traderID]
	var position, pnl int64
	var toxicity float64
	if led != nil {
		position = led.Position()
		pnl = led.PnL(s.mid())
		toxicity = led.Toxicity()
	}
	tape := s.tape
	if s.cfg.TapeWindow > 0 && len(tape) > s.cfg.TapeWindow {
		tape = tape[len(tape)-s.cfg.TapeWindow:]
	}
	return bots.View{
		Now:         s.now,
		Bids:        bids,
		Asks:        asks,
		Tape:        tape,
		FairValue:   s.fairValue,
		Uncertainty: s.uncertainty,
		Volatility:  s.volatility,
		Position:    position,
		PnL:         pnl,
		Toxicity:    toxicity,
	}
}

// applyDecision inserts cancels then quotes then IOC submissions for
// one bot's Decision, in that order, per §4.3 step 4.
func (s *Simulator) applyDecision(led *trader.Ledger, d bots.Decision, iocIDs map[common.OrderID]struct{}) {
	for _, id := range d.Cancels {
		s.book.Cancel(id)
	}
	for _, q := range d.Quotes {
		// Bot orders are best-effort: a risk rejection is silently dropped.
		_, _ = s.submitResting(led, q.Side, q.Price, q.Qty, q.TIF, q.ExpiresAt, iocIDs)
	}
	for _, ioc := range d.IOC {
		price := s.crossingPrice(ioc.Side, ioc.CrossTicks)
		_, _ = s.submitResting(led, ioc.Side, price, ioc.Qty, common.IOC, 0, iocIDs)
	}
}

// crossingPrice derives the aggressive price for an IOC: opposite
// best plus/minus the requested offset, so the order is guaranteed to
// cross if any liquidity exists.
func (s *Simulator) crossingPrice(side common.Side, crossTicks int64) int64 {
	offset := crossTicks * s.cfg.MinTickSize
	if side == common.Bid {
		if ask, ok := s.book.BestAsk(); ok {
			return ask + offset
		}
		return s.fairValue + offset
	}
	if bid, ok := s.book.BestBid(); ok {
		return bid - offset
	}
	return s.fairValue - offset
}

// applyCommand resolves one human command (submit/cancel/cancel-all)
// against the book and risk manager, and journals it if accepted —
// replay reconstructs a session by re-submitting exactly these
// records against a fresh Simulator.
func (s *Simulator) applyCommand(cmd Command, iocIDs map[common.OrderID]struct{}) Result {
	result := s.doApplyCommand(cmd, iocIDs)
	if result.Accepted && s.jnl != nil {
		rec := cmd
		if cmd.Kind == CmdSubmit {
			rec.OrderID = result.OrderID
		}
		if err := s.jnl.WriteCommand(s.now, rec); err != nil {
			log.Warn().Err(err).Str("trader", string(cmd.TraderID)).Msg("failed to journal accepted command")
		}
	}
	return result
}

func (s *Simulator) doApplyCommand(cmd Command, iocIDs map[common.OrderID]struct{}) Result {
	led := s.ledgers[cmd.TraderID]
	if led == nil {
		return Result{Accepted: false, Reject: common.ErrUnknownOrder}
	}
	switch cmd.Kind {
	case CmdSubmit:
		if cmd.Qty <= 0 {
			return Result{Accepted: false, Reject: common.ErrBadQty}
		}
		price := cmd.Price
		if cmd.Aggressive {
			price = s.crossingPrice(cmd.Side, cmd.CrossTicks)
		}
		if price <= 0 {
			return Result{Accepted: false, Reject: common.ErrBadPrice}
		}
		tif := cmd.TIF
		if cmd.Aggressive {
			tif = common.IOC
		}
		expiresAt := cmd.ExpiresAt
		if tif == common.GTC && expiresAt == 0 {
			expiresAt = common.NeverExpires
		}
		id, err := s.submitResting(led, cmd.Side, price, cmd.Qty, tif, expiresAt, iocIDs)
		if err != nil {
			return Result{Accepted: false, Reject: err}
		}
		return Result{Accepted: true, OrderID: id}
	case CmdCancel:
		if _, err := s.book.Cancel(cmd.OrderID); err != nil {
			return Result{Accepted: false, Reject: err}
		}
		return Result{Accepted: true}
	case CmdCancelAll:
		s.book.CancelAll(cmd.TraderID)
		return Result{Accepted: true}
	default:
		return Result{Accepted: false, Reject: fmt.Errorf("sim: unsupported command kind %d", cmd.Kind)}
	}
}

// submitResting runs the pre-trade risk check, then inserts the order
// if accepted. IOC order ids are recorded in iocIDs for step 8 cleanup.
func (s *Simulator) submitResting(led *trader.Ledger, side common.Side, price, qty int64, tif common.TimeInForce, expiresAt common.Tick, iocIDs map[common.OrderID]struct{}) (common.OrderID, error) {
	snapped := s.book.SnapPrice(price)
	if err := s.riskMgr.CheckOrder(s.now, led, side, qty, tif == common.IOC, s.book, s.mid()); err != nil {
		return 0, err
	}
	id := s.nextID()
	o := &common.Order{
		ID:           id,
		TraderID:     led.ID,
		Side:         side,
		Price:        snapped,
		OriginalQty:  qty,
		RemainingQty: qty,
		Timestamp:    s.now,
		TimeInForce:  tif,
		ExpiresAt:    expiresAt,
	}
	if err := s.book.Insert(o); err != nil {
		return 0, err
	}
	if tif == common.IOC {
		iocIDs[id] = struct{}{}
	}
	return id, nil
}

// applyFlatten inserts a forced-liquidation IOC directly, bypassing
// the pre-trade risk gate: a directive exists precisely because the
// trader is already over a limit, so gating it on that same limit
// would make liquidation impossible.
func (s *Simulator) applyFlatten(d risk.FlattenDirective, iocIDs map[common.OrderID]struct{}) {
	led := s.ledgers[d.TraderID]
	if led == nil {
		return
	}
	id := s.nextID()
	o := &common.Order{
		ID:           id,
		TraderID:     led.ID,
		Side:         d.Side,
		Price:        s.book.SnapPrice(d.Price),
		OriginalQty:  d.Qty,
		RemainingQty: d.Qty,
		Timestamp:    s.now,
		TimeInForce:  common.IOC,
	}
	if err := s.book.Insert(o); err != nil {
		log.Warn().Err(err).Str("trader", string(led.ID)).Msg("forced liquidation order rejected by book")
		return
	}
	iocIDs[id] = struct{}{}
}

func (s *Simulator) applyMatchEvent(e matching.MatchEvent) error {
	maker := s.ledgers[e.BuyerID]
	taker := s.ledgers[e.SellerID]
	var makerSide, takerSide common.Side = common.Bid, common.Ask
	if e.TakerID == e.BuyerID {
		maker, taker = taker, maker
		makerSide, takerSide = common.Ask, common.Bid
	}
	if maker == nil || taker == nil {
		return fmt.Errorf("%w: match event references unknown trader", common.ErrInvariantViolation)
	}

	makerFee := e.Price * e.Quantity * s.cfg.MakerFee / 10_000
	takerFee := e.Price * e.Quantity * s.cfg.TakerFee / 10_000

	maker.Apply(trader.Fill{Price: e.Price, Quantity: e.Quantity, Side: makerSide, Tick: e.Tick, Counterparty: taker.ID, Fee: makerFee})
	taker.Apply(trader.Fill{Price: e.Price, Quantity: e.Quantity, Side: takerSide, Tick: e.Tick, Counterparty: maker.ID, Fee: takerFee})

	aggressorSign := 1.0
	if takerSide == common.Ask {
		aggressorSign = -1.0
	}
	s.pendingToxicity = append(s.pendingToxicity, pendingToxicity{
		enqueueTick:   s.now,
		fillPrice:     e.Price,
		aggressorSign: aggressorSign,
		takerID:       taker.ID,
	})

	s.tape = append(s.tape, bots.TradePrint{Price: e.Price, Qty: e.Quantity, Aggressor: takerSide, Tick: e.Tick})
	if s.cfg.TapeWindow > 0 && len(s.tape) > s.cfg.TapeWindow*4 {
		s.tape = s.tape[len(s.tape)-s.cfg.TapeWindow:]
	}
	return nil
}

// resolvePendingToxicity settles every fill enqueued exactly one tick
// ago against the mid observed at the end of this tick, per §4.3.1.
func (s *Simulator) resolvePendingToxicity() {
	mid := s.mid()
	var keep []pendingToxicity
	for _, p := range s.pendingToxicity {
		if p.enqueueTick != s.now-1 {
			keep = append(keep, p)
			continue
		}
		led := s.ledgers[p.takerID]
		if led == nil {
			continue
		}
		delta := float64(mid-p.fillPrice) * p.aggressorSign
		led.UpdateToxicity(delta)
	}
	s.pendingToxicity = keep
}

func (s *Simulator) updateVolatility(events []matching.MatchEvent) {
	mid := s.mid()
	signedChange := float64(mid - s.lastMid)
	midChange := signedChange
	if midChange < 0 {
		midChange = -midChange
	}
	var volume int64
	for _, e := range events {
		volume += e.Quantity
	}
	s.volatility = midChange + float64(volume)*0.01
	if s.volatility > s.cfg.VolatilityCap {
		s.volatility = s.cfg.VolatilityCap
	}

	window := s.cfg.VarWindow
	if window <= 0 {
		window = 30
	}
	s.midReturns = append(s.midReturns, signedChange)
	if len(s.midReturns) > window {
		s.midReturns = s.midReturns[len(s.midReturns)-window:]
	}

	s.lastMid = mid
}

func (s *Simulator) poison(err error) (MarketSnapshot, error) {
	s.fatal = err
	log.Error().Err(err).Int64("tick", int64(s.now)).Msg("simulator poisoned by invariant violation")
	if s.jnl != nil {
		s.jnl.Flush()
	}
	snap := s.buildSnapshot(nil)
	snap.Fatal = err.Error()
	return snap, err
}

func (s *Simulator) buildSnapshot(events []matching.MatchEvent) MarketSnapshot {
	bids, asks := s.book.Depth(s.cfg.SnapshotDepthN)
	bb, bbOk := s.book.BestBid()
	ba, baOk := s.book.BestAsk()
	mid, midOk := s.book.Mid()

	var lastTrade int64
	if len(events) > 0 {
		lastTrade = events[len(events)-1].Price
	} else if len(s.tape) > 0 {
		lastTrade = s.tape[len(s.tape)-1].Price
	}

	traders := make([]TraderView, 0, len(s.ledgers))
	for id, led := range s.ledgers {
		position := led.Position()
		traders = append(traders, TraderView{
			TraderID: id,
			Position: position,
			Cash:     led.Cash(),
			PnL:      led.PnL(s.mid()),
			VWAP:     led.VWAP(),
			Toxicity: led.Toxicity(),
			VaR:      risk.VaR(s.cfg.VarK, s.midReturns, position),
		})
	}
	sort.Slice(traders, func(i, j int) bool { return traders[i].TraderID < traders[j].TraderID })

	leaderboard := make([]TraderView, len(traders))
	copy(leaderboard, traders)
	sort.Slice(leaderboard, func(i, j int) bool { return leaderboard[i].PnL > leaderboard[j].PnL })

	snap := MarketSnapshot{
		Tick:             s.now,
		Bids:             bids,
		Asks:             asks,
		BestBid:          bb,
		HasBestBid:       bbOk,
		BestAsk:          ba,
		HasBestAsk:       baOk,
		Mid:              mid,
		HasMid:           midOk,
		LastTrade:        lastTrade,
		FairValue:        s.fairValue,
		Volatility:       s.volatility,
		Traders:          traders,
		Leaderboard:      leaderboard,
		RecentRiskEvents: s.riskMgr.RecentEvents(),
	}
	if s.fatal != nil {
		snap.Fatal = s.fatal.Error()
	}
	return snap
}

// Leaderboard returns traders ranked by P&L, descending, without
// requiring a full snapshot.
func (s *Simulator) Leaderboard() []TraderView {
	return s.buildSnapshot(nil).Leaderboard
}

func (s *Simulator) appendJournal(events []matching.MatchEvent, snap MarketSnapshot) error {
	if s.jnl == nil {
		return nil
	}
	for _, e := range events {
		if err := s.jnl.WriteEvent(s.now, e); err != nil {
			return err
		}
	}
	if err := s.jnl.WriteSnapshot(s.now, snap); err != nil {
		return err
	}
	return s.jnl.Flush()
}
