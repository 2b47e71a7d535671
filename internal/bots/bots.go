// Package bots defines the opaque decision contract every scripted
// strategy is driven through, plus the latency gate that decides when
// a bot is next consulted. The human trader's orders do not pass
// through this contract; they arrive as sim Commands.
package bots

import (
	"math/rand"

	"exchangesim/internal/book"
	"exchangesim/internal/common"
)

// TradePrint is the tape entry bots read — a derived, read-only
// projection of a match event.
type TradePrint struct {
	Price     int64
	Qty       int64
	Aggressor common.Side
	Tick      common.Tick
}

// View is the read-only snapshot handed to a bot's Decide call. Bots
// never see anything beyond what a real participant could observe.
type View struct {
	Now         common.Tick
	Bids        []book.DepthLevel
	Asks        []book.DepthLevel
	Tape        []TradePrint // bounded window, oldest first
	FairValue   int64
	Uncertainty float64
	Volatility  float64

	Position int64
	PnL      int64
	Toxicity float64
}

// Quote is a resting order a bot wants placed this tick.
type Quote struct {
	Side      common.Side
	Price     int64
	Qty       int64
	TIF       common.TimeInForce
	ExpiresAt common.Tick
}

// IOCOrder is an aggressive order priced to cross immediately; the
// simulator computes the actual crossing price from the opposite best
// plus the bot's requested tick offset.
type IOCOrder struct {
	Side       common.Side
	Qty        int64
	CrossTicks int64 // opposite best +/- this many ticks
}

// Decision is everything a bot wants to happen this tick.
type Decision struct {
	Cancels []common.OrderID
	Quotes  []Quote
	IOC     []IOCOrder
}

// Agent is the contract every strategy implements. Decide must be a
// pure function of view and the agent's own internal state — no
// access to the book, other traders, or wall-clock time.
type Agent interface {
	TraderID() common.TraderID
	Decide(view View) Decision
}

// Latency models when an agent is next eligible for consultation.
// BaseLatency and Jitter are in ticks; jitter is drawn from the
// session RNG so it is reproducible given a fixed seed.
type Latency struct {
	BaseLatency int64
	Jitter      int64
}

// Scheduled wraps an Agent with its latency gate and next eligible
// tick. The roster owns one per registered agent.
type Scheduled struct {
	Agent          Agent
	Latency        Latency
	LatencyMult    float64 // difficulty preset multiplier, applied to BaseLatency
	nextActionTick common.Tick
}

// NewScheduled registers agent with latency, eligible starting at tick
// 0.
func NewScheduled(agent Agent, latency Latency, latencyMult float64) *Scheduled {
	if latencyMult <= 0 {
		latencyMult = 1
	}
	return &Scheduled{Agent: agent, Latency: latency, LatencyMult: latencyMult}
}

// Ready reports whether now has reached this agent's next eligible
// action tick.
func (s *Scheduled) Ready(now common.Tick) bool {
	return now >= s.nextActionTick
}

// Consult runs the agent if Ready, advancing its next eligible tick by
// base_latency*multiplier + uniform(0, jitter) drawn from rng. Returns
// false (zero Decision) if the agent was not ready.
func (s *Scheduled) Consult(now common.Tick, view View, rng *rand.Rand) (Decision, bool) {
	if !s.Ready(now) {
		return Decision{}, false
	}
	decision := s.Agent.Decide(view)

	base := int64(float64(s.Latency.BaseLatency) * s.LatencyMult)
	jitter := int64(0)
	if s.Latency.Jitter > 0 {
		jitter = rng.Int63n(s.Latency.Jitter)
	}
	s.nextActionTick = now + common.Tick(base) + common.Tick(jitter)
	return decision, true
}

// Roster holds every registered agent in registration order —
// iteration order over the roster is deterministic, which matters
// because bots are consulted in that order every tick.
type Roster struct {
	entries []*Scheduled
}

// NewRoster builds an empty roster.
func NewRoster() *Roster {
	return &Roster{}
}

// Register adds a scheduled agent to the end of the roster.
func (r *Roster) Register(s *Scheduled) {
	r.entries = append(r.entries, s)
}

// Entries returns the roster in registration order.
func (r *Roster) Entries() []*Scheduled {
	return r.entries
}
