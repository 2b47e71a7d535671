package sim

import "exchangesim/internal/common"

// CommandKind discriminates the Command variants accepted over the
// external command interface.
type CommandKind int

const (
	CmdSubmit CommandKind = iota
	CmdCancel
	CmdCancelAll
	CmdSetParam
	CmdPause
	CmdResume
	CmdTick
)

// Command is one request on the external command interface: the human
// user's queued orders and control commands. Bot output does not use
// this shape; it reaches the tick pipeline as a bots.Decision.
type Command struct {
	Kind     CommandKind
	TraderID common.TraderID

	// CmdSubmit
	Side       common.Side
	Price      int64 // ignored for aggressive IOC crossing; see CrossTicks
	Qty        int64
	TIF        common.TimeInForce
	ExpiresAt  common.Tick
	Aggressive bool  // true for IOC priced to cross; Price is then derived from opposite best
	CrossTicks int64 // opposite best +/- this many ticks, used only when Aggressive

	// CmdCancel; on a journaled CmdSubmit, the order id it was assigned
	OrderID common.OrderID

	// CmdSetParam
	ParamKey   string
	ParamValue string
}

// RejectKind enumerates why a command was not accepted. It wraps the
// same sentinel errors common and risk already define so callers can
// use errors.Is uniformly.
type RejectKind = error

// Result is the synchronous reply to one submitted command.
type Result struct {
	Accepted bool
	OrderID  common.OrderID
	Reject   RejectKind
}

// setParamWhitelist bounds which keys SetParam may touch — anything
// outside this set is rejected rather than silently ignored.
var setParamWhitelist = map[string]struct{}{
	"max_order_qty":          {},
	"position_limit":         {},
	"loss_limit":             {},
	"margin_threshold":       {},
	"concentration_frac":     {},
	"bot_latency_multiplier": {},
	"volatility_cap":         {},
}
