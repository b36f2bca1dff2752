package trade

import "fmt"

// State is the phase of the current trade session.
type State int

const (
	StateIdle State = iota
	StateInviting
	StateJoined
	StateStashOpened
	StateItemsTaken
	StateTradeRequested
	// StateTradeAccepted is observed from the log only; it never gates progress.
	StateTradeAccepted
	StateTradeCompleted
	StateTradeCancelled
	StateTradeFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateInviting:
		return "Inviting"
	case StateJoined:
		return "Joined"
	case StateStashOpened:
		return "StashOpened"
	case StateItemsTaken:
		return "ItemsTaken"
	case StateTradeRequested:
		return "TradeRequested"
	case StateTradeAccepted:
		return "TradeAccepted"
	case StateTradeCompleted:
		return "TradeCompleted"
	case StateTradeCancelled:
		return "TradeCancelled"
	case StateTradeFailed:
		return "TradeFailed"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// validTransitions lists the allowed targets per state. Every active state
// may also fail.
var validTransitions = map[State][]State{
	StateIdle:           {StateInviting},
	StateInviting:       {StateJoined, StateTradeFailed},
	StateJoined:         {StateStashOpened, StateTradeFailed},
	StateStashOpened:    {StateItemsTaken, StateTradeRequested, StateTradeFailed},
	StateItemsTaken:     {StateTradeRequested, StateTradeFailed},
	StateTradeRequested: {StateTradeAccepted, StateTradeCompleted, StateTradeCancelled, StateTradeFailed},
	StateTradeAccepted:  {StateTradeCompleted, StateTradeCancelled, StateTradeFailed},
	StateTradeCompleted: {StateIdle},
	StateTradeCancelled: {StateIdle},
	StateTradeFailed:    {StateIdle},
}

func (s State) CanTransitionTo(target State) bool {
	for _, t := range validTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the session has ended and only Idle may follow.
func (s State) IsTerminal() bool {
	return s == StateTradeCompleted || s == StateTradeCancelled || s == StateTradeFailed
}

// IsActive reports whether a session is in flight.
func (s State) IsActive() bool {
	return s != StateIdle && !s.IsTerminal()
}

// TransitionError is returned for a transition the table does not allow.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid trade state transition from %s to %s", e.From, e.To)
}
