package matching

// State is the position of an attempt in the matching state machine.
type State string

const (
	StateIdle               State = "IDLE"
	StateAwaitingCandidates State = "AWAITING_CANDIDATES"
	StateOffering           State = "OFFERING"
	StateConfirmed          State = "CONFIRMED"
	StateExhausted          State = "EXHAUSTED"
	StateTimedOut           State = "TIMED_OUT"
	StateCancelled          State = "CANCELLED"
)

// Terminal reports whether no further transitions are allowed from state.
func (state State) Terminal() bool {
	switch state {
	case StateConfirmed, StateExhausted, StateTimedOut, StateCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo encodes the allowed moves of the state machine.
func (state State) CanTransitionTo(next State) bool {
	switch state {
	case StateIdle:
		return next == StateAwaitingCandidates || next == StateCancelled
	case StateAwaitingCandidates:
		return next == StateOffering || next == StateExhausted ||
			next == StateTimedOut || next == StateCancelled
	case StateOffering:
		// Offering -> Offering is the decline/timeout hop to the next candidate.
		return next == StateOffering || next == StateConfirmed || next == StateExhausted ||
			next == StateTimedOut || next == StateCancelled
	default:
		return false
	}
}

func (state State) String() string { return string(state) }

func outcomeState(kind OutcomeKind) State {
	switch kind {
	case OutcomeConfirmed:
		return StateConfirmed
	case OutcomeExhausted:
		return StateExhausted
	case OutcomeTimedOut:
		return StateTimedOut
	default:
		return StateCancelled
	}
}
