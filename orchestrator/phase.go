package orchestrator

// Phase is the decision state of the controlled side.
type Phase int32

const (
	Idle Phase = iota
	RequestPending
	Enumerating
	AwaitingDecision
	Submitting
	Ended
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case RequestPending:
		return "request-pending"
	case Enumerating:
		return "enumerating"
	case AwaitingDecision:
		return "awaiting-decision"
	case Submitting:
		return "submitting"
	case Ended:
		return "ended"
	}
	return "unknown"
}

// transitions lists the legal edges. Ended is reachable from every phase and
// is not listed.
var transitions = map[Phase][]Phase{
	Idle:             {RequestPending},
	RequestPending:   {Enumerating, RequestPending, Idle, Submitting},
	Enumerating:      {AwaitingDecision},
	AwaitingDecision: {Submitting, RequestPending},
	Submitting:       {Idle, Enumerating, RequestPending, Submitting},
}

// CanTransition reports whether from -> to is an edge of the phase machine.
func CanTransition(from, to Phase) bool {
	if to == Ended {
		return from != Ended
	}
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}
