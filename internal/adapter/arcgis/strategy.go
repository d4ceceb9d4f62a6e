package arcgis

// strategyState tracks progress through the coordinate-system strategies of
// one category query. Modeled as an explicit little state machine rather
// than nested loop control flow so the transitions stay testable: failure
// classification drives the transitions, and unreachable exits from any
// state.
type strategyState int

const (
	tryingPrimary strategyState = iota
	tryingFallback
	exhausted
)

func (s strategyState) next() strategyState {
	switch s {
	case tryingPrimary:
		return tryingFallback
	default:
		return exhausted
	}
}

func (s strategyState) String() string {
	switch s {
	case tryingPrimary:
		return "trying_primary"
	case tryingFallback:
		return "trying_fallback"
	default:
		return "exhausted"
	}
}
