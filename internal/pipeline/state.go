package pipeline

import "fmt"

// State is the processing state of one slice of one configuration.
type State int

const (
	Unprocessed State = iota
	Normalizing
	InsufficientStatistics
	Normalized
	Decomposed
	RatiosBuilt
)

var stateNames = [...]string{
	Unprocessed:            "unprocessed",
	Normalizing:            "normalizing",
	InsufficientStatistics: "insufficient_statistics",
	Normalized:             "normalized",
	Decomposed:             "decomposed",
	RatiosBuilt:            "ratios_built",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool {
	return s == InsufficientStatistics || s == RatiosBuilt
}

var transitions = map[State][]State{
	Unprocessed: {Normalizing},
	Normalizing: {InsufficientStatistics, Normalized},
	Normalized:  {Decomposed},
	Decomposed:  {RatiosBuilt},
}

// Advance moves s to next if the transition is allowed. States only move
// forward; a slice that was skipped stays skipped.
func (s *State) Advance(next State) error {
	for _, allowed := range transitions[*s] {
		if allowed == next {
			*s = next
			return nil
		}
	}
	return fmt.Errorf("invalid state transition %s -> %s", *s, next)
}
