package backoff

import (
	"math"
	"time"
)

// DefaultBase is used when a non-positive base interval is supplied
const DefaultBase = time.Second

// State is the backoff state for one logical connection.
// Invariant: Base <= Current <= Max.
type State struct {
	Base    time.Duration
	Max     time.Duration
	Current time.Duration
}

// New returns a normalised State positioned at its base interval
func New(base, max time.Duration) State {
	if base <= 0 {
		base = DefaultBase
	}
	if max < base {
		max = base
	}
	return State{Base: base, Max: max, Current: base}
}

// Next returns the wait for the current failure and the state for the following one.
// The interval doubles on each call and is capped at Max.
func (s State) Next() (time.Duration, State) {
	s = s.normalized()
	wait := s.Current

	next := s.Max
	if s.Current <= math.MaxInt64/2 {
		next = min(s.Current*2, s.Max)
	}
	s.Current = next

	return wait, s
}

// Reset returns the state with Current back at Base
func (s State) Reset() State {
	s = s.normalized()
	s.Current = s.Base
	return s
}

// normalized repairs zero values and states that violate the invariant
func (s State) normalized() State {
	if s.Base <= 0 {
		s.Base = DefaultBase
	}
	if s.Max < s.Base {
		s.Max = s.Base
	}
	if s.Current < s.Base {
		s.Current = s.Base
	}
	if s.Current > s.Max {
		s.Current = s.Max
	}
	return s
}
