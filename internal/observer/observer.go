// Package observer watches sensor streams for a motion goal to be reached.
//
// An observer starts Watching and moves exactly once to Observed or Missed.
// Hosts feed every sample they read through Update and publish the
// ObservationResult returned on the terminal transition.
package observer

import (
	"time"

	rc "robot_control"
	"robot_control/internal/logger"
)

// State of an observer.
type State int

const (
	Watching State = iota
	Observed
	Missed
)

func (s State) String() string {
	switch s {
	case Observed:
		return string(rc.Observed)
	case Missed:
		return string(rc.Missed)
	default:
		return "Watching"
	}
}

// Observer is a goal monitor fed one sample at a time.
type Observer interface {
	Name() string
	State() State
	// Update consumes a sample. It returns a result and true only on the
	// call that moves the observer out of Watching. Samples of other kinds
	// and samples after termination are ignored.
	Update(msg rc.Message) (rc.ObservationResult, bool)
}

// progress is the bookkeeping shared by all observers.
type progress struct {
	state   State
	last    time.Time
	elapsed time.Duration
	updates int
	log     *logger.Logger
}

func newProgress(start time.Time, log *logger.Logger) progress {
	return progress{state: Watching, last: start, log: log}
}

// advance moves the clock to the sample time.
func (p *progress) advance(at time.Time) {
	p.updates++
	p.elapsed += at.Sub(p.last)
	p.last = at
}

func (p *progress) finish(name string, outcome State, value float64) rc.ObservationResult {
	p.state = outcome
	res := rc.ObservationResult{
		Observer: name,
		Outcome:  rc.Outcome(outcome.String()),
		Value:    value,
		Elapsed:  p.elapsed,
	}
	if p.log != nil {
		p.log.Infow("observation_complete",
			"observer", name,
			"outcome", res.Outcome,
			"value", value,
			"elapsed", p.elapsed,
			"updates", p.updates,
		)
	}
	return res
}

// Set holds the observers currently active in one worker.
type Set struct {
	active []Observer
}

func (s *Set) Add(o Observer) {
	s.active = append(s.active, o)
}

func (s *Set) Len() int {
	return len(s.active)
}

// Update feeds msg to every active observer, drops those that terminated and
// returns their results in registration order.
func (s *Set) Update(msg rc.Message) []rc.ObservationResult {
	var results []rc.ObservationResult
	kept := s.active[:0]
	for _, o := range s.active {
		if res, done := o.Update(msg); done {
			results = append(results, res)
			continue
		}
		if o.State() == Watching {
			kept = append(kept, o)
		}
	}
	for i := len(kept); i < len(s.active); i++ {
		s.active[i] = nil
	}
	s.active = kept
	return results
}

// Clear drops all observers without reporting.
func (s *Set) Clear() {
	s.active = nil
}
