// Package debounce holds the quiescence state shared by both controllers:
// an event source marks the state dirty, a single timer re-checks after the
// current interval, and the owner acts only once per quiescent window.
package debounce

import "time"

type State struct {
	dirty      bool
	lastChange time.Time
	interval   time.Duration
	normal     time.Duration
}

// New starts with the fast interval so the initial replay burst from the
// directory is flushed quickly. The interval widens to normal on the first
// peer connection (or after the first fired action) and never narrows back.
func New(fast, normal time.Duration) *State {
	return &State{
		interval: fast,
		normal:   normal,
	}
}

// MarkDirty records a change at now and returns the delay after which the
// owner must re-arm its timer. Re-arming supersedes any pending fire.
func (s *State) MarkDirty(now time.Time) time.Duration {
	s.dirty = true
	s.lastChange = now
	return s.interval
}

// PeerConnected widens the interval to its normal value.
func (s *State) PeerConnected() {
	s.interval = s.normal
}

// OnTimerFire decides what the owner does when its timer fires at now:
// act=true means act exactly once, rearm > 0 means more changes arrived
// during the wait and the timer must be re-armed for the remaining time,
// act=false with rearm == 0 means a stale fire with nothing pending.
func (s *State) OnTimerFire(now time.Time) (act bool, rearm time.Duration) {
	if !s.dirty {
		return false, 0
	}
	if elapsed := now.Sub(s.lastChange); elapsed < s.interval {
		return false, s.interval - elapsed
	}
	s.dirty = false
	s.interval = s.normal
	return true, 0
}

func (s *State) Dirty() bool {
	return s.dirty
}

func (s *State) Interval() time.Duration {
	return s.interval
}
