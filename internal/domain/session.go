package domain

import (
	"time"
)

// Step is the position of an interactive session in the draw flow.
type Step string

const (
	StepAwaitingCharacter Step = "awaiting_character"
	StepAwaitingText      Step = "awaiting_text"
	StepCompleted         Step = "completed"
	StepTimedOut          Step = "timed_out"
	StepCancelled         Step = "cancelled"
)

// Terminal reports whether no further transition is possible from s.
func (s Step) Terminal() bool {
	switch s {
	case StepCompleted, StepTimedOut, StepCancelled:
		return true
	}
	return false
}

// Session is the ephemeral record driving the "pick a character, then type
// text" flow. It never points at the identity's RenderState; the flow merges
// its result into the state store only on completion.
type Session struct {
	ID        string    `json:"id"`
	Identity  Identity  `json:"identity"`
	Step      Step      `json:"step"`
	Character string    `json:"character,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Deadline  time.Time `json:"deadline"`
}

// Expired reports whether the deadline passed at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.Deadline)
}

// Remaining returns the time left before the deadline, or 0.
func (s *Session) Remaining(now time.Time) time.Duration {
	d := s.Deadline.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
