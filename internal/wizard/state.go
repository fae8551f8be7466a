package wizard

import (
	"errors"
	"fmt"

	"flightclaim/internal/domain"
)

var (
	// ErrTerminal is returned for any mutation attempted after the claim was submitted.
	ErrTerminal = errors.New("wizard is complete")
	// ErrIncomplete is returned when the current step's guard does not pass.
	ErrIncomplete = errors.New("step incomplete")
	// ErrSubmitRequired is returned when advancing from the submit step without a submission.
	ErrSubmitRequired = errors.New("submission required")
)

// State is one wizard session: the current step, the draft and the mode flags.
type State struct {
	Step      StepID            `json:"step"`
	Flags     Flags             `json:"flags"`
	Draft     domain.ClaimDraft `json:"draft"`
	ClaimID   string            `json:"claim_id,omitempty"`
	Completed bool              `json:"completed"`
}

// New starts a regular wizard at the journey step.
func New(seed domain.ClaimDraft) State {
	return State{Step: StepJourney, Draft: seed.Clone()}
}

// NewFastTrack starts a wizard at the fast-track entry step with a prefilled draft. The
// journey endpoints are treated as already confirmed.
func NewFastTrack(seed domain.ClaimDraft) State {
	d := seed.Clone()
	snapshotJourney(&d)
	return State{Step: FastTrackEntry, Flags: Flags{FastTrack: true}, Draft: d}
}

// Terminal reports whether the claim has been submitted.
func (s State) Terminal() bool {
	return s.Completed || s.Step == StepDone
}

// CanAdvance evaluates the current step's guard.
func (s State) CanAdvance() bool {
	return CanAdvance(s.Step, s.Draft)
}

// Apply reduces one action into the draft.
func (s State) Apply(a Action) (State, error) {
	if s.Terminal() {
		return s, ErrTerminal
	}
	d, err := Reduce(s.Draft, a)
	if err != nil {
		return s, err
	}
	s.Draft = d
	return s, nil
}

// Advance moves to the next visible step. Leaving the journey step snapshots the
// endpoints as the full journey. The submit step cannot be left through Advance.
func (s State) Advance() (State, error) {
	if s.Terminal() {
		return s, ErrTerminal
	}
	if !s.CanAdvance() {
		return s, fmt.Errorf("%w: %s", ErrIncomplete, s.Step)
	}
	if s.Step == SubmitStep {
		return s, ErrSubmitRequired
	}
	s.Draft = s.Draft.Clone()
	if s.Step == StepJourney {
		snapshotJourney(&s.Draft)
		reconcileSegment(&s.Draft)
		if seg := s.Draft.DisruptedSegment; seg != nil {
			s.Draft.DepartureAirport, s.Draft.ArrivalAirport = seg.From, seg.To
		}
	}
	s.Step = Next(s.Step, s.Draft, s.Flags)
	return s, nil
}

// Back moves to the previous visible step. ok is false when the wizard is at its entry
// step, where the caller leaves the wizard, or when it is terminal.
func (s State) Back() (State, bool) {
	if s.Terminal() {
		return s, false
	}
	prev, ok := Prev(s.Step, s.Draft, s.Flags)
	if !ok {
		return s, false
	}
	s.Step = prev
	if prev == StepJourney {
		s.Draft = s.Draft.Clone()
		restoreWorkingSegment(&s.Draft)
	}
	return s, true
}

// Complete records a successful submission and freezes the draft.
func (s State) Complete(claimID string) (State, error) {
	if s.Terminal() {
		return s, ErrTerminal
	}
	if s.Step != SubmitStep {
		return s, fmt.Errorf("%w: submit from %s", ErrInvalidAction, s.Step)
	}
	if !s.CanAdvance() {
		return s, fmt.Errorf("%w: %s", ErrIncomplete, s.Step)
	}
	s.Step = StepDone
	s.ClaimID = claimID
	s.Completed = true
	return s, nil
}

func snapshotJourney(d *domain.ClaimDraft) {
	d.FullJourneyDeparture = d.DepartureAirport
	d.FullJourneyArrival = d.ArrivalAirport
}
