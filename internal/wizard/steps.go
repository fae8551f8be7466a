// Package wizard implements the claim wizard's step flow: a declarative step graph,
// a walker that moves forward and backward over the visible steps, per-step advance
// guards and a reducer for draft mutations.
package wizard

import (
	"fmt"

	"flightclaim/internal/domain"
)

// StepID identifies a wizard step. Valid ids are 1..19.
type StepID int

const (
	StepJourney StepID = iota + 1
	StepConnections
	StepDisruptedSegment
	StepTravelDate
	StepFlight
	StepProblemType
	StepDelayDuration
	StepPassenger
	StepGroupPassengers
	StepAddress
	StepBookingReference
	StepSignature
	StepBoardingPass
	StepIDDocument
	StepAirlineContact
	StepSurvey
	StepTerms
	StepPrivacy
	StepDone
)

// FastTrackEntry is where an express boarding-pass upload lands, and the floor for
// backward motion while fast-track mode is active.
const FastTrackEntry = StepFlight

// SubmitStep is the last consenting step; advancing from it submits the claim.
const SubmitStep = StepPrivacy

var fastTrackSkip = map[StepID]bool{
	StepJourney:          true,
	StepConnections:      true,
	StepDisruptedSegment: true,
	StepTravelDate:       true,
	StepFlight:           true,
	StepBoardingPass:     true,
}

// Flags are mode switches that influence visibility but are not part of the draft.
type Flags struct {
	FastTrack bool `json:"fast_track"`
}

// Step is one node of the step graph.
type Step struct {
	ID   StepID
	Name string
	// Visible reports whether the walker may stop on this step.
	Visible func(d domain.ClaimDraft, f Flags) bool
	// CanAdvance reports whether the step's required input is present.
	CanAdvance func(d domain.ClaimDraft) bool
	// BackTo, when set, is where backward motion from this step lands.
	BackTo StepID
}

func always(domain.ClaimDraft, Flags) bool { return true }
func pass(domain.ClaimDraft) bool          { return true }

func notDirect(d domain.ClaimDraft, _ Flags) bool {
	return d.IsDirect == nil || !*d.IsDirect
}

func delayed(d domain.ClaimDraft, _ Flags) bool {
	return d.ProblemType == domain.ProblemDelayed
}

// Graph is an ordered list of steps indexed by id.
type Graph struct {
	steps []Step
}

// DefaultGraph is the claim wizard's step graph.
var DefaultGraph = NewGraph([]Step{
	{ID: StepJourney, Name: "journey", Visible: always, CanAdvance: journeyComplete},
	{ID: StepConnections, Name: "connections", Visible: notDirect, CanAdvance: connectionsComplete, BackTo: StepJourney},
	{ID: StepDisruptedSegment, Name: "disrupted_segment", Visible: notDirect, CanAdvance: segmentChosen, BackTo: StepJourney},
	{ID: StepTravelDate, Name: "travel_date", Visible: always, CanAdvance: travelDateSet},
	{ID: StepFlight, Name: "flight", Visible: always, CanAdvance: flightIdentified},
	{ID: StepProblemType, Name: "problem_type", Visible: always, CanAdvance: problemTypeSet},
	{ID: StepDelayDuration, Name: "delay_duration", Visible: delayed, CanAdvance: delayDurationSet},
	{ID: StepPassenger, Name: "passenger", Visible: always, CanAdvance: passengerComplete},
	{ID: StepGroupPassengers, Name: "group_passengers", Visible: always, CanAdvance: groupComplete},
	{ID: StepAddress, Name: "address", Visible: always, CanAdvance: addressComplete},
	{ID: StepBookingReference, Name: "booking_reference", Visible: always, CanAdvance: bookingReferenceSet},
	{ID: StepSignature, Name: "signature", Visible: always, CanAdvance: signatureSet},
	{ID: StepBoardingPass, Name: "boarding_pass", Visible: always, CanAdvance: pass},
	{ID: StepIDDocument, Name: "id_document", Visible: always, CanAdvance: pass},
	{ID: StepAirlineContact, Name: "airline_contact", Visible: always, CanAdvance: pass},
	{ID: StepSurvey, Name: "survey", Visible: always, CanAdvance: pass},
	{ID: StepTerms, Name: "terms", Visible: always, CanAdvance: func(d domain.ClaimDraft) bool { return d.AcceptedTerms }},
	{ID: StepPrivacy, Name: "privacy", Visible: always, CanAdvance: func(d domain.ClaimDraft) bool { return d.AcceptedPrivacy }},
	{ID: StepDone, Name: "done", Visible: always, CanAdvance: func(domain.ClaimDraft) bool { return false }},
})

// NewGraph builds a graph; steps must be given in id order starting at 1.
func NewGraph(steps []Step) Graph {
	for i, s := range steps {
		if int(s.ID) != i+1 {
			panic(fmt.Sprintf("wizard: step %d declared at position %d", s.ID, i+1))
		}
	}
	return Graph{steps: steps}
}

// Step returns the step with the given id.
func (g Graph) Step(id StepID) (Step, bool) {
	if id < 1 || int(id) > len(g.steps) {
		return Step{}, false
	}
	return g.steps[id-1], true
}

// Steps returns the declared steps in order.
func (g Graph) Steps() []Step {
	return append([]Step(nil), g.steps...)
}

func (g Graph) last() StepID { return StepID(len(g.steps)) }

func (g Graph) visible(id StepID, d domain.ClaimDraft, f Flags) bool {
	if f.FastTrack && fastTrackSkip[id] && id < g.last() {
		return false
	}
	s, ok := g.Step(id)
	return ok && s.Visible(d, f)
}

// Next returns the first visible step after cur. The terminal step has no successor.
func (g Graph) Next(cur StepID, d domain.ClaimDraft, f Flags) StepID {
	if cur >= g.last() {
		return g.last()
	}
	for s := cur + 1; s < g.last(); s++ {
		if g.visible(s, d, f) {
			return s
		}
	}
	return g.last()
}

// Prev returns the visible step before cur. ok is false when there is nowhere to go
// back to: at the entry step (the caller exits the wizard) and at the terminal step.
func (g Graph) Prev(cur StepID, d domain.ClaimDraft, f Flags) (StepID, bool) {
	floor := StepJourney
	if f.FastTrack {
		floor = FastTrackEntry
	}
	if cur >= g.last() || cur <= floor {
		return cur, false
	}
	if s, ok := g.Step(cur); ok && s.BackTo != 0 && s.BackTo >= floor && g.visible(s.BackTo, d, f) {
		return s.BackTo, true
	}
	for s := cur - 1; s > floor; s-- {
		if g.visible(s, d, f) {
			return s, true
		}
	}
	return floor, true
}

// CanAdvance evaluates the advance guard of the given step.
func (g Graph) CanAdvance(id StepID, d domain.ClaimDraft) bool {
	s, ok := g.Step(id)
	if !ok {
		return false
	}
	return s.CanAdvance(d)
}

// Path walks forward from the entry step and returns every step visited, assuming each
// step's guard passes. It is used for previews and diagnostics.
func (g Graph) Path(d domain.ClaimDraft, f Flags) []StepID {
	cur := StepJourney
	if f.FastTrack {
		cur = FastTrackEntry
	}
	path := []StepID{cur}
	for cur < g.last() {
		cur = g.Next(cur, d, f)
		path = append(path, cur)
	}
	return path
}

// Next, Prev and CanAdvance on the default graph.
func Next(cur StepID, d domain.ClaimDraft, f Flags) StepID { return DefaultGraph.Next(cur, d, f) }

func Prev(cur StepID, d domain.ClaimDraft, f Flags) (StepID, bool) {
	return DefaultGraph.Prev(cur, d, f)
}

func CanAdvance(id StepID, d domain.ClaimDraft) bool { return DefaultGraph.CanAdvance(id, d) }

// Name returns the step's short name, or "unknown".
func (id StepID) Name() string {
	if s, ok := DefaultGraph.Step(id); ok {
		return s.Name
	}
	return "unknown"
}

func (id StepID) String() string {
	return fmt.Sprintf("%d:%s", int(id), id.Name())
}
