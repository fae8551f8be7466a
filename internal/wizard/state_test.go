package wizard

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flightclaim/internal/domain"
)

func intPtr(v int) *int { return &v }

func apply(t *testing.T, s State, actions ...Action) State {
	t.Helper()
	for _, a := range actions {
		var err error
		s, err = s.Apply(a)
		require.NoError(t, err, "apply %s", a.Type)
	}
	return s
}

func advance(t *testing.T, s State) State {
	t.Helper()
	next, err := s.Advance()
	require.NoError(t, err, "advance from %s", s.Step)
	return next
}

func TestDirectCancelledScenarioVisitsExpectedSteps(t *testing.T) {
	s := New(domain.ClaimDraft{})
	visited := []StepID{s.Step}
	answers := map[StepID][]Action{
		StepJourney: {
			{Type: ActionSetDirect, Enabled: boolPtr(true)},
			{Type: ActionSetDeparture, Airport: &lhr},
			{Type: ActionSetArrival, Airport: &jfk},
		},
		StepTravelDate: {{Type: ActionSetTravelDate, Value: "2024-05-01"}},
		StepFlight: {{Type: ActionSelectFlight, Flight: &domain.Flight{
			FlightNumber: "BA117",
			Airline:      domain.Airline{Code: "BA", Name: "British Airways"},
			Departure:    domain.FlightEndpoint{Airport: "LHR", Scheduled: "2024-05-01T08:25:00Z"},
			Arrival:      domain.FlightEndpoint{Airport: "JFK", Scheduled: "2024-05-01T11:20:00Z"},
		}}},
		StepProblemType: {{Type: ActionSetProblemType, Value: string(domain.ProblemCancelled)}},
		StepPassenger: {{Type: ActionSetContact, Contact: &domain.Contact{
			FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Phone: "07700 900123", PhoneCountry: "gb",
		}}},
		StepAddress: {{Type: ActionSetAddress, Address: &domain.Address{
			Street: "1 Main St", City: "London", PostalCode: "N1 1AA", Country: "GB",
		}}},
		StepBookingReference: {{Type: ActionSetBookingReference, Value: " ABC123 "}},
		StepSignature:        {{Type: ActionSetSignature, Value: "data:image/png;base64,iVBORw0KGgo="}},
		StepTerms:            {{Type: ActionAcceptTerms, Enabled: boolPtr(true)}},
		StepPrivacy:          {{Type: ActionAcceptPrivacy, Enabled: boolPtr(true)}},
	}

	for s.Step != SubmitStep {
		s = apply(t, s, answers[s.Step]...)
		s = advance(t, s)
		visited = append(visited, s.Step)
	}
	s = apply(t, s, answers[s.Step]...)
	_, err := s.Advance()
	require.ErrorIs(t, err, ErrSubmitRequired)

	s, err = s.Complete("claim-1")
	require.NoError(t, err)
	visited = append(visited, s.Step)

	want := []StepID{1, 4, 5, 6, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19}
	assert.Equal(t, want, visited)
	assert.Equal(t, "ABC123", s.Draft.BookingReference)
	assert.Equal(t, lhr, s.Draft.FullJourneyDeparture)
	assert.Equal(t, jfk, s.Draft.FullJourneyArrival)
	assert.True(t, s.Terminal())

	_, err = s.Apply(Action{Type: ActionSetSignature, Value: "x"})
	assert.ErrorIs(t, err, ErrTerminal)
	_, err = s.Advance()
	assert.ErrorIs(t, err, ErrTerminal)
	_, ok := s.Back()
	assert.False(t, ok)
}

func TestAdvanceRefusedWhenGuardFails(t *testing.T) {
	s := New(domain.ClaimDraft{})
	_, err := s.Advance()
	require.ErrorIs(t, err, ErrIncomplete)

	s = apply(t, s, Action{Type: ActionSetDirect, Enabled: boolPtr(true)}, Action{Type: ActionSetDeparture, Airport: &lhr})
	_, err = s.Advance()
	require.ErrorIs(t, err, ErrIncomplete)
}

func TestBackFromEntryLeavesWizard(t *testing.T) {
	s := New(domain.ClaimDraft{})
	_, ok := s.Back()
	assert.False(t, ok)
}

func indirectState(t *testing.T, conns ...domain.Airport) State {
	t.Helper()
	s := New(domain.ClaimDraft{})
	s = apply(t, s,
		Action{Type: ActionSetDirect, Enabled: boolPtr(false)},
		Action{Type: ActionSetDeparture, Airport: &lhr},
		Action{Type: ActionSetArrival, Airport: &jfk},
	)
	s = advance(t, s)
	require.Equal(t, StepConnections, s.Step)
	for i, c := range conns {
		c := c
		s = apply(t, s, Action{Type: ActionSetConnection, Index: intPtr(i), Airport: &c})
	}
	return s
}

func TestSelectSegmentAliasesWorkingSegment(t *testing.T) {
	s := indirectState(t, cdg, fra)
	s = advance(t, s)
	require.Equal(t, StepDisruptedSegment, s.Step)

	segs := Segments(s.Draft)
	require.Len(t, segs, 3)
	s = apply(t, s, Action{Type: ActionSelectSegment, Segment: &segs[1]})

	assert.Equal(t, cdg, s.Draft.DepartureAirport)
	assert.Equal(t, fra, s.Draft.ArrivalAirport)
	assert.Equal(t, lhr, s.Draft.FullJourneyDeparture)
	assert.Equal(t, jfk, s.Draft.FullJourneyArrival)
	assert.Equal(t, StepTravelDate, advance(t, s).Step)
}

func TestSelectSegmentRejectsUnknownLeg(t *testing.T) {
	s := indirectState(t, cdg)
	s = advance(t, s)
	_, err := s.Apply(Action{Type: ActionSelectSegment, Segment: &domain.Segment{From: lhr, To: fra}})
	assert.True(t, errors.Is(err, ErrInvalidAction))
}

func TestRemovingConnectionInvalidatesSegment(t *testing.T) {
	s := indirectState(t, cdg, fra)
	s = advance(t, s)
	seg := domain.Segment{From: cdg, To: fra}
	s = apply(t, s, Action{Type: ActionSelectSegment, Segment: &seg})

	back, ok := s.Back()
	require.True(t, ok)
	require.Equal(t, StepJourney, back.Step)
	assert.Equal(t, lhr, back.Draft.DepartureAirport, "journey step shows the full journey")

	s = apply(t, s, Action{Type: ActionRemoveConnection, Index: intPtr(1)})
	assert.Nil(t, s.Draft.DisruptedSegment)
	assert.Equal(t, lhr, s.Draft.DepartureAirport)
	assert.Equal(t, jfk, s.Draft.ArrivalAirport)
	assert.False(t, s.CanAdvance())
}

func TestCompatibleConnectionEditKeepsSegment(t *testing.T) {
	s := indirectState(t, cdg, fra)
	s = advance(t, s)
	seg := domain.Segment{From: lhr, To: cdg}
	s = apply(t, s, Action{Type: ActionSelectSegment, Segment: &seg})

	ams := domain.Airport{IATA: "AMS"}
	s = apply(t, s, Action{Type: ActionSetConnection, Index: intPtr(1), Airport: &ams})
	require.NotNil(t, s.Draft.DisruptedSegment)
	assert.True(t, s.Draft.DisruptedSegment.Equal(seg))
}

func TestSwitchingToDirectClearsSegment(t *testing.T) {
	s := indirectState(t, cdg)
	s = advance(t, s)
	seg := domain.Segment{From: cdg, To: jfk}
	s = apply(t, s, Action{Type: ActionSelectSegment, Segment: &seg})
	s = apply(t, s, Action{Type: ActionSetDirect, Enabled: boolPtr(true)})

	assert.Nil(t, s.Draft.DisruptedSegment)
	assert.Equal(t, lhr, s.Draft.DepartureAirport)
}

func TestReduceDoesNotMutateInput(t *testing.T) {
	d := domain.ClaimDraft{ConnectionAirports: []domain.Airport{cdg}}
	out, err := Reduce(d, Action{Type: ActionSetConnection, Index: intPtr(0), Airport: &fra})
	require.NoError(t, err)
	assert.Equal(t, cdg, d.ConnectionAirports[0])
	assert.Equal(t, fra, out.ConnectionAirports[0])
}

func TestReduceRejectsInvalidActions(t *testing.T) {
	cases := []Action{
		{Type: "bogus"},
		{Type: ActionSetDirect},
		{Type: ActionSetConnection, Index: intPtr(3), Airport: &cdg},
		{Type: ActionRemoveConnection, Index: intPtr(0)},
		{Type: ActionSetTravelDate, Value: "01/05/2024"},
		{Type: ActionSetProblemType, Value: "lost_luggage"},
		{Type: ActionSetDelayDuration, Value: "3h"},
		{Type: ActionSetDocumentURL, Document: "passport", Value: "https://x"},
		{Type: ActionSetPassengers, Passengers: []domain.Passenger{{FirstName: "A", LastName: "B"}}},
	}
	for _, a := range cases {
		_, err := Reduce(domain.ClaimDraft{}, a)
		assert.ErrorIs(t, err, ErrInvalidAction, "action %s", a.Type)
	}
}

func TestProblemTypeChangeClearsDependentAnswers(t *testing.T) {
	d, err := Reduce(domain.ClaimDraft{}, Action{Type: ActionSetProblemType, Value: "delayed"})
	require.NoError(t, err)
	d, err = Reduce(d, Action{Type: ActionSetDelayDuration, Value: "4h+"})
	require.NoError(t, err)
	d, err = Reduce(d, Action{Type: ActionSetProblemType, Value: "cancelled"})
	require.NoError(t, err)
	assert.Empty(t, d.DelayDuration)
}

func TestManualEntryAndSelectedFlightAreExclusive(t *testing.T) {
	d, err := Reduce(domain.ClaimDraft{}, Action{Type: ActionSelectFlight, Flight: &domain.Flight{FlightNumber: "AF1"}})
	require.NoError(t, err)
	assert.True(t, CanAdvance(StepFlight, d))

	d, err = Reduce(d, Action{Type: ActionUseManualEntry, Enabled: boolPtr(true)})
	require.NoError(t, err)
	assert.Nil(t, d.SelectedFlight)
	assert.False(t, CanAdvance(StepFlight, d))

	d, err = Reduce(d, Action{Type: ActionSetManualFlight, Manual: &ManualFlight{FlightNumber: "af 1", Airline: "Air France", DepartureTime: "09:30"}})
	require.NoError(t, err)
	assert.Equal(t, "AF 1", d.FlightNumber)
	assert.True(t, CanAdvance(StepFlight, d))
}

func TestLeavingManualEntryDropsManualFlight(t *testing.T) {
	d, err := Reduce(domain.ClaimDraft{}, Action{Type: ActionSetManualFlight, Manual: &ManualFlight{FlightNumber: "BA117", Airline: "BA", DepartureTime: "10:00"}})
	require.NoError(t, err)
	require.True(t, CanAdvance(StepFlight, d))

	d, err = Reduce(d, Action{Type: ActionUseManualEntry, Enabled: boolPtr(false)})
	require.NoError(t, err)
	assert.False(t, d.ManualFlight)
	assert.Nil(t, d.SelectedFlight)
	assert.Empty(t, d.FlightNumber)
	assert.Empty(t, d.Airline)
	assert.Empty(t, d.DepartureTime)
	assert.False(t, CanAdvance(StepFlight, d))
}

func TestFlightGuardFollowsManualFlag(t *testing.T) {
	stale := domain.ClaimDraft{FlightNumber: "BA117", Airline: "BA", DepartureTime: "10:00"}
	assert.False(t, CanAdvance(StepFlight, stale), "manual fields outside manual mode")

	stale = domain.ClaimDraft{ManualFlight: true, SelectedFlight: &domain.Flight{FlightNumber: "AF1"}}
	assert.False(t, CanAdvance(StepFlight, stale), "selected flight in manual mode")
}

func TestFastTrackStateStartsAtEntry(t *testing.T) {
	s := NewFastTrack(domain.ClaimDraft{DepartureAirport: lhr, ArrivalAirport: jfk, IsDirect: boolPtr(true)})
	assert.Equal(t, FastTrackEntry, s.Step)
	assert.True(t, s.Flags.FastTrack)
	assert.Equal(t, lhr, s.Draft.FullJourneyDeparture)
	_, ok := s.Back()
	assert.False(t, ok)
}

func TestDeriveSegments(t *testing.T) {
	assert.Equal(t,
		[]domain.Segment{{From: lhr, To: cdg}, {From: cdg, To: fra}, {From: fra, To: jfk}},
		DeriveSegments(lhr, []domain.Airport{cdg, fra}, jfk))
	assert.Equal(t,
		[]domain.Segment{{From: lhr, To: jfk}},
		DeriveSegments(lhr, nil, jfk))
	assert.Equal(t,
		[]domain.Segment{{From: lhr, To: jfk}},
		DeriveSegments(lhr, []domain.Airport{{}, {}}, jfk))
	assert.Equal(t,
		[]domain.Segment{{From: lhr, To: fra}, {From: fra, To: jfk}},
		DeriveSegments(lhr, []domain.Airport{{}, fra}, jfk))
}
