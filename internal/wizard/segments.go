package wizard

import "flightclaim/internal/domain"

func populated(airports []domain.Airport) []domain.Airport {
	out := make([]domain.Airport, 0, len(airports))
	for _, a := range airports {
		if a.Populated() {
			out = append(out, a)
		}
	}
	return out
}

// DeriveSegments chains departure → populated connections → arrival into consecutive
// legs. With no populated connection it returns the single leg (departure, arrival).
func DeriveSegments(departure domain.Airport, connections []domain.Airport, arrival domain.Airport) []domain.Segment {
	conns := populated(connections)
	if len(conns) == 0 {
		return []domain.Segment{{From: departure, To: arrival}}
	}
	segments := make([]domain.Segment, 0, len(conns)+1)
	segments = append(segments, domain.Segment{From: departure, To: conns[0]})
	for i := 0; i+1 < len(conns); i++ {
		segments = append(segments, domain.Segment{From: conns[i], To: conns[i+1]})
	}
	segments = append(segments, domain.Segment{From: conns[len(conns)-1], To: arrival})
	return segments
}

// Segments derives the selectable legs for a draft from its full-journey snapshot.
func Segments(d domain.ClaimDraft) []domain.Segment {
	return DeriveSegments(journeyDeparture(d), d.ConnectionAirports, journeyArrival(d))
}

// journeyDeparture falls back to the step-1 answer until the snapshot is taken.
func journeyDeparture(d domain.ClaimDraft) domain.Airport {
	if d.FullJourneyDeparture.Populated() {
		return d.FullJourneyDeparture
	}
	return d.DepartureAirport
}

func journeyArrival(d domain.ClaimDraft) domain.Airport {
	if d.FullJourneyArrival.Populated() {
		return d.FullJourneyArrival
	}
	return d.ArrivalAirport
}

func segmentDerivable(d domain.ClaimDraft, seg domain.Segment) bool {
	for _, s := range Segments(d) {
		if s.Equal(seg) {
			return true
		}
	}
	return false
}
