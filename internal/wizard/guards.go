package wizard

import (
	"net/mail"
	"strings"
	"time"

	"flightclaim/internal/domain"
)

// MaxConnections is the number of connection-airport slots.
const MaxConnections = 3

func blank(s string) bool { return strings.TrimSpace(s) == "" }

func journeyComplete(d domain.ClaimDraft) bool {
	return d.IsDirect != nil && d.DepartureAirport.Populated() && d.ArrivalAirport.Populated()
}

func connectionsComplete(d domain.ClaimDraft) bool {
	if d.IsDirect != nil && *d.IsDirect {
		return true
	}
	if len(d.ConnectionAirports) > MaxConnections {
		return false
	}
	return len(populated(d.ConnectionAirports)) > 0
}

func segmentChosen(d domain.ClaimDraft) bool {
	if d.IsDirect != nil && *d.IsDirect {
		return true
	}
	if d.DisruptedSegment == nil {
		return false
	}
	return segmentDerivable(d, *d.DisruptedSegment)
}

func travelDateSet(d domain.ClaimDraft) bool {
	if blank(d.TravelDate) {
		return false
	}
	_, err := time.Parse(time.DateOnly, d.TravelDate)
	return err == nil
}

// flightIdentified follows ManualFlight: the manual fields count only in manual mode and
// the selected flight only outside it.
func flightIdentified(d domain.ClaimDraft) bool {
	if !d.ManualFlight {
		return d.SelectedFlight != nil
	}
	return !blank(d.FlightNumber) && !blank(d.Airline) && !blank(d.DepartureTime)
}

func problemTypeSet(d domain.ClaimDraft) bool {
	return d.ProblemType.Valid()
}

func delayDurationSet(d domain.ClaimDraft) bool {
	return d.ProblemType != domain.ProblemDelayed || !blank(d.DelayDuration)
}

func passengerComplete(d domain.ClaimDraft) bool {
	c := d.Contact
	if blank(c.FirstName) || blank(c.LastName) || blank(c.Phone) {
		return false
	}
	_, err := mail.ParseAddress(c.Email)
	return err == nil
}

func groupComplete(d domain.ClaimDraft) bool {
	if !d.GroupTravel {
		return true
	}
	if len(d.Passengers) == 0 {
		return false
	}
	for _, p := range d.Passengers {
		if blank(p.FirstName) || blank(p.LastName) {
			return false
		}
	}
	return true
}

func addressComplete(d domain.ClaimDraft) bool {
	a := d.Address
	return !blank(a.Street) && !blank(a.City) && !blank(a.PostalCode) && !blank(a.Country)
}

func bookingReferenceSet(d domain.ClaimDraft) bool { return !blank(d.BookingReference) }

func signatureSet(d domain.ClaimDraft) bool { return !blank(d.Signature) }
