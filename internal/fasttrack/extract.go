// Package fasttrack extracts journey details from an uploaded boarding pass so the
// wizard can start at flight selection.
package fasttrack

import (
	"context"
	"errors"
	"strings"

	"flightclaim/internal/domain"
)

// ErrNoJourney is returned when nothing usable could be read from the document.
var ErrNoJourney = errors.New("no journey found on boarding pass")

// Extraction is what was read from a boarding pass.
type Extraction struct {
	Departure          domain.Airport `json:"departure"`
	Arrival            domain.Airport `json:"arrival"`
	FlightNumber       string         `json:"flight_number,omitempty"`
	Airline            string         `json:"airline,omitempty"`
	TravelDate         string         `json:"travel_date,omitempty"`
	PassengerFirstName string         `json:"passenger_first_name,omitempty"`
	PassengerLastName  string         `json:"passenger_last_name,omitempty"`
	BookingReference   string         `json:"booking_reference,omitempty"`
}

type Extractor interface {
	Extract(ctx context.Context, contentType string, data []byte) (Extraction, error)
}

// MockExtractor returns a fixed extraction regardless of input.
type MockExtractor struct {
	Result Extraction
}

func (m MockExtractor) Extract(ctx context.Context, _ string, data []byte) (Extraction, error) {
	if err := ctx.Err(); err != nil {
		return Extraction{}, err
	}
	if len(data) == 0 || !m.Result.Departure.Populated() || !m.Result.Arrival.Populated() {
		return Extraction{}, ErrNoJourney
	}
	return m.Result, nil
}

// Seed builds the draft a fast-track wizard starts from. The journey is treated as
// direct between the extracted endpoints and the boarding pass is already stored.
func (e Extraction) Seed(boardingPassURL string) domain.ClaimDraft {
	direct := true
	d := domain.ClaimDraft{
		IsDirect:         &direct,
		DepartureAirport: e.Departure,
		ArrivalAirport:   e.Arrival,
		TravelDate:       e.TravelDate,
		BookingReference: strings.TrimSpace(e.BookingReference),
		BoardingPass:     domain.Document{URL: boardingPassURL},
	}
	d.Contact.FirstName = e.PassengerFirstName
	d.Contact.LastName = e.PassengerLastName
	if e.FlightNumber != "" {
		d.ManualFlight = true
		d.FlightNumber = strings.ToUpper(e.FlightNumber)
		d.Airline = e.Airline
	}
	return d
}
