package domain

// Airport is the lookup record returned by the airport search collaborator.
type Airport struct {
	IATA             string `json:"iata"`
	ICAO             string `json:"icao,omitempty"`
	Name             string `json:"name,omitempty"`
	MunicipalityName string `json:"municipalityName,omitempty"`
	CountryCode      string `json:"countryCode,omitempty"`
	Label            string `json:"label,omitempty"`
}

// Populated reports whether the airport slot has been filled in.
func (a Airport) Populated() bool {
	return a.IATA != "" || a.ICAO != ""
}

// Code returns the code used for lookups, preferring IATA.
func (a Airport) Code() string {
	if a.IATA != "" {
		return a.IATA
	}
	return a.ICAO
}

// Same compares two airports by code.
func (a Airport) Same(b Airport) bool {
	return a.Populated() && b.Populated() && a.Code() == b.Code()
}

// Segment is one departure→arrival leg of a journey.
type Segment struct {
	From Airport `json:"from"`
	To   Airport `json:"to"`
}

// Equal compares segments by airport code.
func (s Segment) Equal(o Segment) bool {
	return s.From.Same(o.From) && s.To.Same(o.To)
}

type Airline struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type FlightEndpoint struct {
	Airport   string `json:"airport"`
	Scheduled string `json:"scheduled" format:"date-time"`
	Terminal  string `json:"terminal,omitempty"`
}

// Flight is a structured record returned by the flight search collaborator.
type Flight struct {
	ID           string         `json:"id,omitempty"`
	FlightNumber string         `json:"flight_number"`
	Airline      Airline        `json:"airline"`
	Departure    FlightEndpoint `json:"departure"`
	Arrival      FlightEndpoint `json:"arrival"`
	Status       string         `json:"status,omitempty"`
}

type ProblemType string

const (
	ProblemDelayed   ProblemType = "delayed"
	ProblemCancelled ProblemType = "cancelled"
	ProblemRefused   ProblemType = "refused"
)

// Valid reports whether p is one of the known incident kinds.
func (p ProblemType) Valid() bool {
	switch p {
	case ProblemDelayed, ProblemCancelled, ProblemRefused:
		return true
	}
	return false
}

type DocumentKind string

const (
	DocumentBoardingPass DocumentKind = "boarding_pass"
	DocumentID           DocumentKind = "id_document"
)

func (k DocumentKind) Valid() bool {
	return k == DocumentBoardingPass || k == DocumentID
}

// PendingFile is a locally staged upload that has not been promoted to durable storage.
type PendingFile struct {
	Path        string `json:"path"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Document holds a pending local file and/or its resolved remote URL.
type Document struct {
	Pending *PendingFile `json:"pending,omitempty"`
	URL     string       `json:"url,omitempty"`
	Error   string       `json:"error,omitempty"`
}

type Contact struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	PhoneCountry string `json:"phone_country,omitempty"`
}

type Passenger struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
}

type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// ClaimDraft is the mutable aggregate for one in-progress claim.
type ClaimDraft struct {
	IsDirect           *bool     `json:"is_direct,omitempty"`
	ConnectionAirports []Airport `json:"connection_airports,omitempty"`

	FullJourneyDeparture Airport  `json:"full_journey_departure"`
	FullJourneyArrival   Airport  `json:"full_journey_arrival"`
	DisruptedSegment     *Segment `json:"disrupted_segment,omitempty"`

	DepartureAirport Airport `json:"departure_airport"`
	ArrivalAirport   Airport `json:"arrival_airport"`

	TravelDate string `json:"travel_date,omitempty" format:"date"`

	SelectedFlight *Flight `json:"selected_flight,omitempty"`
	ManualFlight   bool    `json:"manual_flight"`
	FlightNumber   string  `json:"flight_number,omitempty"`
	Airline        string  `json:"airline,omitempty"`
	DepartureTime  string  `json:"departure_time,omitempty"`

	ProblemType   ProblemType `json:"problem_type,omitempty"`
	DelayDuration string      `json:"delay_duration,omitempty"`
	RefusedReason string      `json:"refused_reason,omitempty"`

	Contact          Contact     `json:"contact"`
	GroupTravel      bool        `json:"group_travel"`
	Passengers       []Passenger `json:"passengers,omitempty"`
	Address          Address     `json:"address"`
	BookingReference string      `json:"booking_reference,omitempty"`
	Signature        string      `json:"signature,omitempty"`

	BoardingPass Document `json:"boarding_pass"`
	IDDocument   Document `json:"id_document"`

	AcceptedTerms   bool `json:"accepted_terms"`
	AcceptedPrivacy bool `json:"accepted_privacy"`

	AirlineContacted bool   `json:"airline_contacted"`
	AirlineResponse  string `json:"airline_response,omitempty"`
	SurveySource     string `json:"survey_source,omitempty"`
	SurveyComment    string `json:"survey_comment,omitempty"`
}

// Document returns a pointer to the draft document slot of the given kind.
func (d *ClaimDraft) Document(kind DocumentKind) *Document {
	switch kind {
	case DocumentBoardingPass:
		return &d.BoardingPass
	case DocumentID:
		return &d.IDDocument
	}
	return nil
}

// Clone returns a deep copy so reducers never share slices with their input.
func (d ClaimDraft) Clone() ClaimDraft {
	out := d
	if d.IsDirect != nil {
		v := *d.IsDirect
		out.IsDirect = &v
	}
	if d.ConnectionAirports != nil {
		out.ConnectionAirports = append([]Airport(nil), d.ConnectionAirports...)
	}
	if d.DisruptedSegment != nil {
		s := *d.DisruptedSegment
		out.DisruptedSegment = &s
	}
	if d.SelectedFlight != nil {
		f := *d.SelectedFlight
		out.SelectedFlight = &f
	}
	if d.Passengers != nil {
		out.Passengers = append([]Passenger(nil), d.Passengers...)
	}
	out.BoardingPass = d.BoardingPass.clone()
	out.IDDocument = d.IDDocument.clone()
	return out
}

func (d Document) clone() Document {
	if d.Pending != nil {
		p := *d.Pending
		d.Pending = &p
	}
	return d
}

// Claim is a submitted claim as stored by the claim-submission service.
type Claim struct {
	ID               string      `json:"id"`
	Status           string      `json:"status" enum:"submitted,reviewing,accepted,rejected"`
	FastTrack        bool        `json:"fast_track"`
	DepartureIATA    string      `json:"departure_iata"`
	ArrivalIATA      string      `json:"arrival_iata"`
	FlightNumber     string      `json:"flight_number,omitempty"`
	TravelDate       string      `json:"travel_date,omitempty"`
	ProblemType      ProblemType `json:"problem_type"`
	Email            string      `json:"email"`
	Phone            string      `json:"phone,omitempty"`
	BookingReference string      `json:"booking_reference,omitempty"`
	PayloadJSON      string      `json:"payload_json"`
	CreatedAt        string      `json:"created_at" format:"date-time"`
}

type ChatMessage struct {
	Role    string `json:"role" enum:"user,assistant,system"`
	Content string `json:"content"`
	TS      string `json:"ts,omitempty" format:"date-time"`
}

type ChatSession struct {
	ID           string        `json:"id"`
	Visitor      string        `json:"visitor,omitempty"`
	Messages     []ChatMessage `json:"messages,omitempty"`
	MessageCount int           `json:"message_count,omitempty"`
	CreatedAt    string        `json:"created_at" format:"date-time"`
	UpdatedAt    string        `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
