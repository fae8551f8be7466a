package wizard

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"flightclaim/internal/domain"
)

// ErrInvalidAction is returned for actions that are malformed or not applicable to the draft.
var ErrInvalidAction = errors.New("invalid action")

type ActionType string

const (
	ActionSetDirect           ActionType = "set_direct"
	ActionSetDeparture        ActionType = "set_departure_airport"
	ActionSetArrival          ActionType = "set_arrival_airport"
	ActionSetConnection       ActionType = "set_connection_airport"
	ActionRemoveConnection    ActionType = "remove_connection_airport"
	ActionSelectSegment       ActionType = "select_segment"
	ActionSetTravelDate       ActionType = "set_travel_date"
	ActionSelectFlight        ActionType = "select_flight"
	ActionUseManualEntry      ActionType = "use_manual_entry"
	ActionSetManualFlight     ActionType = "set_manual_flight"
	ActionSetProblemType      ActionType = "set_problem_type"
	ActionSetDelayDuration    ActionType = "set_delay_duration"
	ActionSetRefusedReason    ActionType = "set_refused_reason"
	ActionSetContact          ActionType = "set_contact"
	ActionSetGroupTravel      ActionType = "set_group_travel"
	ActionSetPassengers       ActionType = "set_passengers"
	ActionSetAddress          ActionType = "set_address"
	ActionSetBookingReference ActionType = "set_booking_reference"
	ActionSetSignature        ActionType = "set_signature"
	ActionSetDocumentURL      ActionType = "set_document_url"
	ActionStageDocument       ActionType = "stage_document"
	ActionClearDocument       ActionType = "clear_document"
	ActionSetAirlineContact   ActionType = "set_airline_contact"
	ActionSetSurvey           ActionType = "set_survey"
	ActionAcceptTerms         ActionType = "accept_terms"
	ActionAcceptPrivacy       ActionType = "accept_privacy"
)

// ManualFlight carries the three manually entered flight fields.
type ManualFlight struct {
	FlightNumber  string `json:"flight_number"`
	Airline       string `json:"airline"`
	DepartureTime string `json:"departure_time"`
}

// Action is one draft mutation. Only the fields relevant to Type are read.
type Action struct {
	Type       ActionType          `json:"type"`
	Enabled    *bool               `json:"enabled,omitempty"`
	Airport    *domain.Airport     `json:"airport,omitempty"`
	Index      *int                `json:"index,omitempty"`
	Segment    *domain.Segment     `json:"segment,omitempty"`
	Flight     *domain.Flight      `json:"flight,omitempty"`
	Manual     *ManualFlight       `json:"manual,omitempty"`
	Value      string              `json:"value,omitempty"`
	Comment    string              `json:"comment,omitempty"`
	Contact    *domain.Contact     `json:"contact,omitempty"`
	Passengers []domain.Passenger  `json:"passengers,omitempty"`
	Address    *domain.Address     `json:"address,omitempty"`
	Document   domain.DocumentKind `json:"document,omitempty"`
	Pending    *domain.PendingFile `json:"-"`
}

// Internal reports whether the action may only be issued by the service itself.
func (a Action) Internal() bool {
	return a.Type == ActionStageDocument
}

type reducer func(d *domain.ClaimDraft, a Action) error

var reducers = map[ActionType]reducer{
	ActionSetDirect:           setDirect,
	ActionSetDeparture:        setDeparture,
	ActionSetArrival:          setArrival,
	ActionSetConnection:       setConnection,
	ActionRemoveConnection:    removeConnection,
	ActionSelectSegment:       selectSegment,
	ActionSetTravelDate:       setTravelDate,
	ActionSelectFlight:        selectFlight,
	ActionUseManualEntry:      useManualEntry,
	ActionSetManualFlight:     setManualFlight,
	ActionSetProblemType:      setProblemType,
	ActionSetDelayDuration:    setDelayDuration,
	ActionSetRefusedReason:    setRefusedReason,
	ActionSetContact:          setContact,
	ActionSetGroupTravel:      setGroupTravel,
	ActionSetPassengers:       setPassengers,
	ActionSetAddress:          setAddress,
	ActionSetBookingReference: func(d *domain.ClaimDraft, a Action) error { d.BookingReference = strings.TrimSpace(a.Value); return nil },
	ActionSetSignature:        func(d *domain.ClaimDraft, a Action) error { d.Signature = a.Value; return nil },
	ActionSetDocumentURL:      setDocumentURL,
	ActionStageDocument:       stageDocument,
	ActionClearDocument:       clearDocument,
	ActionSetAirlineContact:   setAirlineContact,
	ActionSetSurvey:           func(d *domain.ClaimDraft, a Action) error { d.SurveySource, d.SurveyComment = a.Value, a.Comment; return nil },
	ActionAcceptTerms:         func(d *domain.ClaimDraft, a Action) error { d.AcceptedTerms = enabled(a); return nil },
	ActionAcceptPrivacy:       func(d *domain.ClaimDraft, a Action) error { d.AcceptedPrivacy = enabled(a); return nil },
}

// Reduce applies one action to a copy of the draft and returns the copy. The input is
// never modified, so a sequence of actions can be replayed from any earlier draft.
func Reduce(d domain.ClaimDraft, a Action) (domain.ClaimDraft, error) {
	fn, ok := reducers[a.Type]
	if !ok {
		return d, fmt.Errorf("%w: unknown action type %q", ErrInvalidAction, a.Type)
	}
	next := d.Clone()
	if err := fn(&next, a); err != nil {
		return d, err
	}
	reconcileSegment(&next)
	return next, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidAction, fmt.Sprintf(format, args...))
}

func enabled(a Action) bool {
	return a.Enabled == nil || *a.Enabled
}

func setDirect(d *domain.ClaimDraft, a Action) error {
	if a.Enabled == nil {
		return invalid("enabled is required")
	}
	direct := *a.Enabled
	d.IsDirect = &direct
	if direct {
		d.DisruptedSegment = nil
		restoreWorkingSegment(d)
	}
	return nil
}

func setDeparture(d *domain.ClaimDraft, a Action) error {
	if a.Airport == nil || !a.Airport.Populated() {
		return invalid("airport is required")
	}
	d.DepartureAirport = *a.Airport
	return nil
}

func setArrival(d *domain.ClaimDraft, a Action) error {
	if a.Airport == nil || !a.Airport.Populated() {
		return invalid("airport is required")
	}
	d.ArrivalAirport = *a.Airport
	return nil
}

func connectionIndex(a Action) (int, error) {
	if a.Index == nil {
		return 0, invalid("index is required")
	}
	i := *a.Index
	if i < 0 || i >= MaxConnections {
		return 0, invalid("index %d out of range 0..%d", i, MaxConnections-1)
	}
	return i, nil
}

func setConnection(d *domain.ClaimDraft, a Action) error {
	i, err := connectionIndex(a)
	if err != nil {
		return err
	}
	if a.Airport == nil {
		return invalid("airport is required")
	}
	for len(d.ConnectionAirports) <= i {
		d.ConnectionAirports = append(d.ConnectionAirports, domain.Airport{})
	}
	d.ConnectionAirports[i] = *a.Airport
	return nil
}

func removeConnection(d *domain.ClaimDraft, a Action) error {
	i, err := connectionIndex(a)
	if err != nil {
		return err
	}
	if i >= len(d.ConnectionAirports) {
		return invalid("no connection airport at index %d", i)
	}
	d.ConnectionAirports = append(d.ConnectionAirports[:i], d.ConnectionAirports[i+1:]...)
	return nil
}

func selectSegment(d *domain.ClaimDraft, a Action) error {
	if a.Segment == nil {
		return invalid("segment is required")
	}
	if d.IsDirect != nil && *d.IsDirect {
		return invalid("direct journeys have a single segment")
	}
	if !segmentDerivable(*d, *a.Segment) {
		return invalid("segment %s-%s is not part of the journey", a.Segment.From.Code(), a.Segment.To.Code())
	}
	seg := *a.Segment
	if d.DisruptedSegment == nil || !d.DisruptedSegment.Equal(seg) {
		d.SelectedFlight = nil
	}
	d.DisruptedSegment = &seg
	d.DepartureAirport = seg.From
	d.ArrivalAirport = seg.To
	return nil
}

func setTravelDate(d *domain.ClaimDraft, a Action) error {
	v := strings.TrimSpace(a.Value)
	if _, err := time.Parse(time.DateOnly, v); err != nil {
		return invalid("travel date must be YYYY-MM-DD")
	}
	if v != d.TravelDate {
		d.SelectedFlight = nil
	}
	d.TravelDate = v
	return nil
}

func selectFlight(d *domain.ClaimDraft, a Action) error {
	if a.Flight == nil || strings.TrimSpace(a.Flight.FlightNumber) == "" {
		return invalid("flight is required")
	}
	f := *a.Flight
	d.SelectedFlight = &f
	d.ManualFlight = false
	d.FlightNumber, d.Airline, d.DepartureTime = "", "", ""
	return nil
}

func useManualEntry(d *domain.ClaimDraft, a Action) error {
	d.ManualFlight = enabled(a)
	if d.ManualFlight {
		d.SelectedFlight = nil
	} else {
		d.FlightNumber, d.Airline, d.DepartureTime = "", "", ""
	}
	return nil
}

func setManualFlight(d *domain.ClaimDraft, a Action) error {
	if a.Manual == nil {
		return invalid("manual flight is required")
	}
	d.ManualFlight = true
	d.SelectedFlight = nil
	d.FlightNumber = strings.ToUpper(strings.TrimSpace(a.Manual.FlightNumber))
	d.Airline = strings.TrimSpace(a.Manual.Airline)
	d.DepartureTime = strings.TrimSpace(a.Manual.DepartureTime)
	return nil
}

func setProblemType(d *domain.ClaimDraft, a Action) error {
	p := domain.ProblemType(a.Value)
	if !p.Valid() {
		return invalid("problem type %q", a.Value)
	}
	d.ProblemType = p
	if p != domain.ProblemDelayed {
		d.DelayDuration = ""
	}
	if p != domain.ProblemRefused {
		d.RefusedReason = ""
	}
	return nil
}

func setDelayDuration(d *domain.ClaimDraft, a Action) error {
	if d.ProblemType != domain.ProblemDelayed {
		return invalid("delay duration only applies to delayed flights")
	}
	d.DelayDuration = strings.TrimSpace(a.Value)
	return nil
}

func setRefusedReason(d *domain.ClaimDraft, a Action) error {
	if d.ProblemType != domain.ProblemRefused {
		return invalid("refused reason only applies to denied boarding")
	}
	d.RefusedReason = strings.TrimSpace(a.Value)
	return nil
}

func setContact(d *domain.ClaimDraft, a Action) error {
	if a.Contact == nil {
		return invalid("contact is required")
	}
	c := *a.Contact
	c.Email = strings.TrimSpace(c.Email)
	c.PhoneCountry = strings.ToUpper(strings.TrimSpace(c.PhoneCountry))
	d.Contact = c
	return nil
}

func setGroupTravel(d *domain.ClaimDraft, a Action) error {
	d.GroupTravel = enabled(a)
	if !d.GroupTravel {
		d.Passengers = nil
	}
	return nil
}

func setPassengers(d *domain.ClaimDraft, a Action) error {
	if !d.GroupTravel && len(a.Passengers) > 0 {
		return invalid("passengers require group travel")
	}
	d.Passengers = append([]domain.Passenger(nil), a.Passengers...)
	return nil
}

func setAddress(d *domain.ClaimDraft, a Action) error {
	if a.Address == nil {
		return invalid("address is required")
	}
	d.Address = *a.Address
	return nil
}

func documentSlot(d *domain.ClaimDraft, a Action) (*domain.Document, error) {
	doc := d.Document(a.Document)
	if doc == nil {
		return nil, invalid("document kind %q", a.Document)
	}
	return doc, nil
}

func setDocumentURL(d *domain.ClaimDraft, a Action) error {
	doc, err := documentSlot(d, a)
	if err != nil {
		return err
	}
	if strings.TrimSpace(a.Value) == "" {
		return invalid("document url is required")
	}
	*doc = domain.Document{URL: a.Value}
	return nil
}

func stageDocument(d *domain.ClaimDraft, a Action) error {
	doc, err := documentSlot(d, a)
	if err != nil {
		return err
	}
	if a.Pending == nil {
		return invalid("pending file is required")
	}
	p := *a.Pending
	doc.Pending = &p
	doc.Error = ""
	return nil
}

func clearDocument(d *domain.ClaimDraft, a Action) error {
	doc, err := documentSlot(d, a)
	if err != nil {
		return err
	}
	*doc = domain.Document{}
	return nil
}

func setAirlineContact(d *domain.ClaimDraft, a Action) error {
	d.AirlineContacted = enabled(a)
	d.AirlineResponse = ""
	if d.AirlineContacted {
		d.AirlineResponse = a.Value
	}
	return nil
}

// reconcileSegment drops a disrupted segment that is no longer derivable from the
// current connection chain and points the working segment back at the full journey.
func reconcileSegment(d *domain.ClaimDraft) {
	if d.DisruptedSegment == nil {
		return
	}
	if d.IsDirect != nil && *d.IsDirect {
		d.DisruptedSegment = nil
		restoreWorkingSegment(d)
		return
	}
	if segmentDerivable(*d, *d.DisruptedSegment) {
		return
	}
	d.DisruptedSegment = nil
	d.SelectedFlight = nil
	restoreWorkingSegment(d)
}

func restoreWorkingSegment(d *domain.ClaimDraft) {
	if d.FullJourneyDeparture.Populated() {
		d.DepartureAirport = d.FullJourneyDeparture
	}
	if d.FullJourneyArrival.Populated() {
		d.ArrivalAirport = d.FullJourneyArrival
	}
}
