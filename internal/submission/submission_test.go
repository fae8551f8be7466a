package submission

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flightclaim/internal/domain"
	"flightclaim/internal/wizard"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		phone, country, want string
	}{
		{"07700 900123", "GB", "+447700900123"},
		{"(0)6 12-34-56-78", "fr", "+33612345678"},
		{"+49 30 1234567", "GB", "+49301234567"},
		{"0049 30 1234567", "", "+49301234567"},
		{"555 0100", "US", "+15550100"},
		{"0123", "ZZ", "0123"},
		{"", "GB", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizePhone(tc.phone, tc.country), "%q/%q", tc.phone, tc.country)
	}
}

type fakePromoter struct {
	fail map[string]bool
	seen []string
}

func (f *fakePromoter) Promote(_ context.Context, p domain.PendingFile) (string, error) {
	f.seen = append(f.seen, p.Path)
	if f.fail[p.Path] {
		return "", errors.New("storage unavailable")
	}
	return "https://files.test/" + p.Filename, nil
}

func TestAssembleResolvesPendingBestEffort(t *testing.T) {
	p := &fakePromoter{fail: map[string]bool{"/staging/id.pdf": true}}
	a := Assembler{Promoter: p, DefaultCountry: "GB", Log: zerolog.Nop()}
	d := domain.ClaimDraft{
		Contact:      domain.Contact{Phone: "07700 900123"},
		BoardingPass: domain.Document{Pending: &domain.PendingFile{Path: "/staging/bp.png", Filename: "bp.png"}},
		IDDocument:   domain.Document{Pending: &domain.PendingFile{Path: "/staging/id.pdf", Filename: "id.pdf"}},
	}

	sub, resolved := a.Assemble(context.Background(), d, true)

	assert.True(t, sub.FastTrack)
	assert.Equal(t, "+447700900123", sub.Claim.Contact.Phone)
	assert.Equal(t, domain.Document{URL: "https://files.test/bp.png"}, sub.Claim.BoardingPass)
	assert.Equal(t, domain.Document{}, sub.Claim.IDDocument)

	assert.Equal(t, "https://files.test/bp.png", resolved.BoardingPass.URL)
	assert.Nil(t, resolved.BoardingPass.Pending)
	require.NotNil(t, resolved.IDDocument.Pending)
	assert.Equal(t, "storage unavailable", resolved.IDDocument.Error)
	assert.Equal(t, "07700 900123", resolved.Contact.Phone)
	assert.NotNil(t, d.BoardingPass.Pending, "input draft untouched")
}

func TestAssembleKeepsOnlyAuthoritativeFlight(t *testing.T) {
	a := Assembler{Log: zerolog.Nop()}
	d := domain.ClaimDraft{
		SelectedFlight: &domain.Flight{FlightNumber: "BA117"},
		FlightNumber:   "stale",
	}
	sub, _ := a.Assemble(context.Background(), d, false)
	require.NotNil(t, sub.Claim.SelectedFlight)
	assert.Empty(t, sub.Claim.FlightNumber)

	d = domain.ClaimDraft{ManualFlight: true, FlightNumber: "AF1", Airline: "Air France", DepartureTime: "09:30", SelectedFlight: &domain.Flight{}}
	sub, _ = a.Assemble(context.Background(), d, false)
	assert.Nil(t, sub.Claim.SelectedFlight)
	assert.Equal(t, "AF1", sub.Claim.FlightNumber)
}

func TestAssembleAfterManualEntryToggle(t *testing.T) {
	d, err := wizard.Reduce(domain.ClaimDraft{}, wizard.Action{Type: wizard.ActionSetManualFlight, Manual: &wizard.ManualFlight{FlightNumber: "BA117", Airline: "BA", DepartureTime: "10:00"}})
	require.NoError(t, err)
	off := false
	d, err = wizard.Reduce(d, wizard.Action{Type: wizard.ActionUseManualEntry, Enabled: &off})
	require.NoError(t, err)
	require.False(t, wizard.CanAdvance(wizard.StepFlight, d))

	d, err = wizard.Reduce(d, wizard.Action{Type: wizard.ActionSelectFlight, Flight: &domain.Flight{FlightNumber: "BA119"}})
	require.NoError(t, err)
	sub, _ := Assembler{Log: zerolog.Nop()}.Assemble(context.Background(), d, false)
	require.NotNil(t, sub.Claim.SelectedFlight)
	assert.Equal(t, "BA119", sub.Claim.SelectedFlight.FlightNumber)
	assert.False(t, sub.Claim.ManualFlight)
	assert.Empty(t, sub.Claim.FlightNumber)
	assert.Empty(t, sub.Claim.Airline)
}

func TestAssembleDropsConnectionsForDirectJourney(t *testing.T) {
	direct := true
	lhr := domain.Airport{IATA: "LHR"}
	jfk := domain.Airport{IATA: "JFK"}
	d := domain.ClaimDraft{
		IsDirect:             &direct,
		ConnectionAirports:   []domain.Airport{{IATA: "DUB"}},
		FullJourneyDeparture: lhr,
		FullJourneyArrival:   jfk,
		DisruptedSegment:     &domain.Segment{From: lhr, To: domain.Airport{IATA: "DUB"}},
	}
	sub, resolved := Assembler{Log: zerolog.Nop()}.Assemble(context.Background(), d, false)
	assert.Empty(t, sub.Claim.ConnectionAirports)
	assert.Nil(t, sub.Claim.DisruptedSegment)
	assert.Len(t, resolved.ConnectionAirports, 1, "draft kept for a retry")

	direct = false
	d.IsDirect = &direct
	sub, _ = Assembler{Log: zerolog.Nop()}.Assemble(context.Background(), d, false)
	assert.Len(t, sub.Claim.ConnectionAirports, 1)
	assert.NotNil(t, sub.Claim.DisruptedSegment)
}

func TestHTTPSubmitter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var s Submission
		require.NoError(t, json.NewDecoder(r.Body).Decode(&s))
		if s.Claim.BookingReference == "BAD" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"success":false,"error":"invalid booking reference"}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"claimId":"c-42"}`))
	}))
	defer srv.Close()

	h := NewHTTPSubmitter(srv.URL, 0)
	res, err := h.Submit(context.Background(), Submission{Claim: domain.ClaimDraft{BookingReference: "ABC123"}})
	require.NoError(t, err)
	assert.Equal(t, Result{Success: true, ClaimID: "c-42"}, res)

	res, err = h.Submit(context.Background(), Submission{Claim: domain.ClaimDraft{BookingReference: "BAD"}})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "invalid booking reference", res.Error)
}
