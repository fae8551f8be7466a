// Package submission turns a finished wizard draft into the payload handed to the claim
// submission service.
package submission

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"flightclaim/internal/domain"
	"flightclaim/internal/metrics"
)

var errNoPromoter = errors.New("no document store configured")

// Submission is the assembled payload.
type Submission struct {
	FastTrack bool              `json:"fast_track"`
	Claim     domain.ClaimDraft `json:"claim"`
}

// Result mirrors the claim submission service's response.
type Result struct {
	Success bool   `json:"success"`
	ClaimID string `json:"claimId,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Submitter interface {
	Submit(ctx context.Context, s Submission) (Result, error)
}

// Promoter moves a staged local file to durable storage.
type Promoter interface {
	Promote(ctx context.Context, p domain.PendingFile) (string, error)
}

type Assembler struct {
	Promoter       Promoter
	DefaultCountry string
	Log            zerolog.Logger
}

// Assemble resolves pending documents and builds the payload. Document promotion is
// best effort: a failed promotion is logged and the document left out of the payload.
// The returned draft keeps promoted URLs and any still-pending files so a retry does not
// upload twice.
func (a Assembler) Assemble(ctx context.Context, d domain.ClaimDraft, fastTrack bool) (Submission, domain.ClaimDraft) {
	resolved := d.Clone()
	for _, kind := range []domain.DocumentKind{domain.DocumentBoardingPass, domain.DocumentID} {
		doc := resolved.Document(kind)
		if doc.Pending == nil {
			continue
		}
		url, err := a.promote(ctx, *doc.Pending)
		metrics.RecordPendingResolution(string(kind), err == nil)
		if err != nil {
			a.Log.Warn().Err(err).Str("document", string(kind)).Msg("pending document not uploaded; omitting from claim")
			doc.Error = err.Error()
			continue
		}
		*doc = domain.Document{URL: url}
	}

	claim := resolved.Clone()
	for _, kind := range []domain.DocumentKind{domain.DocumentBoardingPass, domain.DocumentID} {
		doc := claim.Document(kind)
		if doc.Pending != nil {
			*doc = domain.Document{}
		}
		doc.Error = ""
	}
	country := claim.Contact.PhoneCountry
	if country == "" {
		country = a.DefaultCountry
	}
	claim.Contact.Phone = NormalizePhone(claim.Contact.Phone, country)
	if claim.ManualFlight {
		claim.SelectedFlight = nil
	} else {
		claim.FlightNumber, claim.Airline, claim.DepartureTime = "", "", ""
	}
	// Connections mean nothing on a direct journey.
	if claim.IsDirect != nil && *claim.IsDirect {
		claim.ConnectionAirports = nil
		claim.DisruptedSegment = nil
	}
	return Submission{FastTrack: fastTrack, Claim: claim}, resolved
}

func (a Assembler) promote(ctx context.Context, p domain.PendingFile) (string, error) {
	if a.Promoter == nil {
		return "", errNoPromoter
	}
	return a.Promoter.Promote(ctx, p)
}
