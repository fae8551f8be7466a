package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"flightclaim/internal/config"
	"flightclaim/internal/domain"
	"flightclaim/internal/events"
	"flightclaim/internal/fasttrack"
	flog "flightclaim/internal/log"
	"flightclaim/internal/lookup"
	"flightclaim/internal/repo"
	"flightclaim/internal/session"
	"flightclaim/internal/submission"
	"flightclaim/internal/upload"
	"flightclaim/internal/wizard"
)

var (
	// ErrStepIncomplete is returned by Next when the current step's guard fails.
	ErrStepIncomplete = wizard.ErrIncomplete
	// ErrSubmission is returned when the claim submission service rejects or fails.
	ErrSubmission = errors.New("submission failed")
	// ErrFastTrackDisabled is returned for express uploads when fast track is off.
	ErrFastTrackDisabled = errors.New("fast track is disabled")
)

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Config    *config.Config
	Now       func() time.Time
	Wizards   session.Wizards
	Handoffs  session.Handoffs
	Lookup    *lookup.Client
	Uploads   upload.Service
	Extractor fasttrack.Extractor
	Assembler submission.Assembler
	Submitter submission.Submitter

	locks *keyedMutex
}

// New wires an engine from config. store holds wizard sessions, handoffs and the lookup cache.
func New(db *sql.DB, cfg *config.Config, store session.Store) Engine {
	uploads := upload.Service{
		Validator:  upload.Validator{MaxBytes: cfg.Uploads.MaxBytes, Allowed: cfg.Uploads.AllowedTypes},
		Store:      upload.DiskStore{Dir: cfg.Uploads.Dir, PublicURL: strings.TrimRight(cfg.Server.PublicURL, "/") + cfg.Server.BasePath + "/files"},
		StagingDir: cfg.Uploads.StagingDir,
	}
	var submitter submission.Submitter = localSubmitter{}
	if cfg.Submission.URL != "" {
		submitter = submission.NewHTTPSubmitter(cfg.Submission.URL, cfg.Submission.Timeout)
	}
	return Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Events:   events.Writer{DB: db},
		Config:   cfg,
		Now:      time.Now,
		Wizards:  session.Wizards{Store: store, TTL: cfg.Sessions.TTL},
		Handoffs: session.Handoffs{Store: store, TTL: cfg.Sessions.HandoffTTL},
		Lookup: lookup.New(lookup.Options{
			AirportsURL: cfg.Lookups.AirportsURL,
			FlightsURL:  cfg.Lookups.FlightsURL,
			Timeout:     cfg.Lookups.Timeout,
			CacheTTL:    cfg.Lookups.CacheTTL,
			Cache:       store,
			Logger:      flog.WithComponent("lookup"),
		}),
		Uploads:   uploads,
		Extractor: mockExtractor(cfg.FastTrack.Mock),
		Assembler: submission.Assembler{
			Promoter:       uploads,
			DefaultCountry: cfg.Phone.DefaultCountry,
			Log:            flog.WithComponent("submission"),
		},
		Submitter: submitter,
		locks:     newKeyedMutex(),
	}
}

// WithFileSigning makes stored document URLs carry a signed access token. Only the disk
// store serves files itself, so other stores are left unchanged.
func (e Engine) WithFileSigning(secret string) Engine {
	ds, ok := e.Uploads.Store.(upload.DiskStore)
	if !ok || strings.TrimSpace(secret) == "" {
		return e
	}
	ttl := upload.DefaultLinkTTL
	if e.Config != nil && e.Config.Uploads.LinkTTL > 0 {
		ttl = e.Config.Uploads.LinkTTL
	}
	ds.Signer = &upload.LinkSigner{Secret: []byte(secret), TTL: ttl}
	e.Uploads.Store = ds
	e.Assembler.Promoter = e.Uploads
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) logger(ctx context.Context) zerolog.Logger {
	return flog.FromContext(ctx, "engine")
}

func mockExtractor(m config.MockBoardingPass) fasttrack.MockExtractor {
	return fasttrack.MockExtractor{Result: fasttrack.Extraction{
		Departure:        domain.Airport{IATA: strings.ToUpper(m.Departure)},
		Arrival:          domain.Airport{IATA: strings.ToUpper(m.Arrival)},
		FlightNumber:     m.FlightNumber,
		Airline:          m.Airline,
		TravelDate:       m.TravelDate,
		BookingReference: m.BookingReference,
	}}
}

// FlightSearchResult degrades lookup failures into the manual-entry affordance.
type FlightSearchResult struct {
	Flights     []domain.Flight `json:"flights"`
	NoFlights   bool            `json:"no_flights"`
	ManualEntry bool            `json:"manual_entry"`
}

func (e Engine) SearchAirports(ctx context.Context, q string) ([]domain.Airport, error) {
	return e.Lookup.SearchAirports(ctx, q)
}

// SearchFlights never fails: an upstream error or an empty result both report no flights
// and keep manual entry available.
func (e Engine) SearchFlights(ctx context.Context, from, to, date string) FlightSearchResult {
	flights, err := e.Lookup.SearchFlights(ctx, strings.ToUpper(from), strings.ToUpper(to), date)
	if err != nil {
		lg := e.logger(ctx)
		lg.Warn().Err(err).Msg("flight search failed; offering manual entry")
		flights = nil
	}
	if len(flights) == 0 {
		return FlightSearchResult{Flights: []domain.Flight{}, NoFlights: true, ManualEntry: true}
	}
	return FlightSearchResult{Flights: flights, ManualEntry: true}
}
