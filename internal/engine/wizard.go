package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"flightclaim/internal/domain"
	"flightclaim/internal/events"
	"flightclaim/internal/fasttrack"
	flog "flightclaim/internal/log"
	"flightclaim/internal/metrics"
	"flightclaim/internal/session"
	"flightclaim/internal/upload"
	"flightclaim/internal/wizard"
)

// WizardView is a wizard session as presented to clients.
type WizardView struct {
	ID         string            `json:"id"`
	Step       int               `json:"step"`
	StepName   string            `json:"step_name"`
	CanAdvance bool              `json:"can_advance"`
	CanGoBack  bool              `json:"can_go_back"`
	FastTrack  bool              `json:"fast_track"`
	Completed  bool              `json:"completed"`
	ClaimID    string            `json:"claim_id,omitempty"`
	Draft      domain.ClaimDraft `json:"draft"`
	Segments   []domain.Segment  `json:"segments,omitempty"`
}

func view(id string, st wizard.State) WizardView {
	_, back := st.Back()
	v := WizardView{
		ID:         id,
		Step:       int(st.Step),
		StepName:   st.Step.Name(),
		CanAdvance: !st.Terminal() && st.CanAdvance(),
		CanGoBack:  back,
		FastTrack:  st.Flags.FastTrack,
		Completed:  st.Completed,
		ClaimID:    st.ClaimID,
		Draft:      st.Draft,
	}
	if st.Step == wizard.StepDisruptedSegment {
		v.Segments = wizard.Segments(st.Draft)
	}
	return v
}

func (e Engine) lock(id string) func() {
	if e.locks == nil {
		return func() {}
	}
	return e.locks.Lock(id)
}

// StartOptions seed a new wizard. Handoff, when set, consumes a fast-track handoff.
type StartOptions struct {
	From    string
	To      string
	Date    string
	Direct  *bool
	Handoff string
}

func (e Engine) StartWizard(ctx context.Context, opts StartOptions) (WizardView, error) {
	id := uuid.NewString()
	var st wizard.State
	if opts.Handoff != "" {
		h, err := e.Handoffs.Take(ctx, opts.Handoff)
		if err != nil {
			return WizardView{}, fmt.Errorf("handoff %s: %w", opts.Handoff, err)
		}
		st = wizard.NewFastTrack(h.Draft)
	} else {
		st = wizard.New(seedDraft(opts))
	}
	if err := e.Wizards.Save(ctx, id, st); err != nil {
		return WizardView{}, err
	}
	metrics.RecordSessionStarted(st.Flags.FastTrack)
	if err := e.Events.AppendNow(ctx, events.WizardStarted, "wizard", id, actor(id), events.EventPayload{
		"fast_track": st.Flags.FastTrack,
		"step":       int(st.Step),
	}); err != nil {
		lg := e.logger(ctx)
		lg.Warn().Err(err).Msg("record wizard start")
	}
	return view(id, st), nil
}

// seedDraft pre-fills the draft from landing-page query parameters. Invalid values are
// dropped rather than rejected.
func seedDraft(opts StartOptions) domain.ClaimDraft {
	var d domain.ClaimDraft
	if code := strings.ToUpper(strings.TrimSpace(opts.From)); code != "" {
		d.DepartureAirport = domain.Airport{IATA: code, Label: code}
	}
	if code := strings.ToUpper(strings.TrimSpace(opts.To)); code != "" {
		d.ArrivalAirport = domain.Airport{IATA: code, Label: code}
	}
	if _, err := time.Parse(time.DateOnly, opts.Date); err == nil {
		d.TravelDate = opts.Date
	}
	if opts.Direct != nil {
		v := *opts.Direct
		d.IsDirect = &v
	}
	return d
}

func actor(sessionID string) string {
	return "wizard:" + sessionID
}

func (e Engine) GetWizard(ctx context.Context, id string) (WizardView, error) {
	st, err := e.Wizards.Load(ctx, id)
	if err != nil {
		return WizardView{}, err
	}
	return view(id, st), nil
}

// update loads the session under its lock, applies fn and saves the result.
func (e Engine) update(ctx context.Context, id string, fn func(wizard.State) (wizard.State, error)) (WizardView, error) {
	unlock := e.lock(id)
	defer unlock()
	st, err := e.Wizards.Load(ctx, id)
	if err != nil {
		return WizardView{}, err
	}
	next, err := fn(st)
	if err != nil {
		if !errors.Is(err, ErrSubmission) {
			return view(id, st), err
		}
		// A failed submission keeps the documents it managed to promote.
		if serr := e.Wizards.Save(ctx, id, next); serr != nil {
			return WizardView{}, serr
		}
		e.reconcileStaged(ctx, st.Draft, next.Draft)
		return view(id, next), err
	}
	if err := e.Wizards.Save(ctx, id, next); err != nil {
		return WizardView{}, err
	}
	e.reconcileStaged(ctx, st.Draft, next.Draft)
	return view(id, next), nil
}

// ApplyAction reduces one client action into the session's draft.
func (e Engine) ApplyAction(ctx context.Context, id string, a wizard.Action) (WizardView, error) {
	if a.Internal() {
		return WizardView{}, fmt.Errorf("%w: %s is not a client action", wizard.ErrInvalidAction, a.Type)
	}
	return e.update(ctx, id, func(st wizard.State) (wizard.State, error) {
		return st.Apply(a)
	})
}

// Next advances the session. Advancing from the submit step assembles and submits the
// claim; on failure the session stays where it is.
func (e Engine) Next(ctx context.Context, id string) (WizardView, error) {
	ctx = flog.ContextWithSessionID(ctx, id)
	return e.update(ctx, id, func(st wizard.State) (wizard.State, error) {
		if st.Step == wizard.SubmitStep && !st.Terminal() {
			return e.submit(ctx, id, st)
		}
		next, err := st.Advance()
		if err != nil {
			return st, err
		}
		metrics.RecordTransition("next", next.Step.Name())
		return next, nil
	})
}

// Prev moves the session back. exited reports that the session is at its entry step and
// the client should leave the wizard.
func (e Engine) Prev(ctx context.Context, id string) (v WizardView, exited bool, err error) {
	v, err = e.update(ctx, id, func(st wizard.State) (wizard.State, error) {
		if st.Terminal() {
			return st, wizard.ErrTerminal
		}
		prev, ok := st.Back()
		if !ok {
			exited = true
			return st, nil
		}
		metrics.RecordTransition("prev", prev.Step.Name())
		return prev, nil
	})
	return v, exited, err
}

func (e Engine) Segments(ctx context.Context, id string) ([]domain.Segment, error) {
	st, err := e.Wizards.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return wizard.Segments(st.Draft), nil
}

// StageDocument validates an uploaded document and keeps it as a pending file on the
// draft. It is promoted to storage at submission.
func (e Engine) StageDocument(ctx context.Context, id string, kind domain.DocumentKind, r io.Reader, filename string) (WizardView, error) {
	if !kind.Valid() {
		return WizardView{}, fmt.Errorf("%w: document kind %q", wizard.ErrInvalidAction, kind)
	}
	if _, err := e.Wizards.Load(ctx, id); err != nil {
		return WizardView{}, err
	}
	pending, err := e.Uploads.Stage(r, filename)
	if err != nil {
		metrics.RecordUpload(uploadOutcome(err))
		return WizardView{}, err
	}
	metrics.RecordUpload("stored")
	v, err := e.update(ctx, id, func(st wizard.State) (wizard.State, error) {
		return st.Apply(wizard.Action{Type: wizard.ActionStageDocument, Document: kind, Pending: &pending})
	})
	if err != nil {
		e.discardStaged(ctx, pending)
	}
	return v, err
}

func pendingFiles(d domain.ClaimDraft) []domain.PendingFile {
	var out []domain.PendingFile
	for _, doc := range []domain.Document{d.BoardingPass, d.IDDocument} {
		if doc.Pending != nil {
			out = append(out, *doc.Pending)
		}
	}
	return out
}

// reconcileStaged removes staged files the saved draft no longer references and keeps
// the remaining ones fresh for the staging sweep.
func (e Engine) reconcileStaged(ctx context.Context, prev, next domain.ClaimDraft) {
	held := map[string]bool{}
	for _, p := range pendingFiles(next) {
		held[p.Path] = true
		if err := e.Uploads.Touch(p, e.now()); err != nil {
			lg := e.logger(ctx)
			lg.Warn().Err(err).Str("path", p.Path).Msg("touch staged document")
		}
	}
	for _, p := range pendingFiles(prev) {
		if !held[p.Path] {
			e.discardStaged(ctx, p)
		}
	}
}

func (e Engine) discardStaged(ctx context.Context, p domain.PendingFile) {
	if err := e.Uploads.Discard(p); err != nil {
		lg := e.logger(ctx)
		lg.Warn().Err(err).Str("path", p.Path).Msg("remove staged document")
	}
}

// SweepStaging removes staged documents untouched for longer than the session TTL. Every
// save refreshes the files a live session holds, so only abandoned uploads are removed.
func (e Engine) SweepStaging(ctx context.Context) (int, error) {
	if e.Config == nil {
		return 0, nil
	}
	n, err := e.Uploads.SweepStaging(e.Config.Sessions.TTL, e.now())
	if n > 0 {
		lg := e.logger(ctx)
		lg.Info().Int("removed", n).Msg("swept staged documents")
	}
	return n, err
}

// StartStagingJanitor sweeps the staging directory every interval until ctx is done.
func (e Engine) StartStagingJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			if _, err := e.SweepStaging(ctx); err != nil {
				lg := e.logger(ctx)
				lg.Warn().Err(err).Msg("sweep staging")
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Upload validates and stores a document directly, returning its URL.
func (e Engine) Upload(ctx context.Context, r io.Reader) (string, error) {
	url, err := e.Uploads.Upload(ctx, r)
	metrics.RecordUpload(uploadOutcome(err))
	return url, err
}

// ExpressResult is returned by an express boarding-pass upload.
type ExpressResult struct {
	Token           string               `json:"token"`
	BoardingPassURL string               `json:"boarding_pass_url"`
	Extraction      fasttrack.Extraction `json:"extraction"`
}

// ExpressUpload stores a boarding pass, extracts its journey and parks the result as a
// single-use handoff for StartWizard.
func (e Engine) ExpressUpload(ctx context.Context, r io.Reader) (ExpressResult, error) {
	seed, ext, url, err := e.express(ctx, r)
	if err != nil {
		return ExpressResult{}, err
	}
	token := uuid.NewString()
	if err := e.Handoffs.Put(ctx, token, session.Handoff{Draft: seed, CreatedAt: e.timestamp()}); err != nil {
		return ExpressResult{}, err
	}
	return ExpressResult{Token: token, BoardingPassURL: url, Extraction: ext}, nil
}

// ExpressInSession switches a session sitting on the journey step to fast-track mode
// using an uploaded boarding pass.
func (e Engine) ExpressInSession(ctx context.Context, id string, r io.Reader) (WizardView, error) {
	st, err := e.Wizards.Load(ctx, id)
	if err != nil {
		return WizardView{}, err
	}
	if st.Step != wizard.StepJourney || st.Terminal() {
		return view(id, st), fmt.Errorf("%w: express upload is only offered on the journey step", wizard.ErrInvalidAction)
	}
	seed, _, _, err := e.express(ctx, r)
	if err != nil {
		return view(id, st), err
	}
	v, err := e.update(ctx, id, func(cur wizard.State) (wizard.State, error) {
		if cur.Step != wizard.StepJourney {
			return cur, fmt.Errorf("%w: session moved on", wizard.ErrInvalidAction)
		}
		return wizard.NewFastTrack(seed), nil
	})
	if err == nil {
		metrics.RecordSessionStarted(true)
	}
	return v, err
}

func (e Engine) express(ctx context.Context, r io.Reader) (domain.ClaimDraft, fasttrack.Extraction, string, error) {
	if e.Config != nil && !e.Config.FastTrack.Enabled {
		return domain.ClaimDraft{}, fasttrack.Extraction{}, "", ErrFastTrackDisabled
	}
	data, ct, err := e.Uploads.Validator.Read(r)
	if err != nil {
		metrics.RecordUpload(uploadOutcome(err))
		return domain.ClaimDraft{}, fasttrack.Extraction{}, "", err
	}
	ext, err := e.Extractor.Extract(ctx, ct, data)
	if err != nil {
		return domain.ClaimDraft{}, fasttrack.Extraction{}, "", err
	}
	url, err := e.Uploads.Save(ctx, data, ct)
	metrics.RecordUpload(uploadOutcome(err))
	if err != nil {
		return domain.ClaimDraft{}, fasttrack.Extraction{}, "", err
	}
	e.enrichAirports(ctx, &ext)
	return ext.Seed(url), ext, url, nil
}

// enrichAirports fills airport names from the lookup service when it answers.
func (e Engine) enrichAirports(ctx context.Context, ext *fasttrack.Extraction) {
	if e.Lookup == nil {
		return
	}
	for _, a := range []*domain.Airport{&ext.Departure, &ext.Arrival} {
		items, err := e.Lookup.SearchAirports(ctx, a.Code())
		if err != nil {
			continue
		}
		for _, it := range items {
			if it.Same(*a) {
				*a = it
				break
			}
		}
	}
}

func uploadOutcome(err error) string {
	switch {
	case err == nil:
		return "stored"
	case errors.Is(err, upload.ErrUnsupportedType):
		return "unsupported_type"
	case errors.Is(err, upload.ErrTooLarge):
		return "too_large"
	}
	return "failed"
}
