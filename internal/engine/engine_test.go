package engine_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"flightclaim/internal/config"
	"flightclaim/internal/db"
	"flightclaim/internal/domain"
	"flightclaim/internal/engine"
	"flightclaim/internal/migrate"
	"flightclaim/internal/repo"
	"flightclaim/internal/session"
	"flightclaim/internal/submission"
	"flightclaim/internal/wizard"
)

// pngBytes is enough of a PNG for content sniffing.
var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func lookupServer(t *testing.T, flightsStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/airports/search", func(w http.ResponseWriter, r *http.Request) {
		items := []domain.Airport{}
		switch r.URL.Query().Get("q") {
		case "LHR":
			items = append(items, domain.Airport{IATA: "LHR", Name: "Heathrow", Label: "London Heathrow (LHR)"})
		case "JFK":
			items = append(items, domain.Airport{IATA: "JFK", Name: "John F. Kennedy", Label: "New York JFK (JFK)"})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"items": items})
	})
	mux.HandleFunc("/flights/search", func(w http.ResponseWriter, r *http.Request) {
		if flightsStatus != http.StatusOK {
			w.WriteHeader(flightsStatus)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"flights": []domain.Flight{{
			FlightNumber: "BA117",
			Airline:      domain.Airline{Code: "BA", Name: "British Airways"},
			Departure:    domain.FlightEndpoint{Airport: r.URL.Query().Get("from"), Scheduled: "2024-05-01T08:25:00Z"},
			Arrival:      domain.FlightEndpoint{Airport: r.URL.Query().Get("to"), Scheduled: "2024-05-01T11:20:00Z"},
		}}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestEnvWithFlights(t *testing.T, flightsStatus int) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	if _, err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	lookups := lookupServer(t, flightsStatus)
	cfg := config.Default()
	cfg.Lookups.AirportsURL = lookups.URL
	cfg.Lookups.FlightsURL = lookups.URL
	cfg.Uploads.Dir = filepath.Join(dir, "files")
	cfg.Uploads.StagingDir = filepath.Join(dir, "staging")
	eng := engine.New(conn, cfg, session.NewMemoryStore())
	eng.Now = func() time.Time { return time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func newTestEnv(t *testing.T) testEnv {
	return newTestEnvWithFlights(t, http.StatusOK)
}

func boolPtr(v bool) *bool { return &v }

func (env testEnv) apply(t *testing.T, id string, actions ...wizard.Action) engine.WizardView {
	t.Helper()
	v, err := env.Engine.GetWizard(env.Ctx, id)
	if err != nil {
		t.Fatalf("get wizard: %v", err)
	}
	for _, a := range actions {
		v, err = env.Engine.ApplyAction(env.Ctx, id, a)
		if err != nil {
			t.Fatalf("apply %s: %v", a.Type, err)
		}
	}
	return v
}

func (env testEnv) next(t *testing.T, id string) engine.WizardView {
	t.Helper()
	v, err := env.Engine.Next(env.Ctx, id)
	if err != nil {
		t.Fatalf("next from %d: %v", v.Step, err)
	}
	return v
}

// answers fills every step from the flight step to privacy.
var answers = map[int][]wizard.Action{
	int(wizard.StepFlight): {{Type: wizard.ActionSetManualFlight, Manual: &wizard.ManualFlight{
		FlightNumber: "BA117", Airline: "British Airways", DepartureTime: "08:25",
	}}},
	int(wizard.StepProblemType): {{Type: wizard.ActionSetProblemType, Value: string(domain.ProblemCancelled)}},
	int(wizard.StepPassenger): {{Type: wizard.ActionSetContact, Contact: &domain.Contact{
		FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Phone: "07700 900123", PhoneCountry: "GB",
	}}},
	int(wizard.StepAddress): {{Type: wizard.ActionSetAddress, Address: &domain.Address{
		Street: "1 Main St", City: "London", PostalCode: "N1 1AA", Country: "GB",
	}}},
	int(wizard.StepBookingReference): {{Type: wizard.ActionSetBookingReference, Value: "ABC123"}},
	int(wizard.StepSignature):        {{Type: wizard.ActionSetSignature, Value: "data:image/png;base64,iVBORw0KGgo="}},
	int(wizard.StepTerms):            {{Type: wizard.ActionAcceptTerms, Enabled: boolPtr(true)}},
	int(wizard.StepPrivacy):          {{Type: wizard.ActionAcceptPrivacy, Enabled: boolPtr(true)}},
}

// walkToSubmit answers steps until the session sits on the submit step.
func (env testEnv) walkToSubmit(t *testing.T, v engine.WizardView) engine.WizardView {
	t.Helper()
	for v.Step != int(wizard.SubmitStep) {
		v = env.apply(t, v.ID, answers[v.Step]...)
		v = env.next(t, v.ID)
	}
	return env.apply(t, v.ID, answers[v.Step]...)
}

func TestExpressInSessionSwitchesToFastTrack(t *testing.T) {
	env := newTestEnv(t)
	v, err := env.Engine.StartWizard(env.Ctx, engine.StartOptions{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if v.Step != int(wizard.StepJourney) || v.FastTrack {
		t.Fatalf("unexpected start view: %+v", v)
	}

	v, err = env.Engine.ExpressInSession(env.Ctx, v.ID, bytes.NewReader(pngBytes))
	if err != nil {
		t.Fatalf("express: %v", err)
	}
	if v.Step != int(wizard.FastTrackEntry) || !v.FastTrack {
		t.Fatalf("expected fast-track at step 5, got step %d fast_track=%v", v.Step, v.FastTrack)
	}
	d := v.Draft
	if d.DepartureAirport.IATA != "LHR" || d.ArrivalAirport.IATA != "JFK" {
		t.Fatalf("unexpected journey: %+v -> %+v", d.DepartureAirport, d.ArrivalAirport)
	}
	if d.DepartureAirport.Name != "Heathrow" {
		t.Fatalf("expected airport enriched from lookup, got %+v", d.DepartureAirport)
	}
	if d.BoardingPass.URL == "" {
		t.Fatalf("expected stored boarding pass url")
	}
	if d.IsDirect == nil || !*d.IsDirect {
		t.Fatalf("expected direct journey")
	}

	_, exited, err := env.Engine.Prev(env.Ctx, v.ID)
	if err != nil || !exited {
		t.Fatalf("prev at fast-track entry should exit: exited=%v err=%v", exited, err)
	}
}

func TestExpressInSessionRejectedAfterJourneyStep(t *testing.T) {
	env := newTestEnv(t)
	v, _ := env.Engine.StartWizard(env.Ctx, engine.StartOptions{From: "lhr", To: "jfk", Direct: boolPtr(true)})
	v = env.next(t, v.ID)
	if _, err := env.Engine.ExpressInSession(env.Ctx, v.ID, bytes.NewReader(pngBytes)); !errors.Is(err, wizard.ErrInvalidAction) {
		t.Fatalf("expected invalid action, got %v", err)
	}
}

func TestExpressHandoffIsSingleUse(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.ExpressUpload(env.Ctx, bytes.NewReader(pngBytes))
	if err != nil {
		t.Fatalf("express upload: %v", err)
	}
	if res.Token == "" || res.BoardingPassURL == "" || res.Extraction.FlightNumber != "BA117" {
		t.Fatalf("unexpected express result: %+v", res)
	}
	v, err := env.Engine.StartWizard(env.Ctx, engine.StartOptions{Handoff: res.Token})
	if err != nil {
		t.Fatalf("start with handoff: %v", err)
	}
	if v.Step != int(wizard.FastTrackEntry) || v.Draft.BoardingPass.URL != res.BoardingPassURL {
		t.Fatalf("unexpected fast-track view: %+v", v)
	}
	if _, err := env.Engine.StartWizard(env.Ctx, engine.StartOptions{Handoff: res.Token}); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected consumed handoff, got %v", err)
	}
}

func TestExpressRejectsUnsupportedFile(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.ExpressUpload(env.Ctx, bytes.NewReader([]byte("plain text"))); err == nil {
		t.Fatalf("expected unsupported type")
	}
}

func TestStartWizardSeedsFromQuery(t *testing.T) {
	env := newTestEnv(t)
	v, err := env.Engine.StartWizard(env.Ctx, engine.StartOptions{From: "lhr", To: "jfk", Date: "not-a-date", Direct: boolPtr(true)})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if v.Draft.DepartureAirport.IATA != "LHR" || v.Draft.ArrivalAirport.IATA != "JFK" {
		t.Fatalf("seed not applied: %+v", v.Draft)
	}
	if v.Draft.TravelDate != "" {
		t.Fatalf("invalid date should be dropped, got %q", v.Draft.TravelDate)
	}
	if !v.CanAdvance {
		t.Fatalf("seeded direct journey should be able to advance")
	}
}

func TestNextOnIncompleteStepIsRefused(t *testing.T) {
	env := newTestEnv(t)
	v, _ := env.Engine.StartWizard(env.Ctx, engine.StartOptions{})
	got, err := env.Engine.Next(env.Ctx, v.ID)
	if !errors.Is(err, engine.ErrStepIncomplete) {
		t.Fatalf("expected step incomplete, got %v", err)
	}
	if got.Step != int(wizard.StepJourney) {
		t.Fatalf("session should stay on journey step, got %d", got.Step)
	}
}

func TestInternalActionsAreRejected(t *testing.T) {
	env := newTestEnv(t)
	v, _ := env.Engine.StartWizard(env.Ctx, engine.StartOptions{})
	_, err := env.Engine.ApplyAction(env.Ctx, v.ID, wizard.Action{Type: wizard.ActionStageDocument, Document: domain.DocumentBoardingPass})
	if !errors.Is(err, wizard.ErrInvalidAction) {
		t.Fatalf("expected invalid action, got %v", err)
	}
}

func TestSubmitRecordsClaim(t *testing.T) {
	env := newTestEnv(t)
	v, _ := env.Engine.StartWizard(env.Ctx, engine.StartOptions{})
	v, err := env.Engine.ExpressInSession(env.Ctx, v.ID, bytes.NewReader(pngBytes))
	if err != nil {
		t.Fatalf("express: %v", err)
	}
	if _, err := env.Engine.StageDocument(env.Ctx, v.ID, domain.DocumentID, bytes.NewReader(pngBytes), "passport.png"); err != nil {
		t.Fatalf("stage id document: %v", err)
	}
	v = env.walkToSubmit(t, v)

	done, err := env.Engine.Next(env.Ctx, v.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if done.Step != int(wizard.StepDone) || !done.Completed || done.ClaimID == "" {
		t.Fatalf("unexpected completed view: %+v", done)
	}
	if done.Draft.IDDocument.URL == "" || done.Draft.IDDocument.Pending != nil {
		t.Fatalf("pending id document should be promoted: %+v", done.Draft.IDDocument)
	}

	claim, err := env.Engine.GetClaim(env.Ctx, done.ClaimID)
	if err != nil {
		t.Fatalf("get claim: %v", err)
	}
	if !claim.FastTrack || claim.DepartureIATA != "LHR" || claim.FlightNumber != "BA117" {
		t.Fatalf("unexpected claim: %+v", claim)
	}
	if claim.Phone != "+447700900123" {
		t.Fatalf("expected normalized phone, got %q", claim.Phone)
	}

	evts, err := env.Engine.ListEvents(env.Ctx, 10, 0, repo.EventFilters{Type: "claim.submitted"})
	if err != nil || len(evts) != 1 || evts[0].EntityID != done.ClaimID {
		t.Fatalf("expected claim.submitted event, got %+v err=%v", evts, err)
	}

	if _, err := env.Engine.Next(env.Ctx, v.ID); !errors.Is(err, wizard.ErrTerminal) {
		t.Fatalf("expected terminal, got %v", err)
	}
	if _, err := env.Engine.ApplyAction(env.Ctx, v.ID, wizard.Action{Type: wizard.ActionSetSignature, Value: "x"}); !errors.Is(err, wizard.ErrTerminal) {
		t.Fatalf("expected frozen draft, got %v", err)
	}
}

func stagedCount(t *testing.T, env testEnv) int {
	t.Helper()
	entries, err := os.ReadDir(env.Engine.Uploads.StagingDir)
	if errors.Is(err, os.ErrNotExist) {
		return 0
	}
	if err != nil {
		t.Fatalf("read staging dir: %v", err)
	}
	return len(entries)
}

func TestStagedDocumentsFollowTheDraft(t *testing.T) {
	env := newTestEnv(t)
	v, _ := env.Engine.StartWizard(env.Ctx, engine.StartOptions{})

	first, err := env.Engine.StageDocument(env.Ctx, v.ID, domain.DocumentID, bytes.NewReader(pngBytes), "passport.png")
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	firstPath := first.Draft.IDDocument.Pending.Path
	second, err := env.Engine.StageDocument(env.Ctx, v.ID, domain.DocumentID, bytes.NewReader(pngBytes), "passport-2.png")
	if err != nil {
		t.Fatalf("restage: %v", err)
	}
	if _, err := os.Stat(firstPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("replaced staged file should be removed, stat err=%v", err)
	}
	if n := stagedCount(t, env); n != 1 {
		t.Fatalf("expected 1 staged file, got %d", n)
	}

	env.apply(t, v.ID, wizard.Action{Type: wizard.ActionClearDocument, Document: domain.DocumentID})
	if _, err := os.Stat(second.Draft.IDDocument.Pending.Path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("cleared staged file should be removed, stat err=%v", err)
	}
	if n := stagedCount(t, env); n != 0 {
		t.Fatalf("expected empty staging dir, got %d", n)
	}
}

func TestStagingOnCompletedSessionLeavesNoFile(t *testing.T) {
	env := newTestEnv(t)
	v, _ := env.Engine.StartWizard(env.Ctx, engine.StartOptions{})
	v, err := env.Engine.ExpressInSession(env.Ctx, v.ID, bytes.NewReader(pngBytes))
	if err != nil {
		t.Fatalf("express: %v", err)
	}
	if _, err := env.Engine.StageDocument(env.Ctx, v.ID, domain.DocumentID, bytes.NewReader(pngBytes), "passport.png"); err != nil {
		t.Fatalf("stage: %v", err)
	}
	v = env.walkToSubmit(t, v)
	if _, err := env.Engine.Next(env.Ctx, v.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if n := stagedCount(t, env); n != 0 {
		t.Fatalf("promoted file should leave staging, got %d", n)
	}

	_, err = env.Engine.StageDocument(env.Ctx, v.ID, domain.DocumentBoardingPass, bytes.NewReader(pngBytes), "bp.png")
	if !errors.Is(err, wizard.ErrTerminal) {
		t.Fatalf("expected terminal, got %v", err)
	}
	if n := stagedCount(t, env); n != 0 {
		t.Fatalf("rejected stage should not leave a file, got %d", n)
	}
}

func TestSweepStagingDropsAbandonedUploads(t *testing.T) {
	env := newTestEnv(t)
	v, _ := env.Engine.StartWizard(env.Ctx, engine.StartOptions{})
	if _, err := env.Engine.StageDocument(env.Ctx, v.ID, domain.DocumentID, bytes.NewReader(pngBytes), "passport.png"); err != nil {
		t.Fatalf("stage: %v", err)
	}
	n, err := env.Engine.SweepStaging(env.Ctx)
	if err != nil || n != 0 {
		t.Fatalf("live upload swept: n=%d err=%v", n, err)
	}

	later := env.Engine.Now().Add(env.Engine.Config.Sessions.TTL + time.Minute)
	env.Engine.Now = func() time.Time { return later }
	n, err = env.Engine.SweepStaging(env.Ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected abandoned upload swept, n=%d err=%v", n, err)
	}
	if c := stagedCount(t, env); c != 0 {
		t.Fatalf("expected empty staging dir, got %d", c)
	}
}

type failingSubmitter struct {
	calls int
}

func (f *failingSubmitter) Submit(context.Context, submission.Submission) (submission.Result, error) {
	f.calls++
	return submission.Result{Success: false, Error: "service unavailable"}, nil
}

func TestSubmitFailureKeepsStepAndResolvedDocuments(t *testing.T) {
	env := newTestEnv(t)
	failing := &failingSubmitter{}
	env.Engine.Submitter = failing

	v, _ := env.Engine.StartWizard(env.Ctx, engine.StartOptions{})
	v, err := env.Engine.ExpressInSession(env.Ctx, v.ID, bytes.NewReader(pngBytes))
	if err != nil {
		t.Fatalf("express: %v", err)
	}
	if _, err := env.Engine.StageDocument(env.Ctx, v.ID, domain.DocumentID, bytes.NewReader(pngBytes), "id.png"); err != nil {
		t.Fatalf("stage: %v", err)
	}
	v = env.walkToSubmit(t, v)

	got, err := env.Engine.Next(env.Ctx, v.ID)
	if !errors.Is(err, engine.ErrSubmission) {
		t.Fatalf("expected submission error, got %v", err)
	}
	if got.Step != int(wizard.SubmitStep) || got.Completed {
		t.Fatalf("failed submission must not transition: %+v", got)
	}
	firstURL := got.Draft.IDDocument.URL
	if firstURL == "" {
		t.Fatalf("promoted document url should be kept on the draft")
	}

	if _, err := env.Engine.Next(env.Ctx, v.ID); !errors.Is(err, engine.ErrSubmission) {
		t.Fatalf("expected second failure, got %v", err)
	}
	again, _ := env.Engine.GetWizard(env.Ctx, v.ID)
	if again.Draft.IDDocument.URL != firstURL {
		t.Fatalf("retry re-uploaded document: %q != %q", again.Draft.IDDocument.URL, firstURL)
	}
	if failing.calls != 2 {
		t.Fatalf("expected two submission attempts, got %d", failing.calls)
	}
	claims, err := env.Engine.ListClaims(env.Ctx, repo.ClaimFilters{})
	if err != nil || len(claims) != 0 {
		t.Fatalf("no claim should be recorded: %v %v", claims, err)
	}
}

func TestSearchFlightsDegradesToManualEntry(t *testing.T) {
	env := newTestEnvWithFlights(t, http.StatusBadGateway)
	res := env.Engine.SearchFlights(env.Ctx, "lhr", "jfk", "2024-05-01")
	if !res.NoFlights || !res.ManualEntry || len(res.Flights) != 0 {
		t.Fatalf("expected degraded result, got %+v", res)
	}

	ok := newTestEnv(t).Engine.SearchFlights(env.Ctx, "LHR", "JFK", "2024-05-01")
	if ok.NoFlights || len(ok.Flights) != 1 || !ok.ManualEntry {
		t.Fatalf("unexpected flight result: %+v", ok)
	}
}

func TestChatSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	s, err := env.Engine.CreateChatSession(env.Ctx, "visitor-1", []domain.ChatMessage{{Role: "user", Content: "Hi"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.ID == "" || len(s.Messages) != 1 || s.Messages[0].TS == "" {
		t.Fatalf("unexpected session: %+v", s)
	}

	s, err = env.Engine.UpdateChatSession(env.Ctx, s.ID, []domain.ChatMessage{
		{Role: "user", Content: "Hi"},
		{Role: "Assistant", Content: "Hello, how can I help?"},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(s.Messages) != 2 || s.Messages[1].Role != "assistant" {
		t.Fatalf("unexpected messages: %+v", s.Messages)
	}

	list, err := env.Engine.ListChatSessions(env.Ctx, 10, "", "")
	if err != nil || len(list) != 1 || list[0].MessageCount != 2 {
		t.Fatalf("unexpected list: %+v err=%v", list, err)
	}

	if _, err := env.Engine.UpdateChatSession(env.Ctx, "missing", nil); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := env.Engine.CreateChatSession(env.Ctx, "", []domain.ChatMessage{{Role: "robot", Content: "x"}}); !errors.Is(err, engine.ErrInvalidChat) {
		t.Fatalf("expected invalid chat, got %v", err)
	}
	evts, _ := env.Engine.ListEvents(env.Ctx, 10, 0, repo.EventFilters{EntityKind: "chat_session"})
	if len(evts) != 2 {
		t.Fatalf("expected two chat events, got %d", len(evts))
	}
}
