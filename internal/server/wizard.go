package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"flightclaim/internal/domain"
	"flightclaim/internal/engine"
	flog "flightclaim/internal/log"
	"flightclaim/internal/wizard"
)

type wizardPath struct {
	ID string `path:"id"`
}

// wizardError adds the session's current step to the error envelope.
func wizardError(v engine.WizardView, err error) huma.StatusError {
	se := handleError(err)
	if ae, ok := se.(*apiError); ok && v.ID != "" {
		if ae.Body.Details == nil {
			ae.Body.Details = map[string]any{}
		}
		ae.Body.Details["step"] = v.Step
		ae.Body.Details["step_name"] = v.StepName
	}
	return se
}

func registerLookups(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "search-airports",
		Method:      http.MethodGet,
		Path:        "/airports/search",
		Summary:     "Search airports",
		Tags:        []string{"lookups"},
		Errors:      []int{http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		Q string `query:"q"`
	}) (*struct {
		Body AirportsResponse `json:"body"`
	}, error) {
		items, err := e.SearchAirports(ctx, input.Q)
		if err != nil {
			lg := flog.FromContext(ctx, "lookup")
			lg.Warn().Err(err).Msg("airport search failed")
			return nil, newAPIError(http.StatusBadGateway, "lookup_failed", "airport search unavailable", nil)
		}
		return &struct {
			Body AirportsResponse `json:"body"`
		}{Body: AirportsResponse{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "search-flights",
		Method:      http.MethodGet,
		Path:        "/flights/search",
		Summary:     "Search flights for a segment and date",
		Description: "Lookup failures degrade to an empty result with manual entry offered.",
		Tags:        []string{"lookups"},
	}, func(ctx context.Context, input *struct {
		From string `query:"from"`
		To   string `query:"to"`
		Date string `query:"date"`
	}) (*struct {
		Body engine.FlightSearchResult `json:"body"`
	}, error) {
		return &struct {
			Body engine.FlightSearchResult `json:"body"`
		}{Body: e.SearchFlights(ctx, input.From, input.To, input.Date)}, nil
	})
}

func registerWizard(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "start-wizard",
		Method:        http.MethodPost,
		Path:          "/wizard",
		Summary:       "Start a claim wizard session",
		Description:   "Query parameters seed the draft; handoff consumes an express boarding-pass upload and starts in fast-track mode.",
		Tags:          []string{"wizard"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		From    string `query:"from"`
		To      string `query:"to"`
		Date    string `query:"date"`
		Direct  string `query:"direct"`
		Handoff string `query:"handoff"`
	}) (*struct {
		Body engine.WizardView `json:"body"`
	}, error) {
		opts := engine.StartOptions{From: input.From, To: input.To, Date: input.Date, Handoff: input.Handoff}
		if v, err := strconv.ParseBool(input.Direct); err == nil {
			opts.Direct = &v
		}
		v, err := e.StartWizard(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.WizardView `json:"body"`
		}{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-wizard",
		Method:      http.MethodGet,
		Path:        "/wizard/{id}",
		Summary:     "Get a wizard session",
		Tags:        []string{"wizard"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *wizardPath) (*struct {
		Body engine.WizardView `json:"body"`
	}, error) {
		v, err := e.GetWizard(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.WizardView `json:"body"`
		}{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "apply-wizard-action",
		Method:      http.MethodPost,
		Path:        "/wizard/{id}/actions",
		Summary:     "Apply a draft action",
		Tags:        []string{"wizard"},
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body wizard.Action `json:"body"`
	}) (*struct {
		Body engine.WizardView `json:"body"`
	}, error) {
		ctx = flog.ContextWithSessionID(ctx, input.ID)
		v, err := e.ApplyAction(ctx, input.ID, input.Body)
		if err != nil {
			return nil, wizardError(v, err)
		}
		lg := flog.FromContext(ctx, "wizard")
		lg.Debug().Str(flog.FieldAction, string(input.Body.Type)).Int(flog.FieldStep, v.Step).Msg("action applied")
		return &struct {
			Body engine.WizardView `json:"body"`
		}{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "wizard-next",
		Method:      http.MethodPost,
		Path:        "/wizard/{id}/next",
		Summary:     "Advance to the next visible step",
		Description: "Advancing from the privacy step submits the claim.",
		Tags:        []string{"wizard"},
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *wizardPath) (*struct {
		Body engine.WizardView `json:"body"`
	}, error) {
		v, err := e.Next(ctx, input.ID)
		if err != nil {
			return nil, wizardError(v, err)
		}
		return &struct {
			Body engine.WizardView `json:"body"`
		}{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "wizard-prev",
		Method:      http.MethodPost,
		Path:        "/wizard/{id}/prev",
		Summary:     "Go back to the previous visible step",
		Description: "exited is true when the session is at its entry step and the client should leave the wizard.",
		Tags:        []string{"wizard"},
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *wizardPath) (*struct {
		Body PrevResponse `json:"body"`
	}, error) {
		v, exited, err := e.Prev(ctx, input.ID)
		if err != nil {
			return nil, wizardError(v, err)
		}
		return &struct {
			Body PrevResponse `json:"body"`
		}{Body: PrevResponse{Wizard: v, Exited: exited}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "wizard-segments",
		Method:      http.MethodGet,
		Path:        "/wizard/{id}/segments",
		Summary:     "List the segments derived from the journey",
		Tags:        []string{"wizard"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *wizardPath) (*struct {
		Body SegmentsResponse `json:"body"`
	}, error) {
		segs, err := e.Segments(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SegmentsResponse `json:"body"`
		}{Body: SegmentsResponse{Items: nonNilSlice(segs)}}, nil
	})
}

// registerUploadRoutes mounts the multipart endpoints directly on chi so file bodies are
// streamed into the validator instead of buffered by the operation layer.
func registerUploadRoutes(r chi.Router, basePath string, e engine.Engine) {
	r.Post(path.Join(basePath, "uploads"), func(w http.ResponseWriter, req *http.Request) {
		withFormFile(w, req, func(file io.Reader, _ string) {
			url, err := e.Upload(req.Context(), file)
			if err != nil {
				respondStatusError(w, handleError(err))
				return
			}
			writeJSON(w, http.StatusCreated, UploadResponse{URL: url})
		})
	})

	r.Post(path.Join(basePath, "uploads", "express"), func(w http.ResponseWriter, req *http.Request) {
		withFormFile(w, req, func(file io.Reader, _ string) {
			res, err := e.ExpressUpload(req.Context(), file)
			if err != nil {
				respondStatusError(w, handleError(err))
				return
			}
			writeJSON(w, http.StatusCreated, res)
		})
	})

	r.Post(path.Join(basePath, "wizard", "{id}", "express"), func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		ctx := flog.ContextWithSessionID(req.Context(), id)
		withFormFile(w, req, func(file io.Reader, _ string) {
			v, err := e.ExpressInSession(ctx, id, file)
			if err != nil {
				respondStatusError(w, wizardError(v, err))
				return
			}
			writeJSON(w, http.StatusOK, v)
		})
	})

	r.Post(path.Join(basePath, "wizard", "{id}", "documents", "{kind}"), func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		kind := domain.DocumentKind(chi.URLParam(req, "kind"))
		ctx := flog.ContextWithSessionID(req.Context(), id)
		withFormFile(w, req, func(file io.Reader, filename string) {
			v, err := e.StageDocument(ctx, id, kind, file, filename)
			if err != nil {
				respondStatusError(w, wizardError(v, err))
				return
			}
			lg := flog.FromContext(ctx, "wizard")
			lg.Info().Str(flog.FieldDocument, string(kind)).Msg("document staged")
			writeJSON(w, http.StatusOK, v)
		})
	})
}

// withFormFile finds the "file" part of a multipart body and hands it to fn.
func withFormFile(w http.ResponseWriter, req *http.Request, fn func(file io.Reader, filename string)) {
	mr, err := req.MultipartReader()
	if err != nil {
		respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "multipart body with a file field is required", nil))
		return
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "malformed multipart body", nil))
			return
		}
		if part.FormName() == "file" {
			fn(part, part.FileName())
			_ = part.Close()
			return
		}
		_ = part.Close()
	}
	respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "file field is required", nil))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
