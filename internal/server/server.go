package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"flightclaim/internal/engine"
	"flightclaim/internal/fasttrack"
	"flightclaim/internal/metrics"
	"flightclaim/internal/repo"
	"flightclaim/internal/session"
	"flightclaim/internal/upload"
	"flightclaim/internal/wizard"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	// RateLimit is the per-IP request budget per minute; zero disables limiting.
	RateLimit int
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"step_incomplete"`
	Message string         `json:"message" example:"step is incomplete: journey"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"step\":1}"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the claim intake API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors are 400 bad_request; 422 is kept for wizard guards.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(recoverer)
	router.Use(requestID)
	router.Use(metrics.Middleware)
	router.Use(accessLog)
	if cfg.RateLimit > 0 {
		router.Use(rateLimit(cfg.RateLimit))
	}
	router.Use(newAuthMiddleware(cfg.Auth))

	hcfg := huma.DefaultConfig("Flight Claim API", "1.0.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	router.Handle(path.Join(basePath, "metrics"), metrics.Handler())
	registerLookups(group, cfg.Engine)
	registerWizard(group, cfg.Engine)
	registerUploadRoutes(router, basePath, cfg.Engine)
	registerFiles(router, basePath, cfg.Engine)
	registerChatSessions(group, cfg.Engine)
	registerClaims(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerDevAuth(group, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case errors.Is(err, repo.ErrNotFound), errors.Is(err, session.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", msg, nil)
	case errors.Is(err, wizard.ErrIncomplete):
		return newAPIError(http.StatusUnprocessableEntity, "step_incomplete", msg, nil)
	case errors.Is(err, wizard.ErrTerminal):
		return newAPIError(http.StatusConflict, "wizard_complete", msg, nil)
	case errors.Is(err, wizard.ErrInvalidAction):
		return newAPIError(http.StatusBadRequest, "invalid_action", msg, nil)
	case errors.Is(err, upload.ErrUnsupportedType):
		return newAPIError(http.StatusBadRequest, "unsupported_file_type", msg, nil)
	case errors.Is(err, upload.ErrTooLarge):
		return newAPIError(http.StatusRequestEntityTooLarge, "file_too_large", msg, nil)
	case errors.Is(err, upload.ErrStoreFailed):
		return newAPIError(http.StatusBadGateway, "upload_failed", msg, nil)
	case errors.Is(err, engine.ErrSubmission):
		return newAPIError(http.StatusBadGateway, "submission_failed", msg, nil)
	case errors.Is(err, engine.ErrFastTrackDisabled):
		return newAPIError(http.StatusForbidden, "fast_track_disabled", msg, nil)
	case errors.Is(err, fasttrack.ErrNoJourney):
		return newAPIError(http.StatusUnprocessableEntity, "extraction_failed", msg, nil)
	case errors.Is(err, engine.ErrInvalidChat):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get(path.Join(basePath, "docs"), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

// applyAuthSecurity marks admin operations as requiring a bearer token.
func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			for _, tag := range op.Tags {
				if tag == "admin" {
					op.Security = security
				}
			}
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Flight Claim API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Admin operations require Authorization: Bearer &lt;token&gt;.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

// registerFiles serves stored documents from the local disk store. A request needs the
// document's signed link token or an admin bearer token.
func registerFiles(r chi.Router, basePath string, e engine.Engine) {
	store, ok := e.Uploads.Store.(upload.DiskStore)
	if !ok {
		return
	}
	r.Get(path.Join(basePath, "files", "{name}"), func(w http.ResponseWriter, req *http.Request) {
		name := chi.URLParam(req, "name")
		if !fileAccessAllowed(req, store.Signer, name) {
			respondStatusError(w, newAPIError(http.StatusForbidden, "forbidden", "document link is missing or expired", map[string]any{"name": name}))
			return
		}
		f, err := store.Open(name)
		if err != nil {
			respondStatusError(w, newAPIError(http.StatusNotFound, "not_found", "file not found", map[string]any{"name": name}))
			return
		}
		defer f.Close()
		st, err := f.Stat()
		if err != nil || st.IsDir() {
			respondStatusError(w, newAPIError(http.StatusNotFound, "not_found", "file not found", map[string]any{"name": name}))
			return
		}
		w.Header().Set("Cache-Control", "private, no-store")
		http.ServeContent(w, req, name, st.ModTime(), f)
	})
}

func fileAccessAllowed(req *http.Request, signer *upload.LinkSigner, name string) bool {
	if requireAdmin(req.Context()) == nil {
		return true
	}
	if signer == nil {
		return false
	}
	return signer.Verify(req.URL.Query().Get("token"), name) == nil
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

func parseCompositeCursor(cursor string) (string, string, error) {
	if cursor == "" {
		return "", "", nil
	}
	parts := strings.SplitN(cursor, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid cursor")
	}
	return parts[0], parts[1], nil
}

func composeCursor(ts, id string) string {
	if ts == "" || id == "" {
		return ""
	}
	return ts + "|" + id
}
