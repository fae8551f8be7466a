package flightclaimsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Flight Claim HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

// Airport is an airport lookup result.
type Airport struct {
	IATA             string `json:"iata"`
	ICAO             string `json:"icao,omitempty"`
	Name             string `json:"name,omitempty"`
	MunicipalityName string `json:"municipalityName,omitempty"`
	CountryCode      string `json:"countryCode,omitempty"`
	Label            string `json:"label,omitempty"`
}

// Flight is a flight lookup result (partial).
type Flight struct {
	ID           string `json:"id,omitempty"`
	FlightNumber string `json:"flight_number"`
	Airline      struct {
		Code string `json:"code"`
		Name string `json:"name"`
	} `json:"airline"`
	Status string `json:"status,omitempty"`
}

// FlightSearch is the flight search response. ManualEntry is always offered.
type FlightSearch struct {
	Flights     []Flight `json:"flights"`
	NoFlights   bool     `json:"no_flights"`
	ManualEntry bool     `json:"manual_entry"`
}

// Wizard is a wizard session. Draft is left untyped so clients keep unknown fields.
type Wizard struct {
	ID         string         `json:"id"`
	Step       int            `json:"step"`
	StepName   string         `json:"step_name"`
	CanAdvance bool           `json:"can_advance"`
	CanGoBack  bool           `json:"can_go_back"`
	FastTrack  bool           `json:"fast_track"`
	Completed  bool           `json:"completed"`
	ClaimID    string         `json:"claim_id,omitempty"`
	Draft      map[string]any `json:"draft"`
}

// Action is one draft mutation, e.g. {"type": "set_problem_type", "value": "delayed"}.
type Action map[string]any

// StartOptions seed a new wizard from landing-page parameters.
type StartOptions struct {
	From    string
	To      string
	Date    string
	Direct  *bool
	Handoff string
}

// Express is the result of an express boarding-pass upload.
type Express struct {
	Token           string         `json:"token"`
	BoardingPassURL string         `json:"boarding_pass_url"`
	Extraction      map[string]any `json:"extraction"`
}

// Claim is a submitted claim as listed by the admin API.
type Claim struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	FastTrack     bool   `json:"fast_track"`
	DepartureIATA string `json:"departure_iata"`
	ArrivalIATA   string `json:"arrival_iata"`
	FlightNumber  string `json:"flight_number,omitempty"`
	TravelDate    string `json:"travel_date,omitempty"`
	ProblemType   string `json:"problem_type"`
	Email         string `json:"email"`
	CreatedAt     string `json:"created_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%s body=%s", e.StatusCode, e.Code, e.Body)
}

// PaginatedClaims wraps list responses with cursors.
type PaginatedClaims struct {
	Items      []Claim `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// SearchAirports returns airports matching q.
func (c *Client) SearchAirports(ctx context.Context, q string) ([]Airport, error) {
	var resp struct {
		Items []Airport `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "airports/search?q="+url.QueryEscape(q), nil, &resp)
	return resp.Items, err
}

// SearchFlights returns flights for a segment on a date.
func (c *Client) SearchFlights(ctx context.Context, from, to, date string) (FlightSearch, error) {
	q := url.Values{"from": {from}, "to": {to}, "date": {date}}
	var resp FlightSearch
	err := c.do(ctx, http.MethodGet, "flights/search?"+q.Encode(), nil, &resp)
	return resp, err
}

// StartWizard creates a wizard session.
func (c *Client) StartWizard(ctx context.Context, opts StartOptions) (Wizard, error) {
	q := url.Values{}
	for k, v := range map[string]string{"from": opts.From, "to": opts.To, "date": opts.Date, "handoff": opts.Handoff} {
		if v != "" {
			q.Set(k, v)
		}
	}
	if opts.Direct != nil {
		q.Set("direct", strconv.FormatBool(*opts.Direct))
	}
	endpoint := "wizard"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp Wizard
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Wizard fetches a wizard session.
func (c *Client) Wizard(ctx context.Context, id string) (Wizard, error) {
	var resp Wizard
	err := c.do(ctx, http.MethodGet, "wizard/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Apply applies one action to the session's draft.
func (c *Client) Apply(ctx context.Context, id string, a Action) (Wizard, error) {
	var resp Wizard
	err := c.do(ctx, http.MethodPost, "wizard/"+url.PathEscape(id)+"/actions", a, &resp)
	return resp, err
}

// Next advances the session; on the privacy step it submits the claim.
func (c *Client) Next(ctx context.Context, id string) (Wizard, error) {
	var resp Wizard
	err := c.do(ctx, http.MethodPost, "wizard/"+url.PathEscape(id)+"/next", nil, &resp)
	return resp, err
}

// Prev moves the session back. exited reports that the client should leave the wizard.
func (c *Client) Prev(ctx context.Context, id string) (w Wizard, exited bool, err error) {
	var resp struct {
		Wizard Wizard `json:"wizard"`
		Exited bool   `json:"exited"`
	}
	err = c.do(ctx, http.MethodPost, "wizard/"+url.PathEscape(id)+"/prev", nil, &resp)
	return resp.Wizard, resp.Exited, err
}

// StageDocument uploads a document ("boarding_pass" or "id_document") onto the draft.
func (c *Client) StageDocument(ctx context.Context, id, kind, filename string, r io.Reader) (Wizard, error) {
	var resp Wizard
	endpoint := fmt.Sprintf("wizard/%s/documents/%s", url.PathEscape(id), url.PathEscape(kind))
	err := c.upload(ctx, endpoint, filename, r, &resp)
	return resp, err
}

// ExpressUpload uploads a boarding pass and returns a handoff token for StartWizard.
func (c *Client) ExpressUpload(ctx context.Context, filename string, r io.Reader) (Express, error) {
	var resp Express
	err := c.upload(ctx, "uploads/express", filename, r, &resp)
	return resp, err
}

// Claims lists submitted claims. Requires an admin bearer token.
func (c *Client) Claims(ctx context.Context, status string, limit int, cursor string) (PaginatedClaims, error) {
	var resp PaginatedClaims
	err := c.do(ctx, http.MethodGet, "claims?"+pageQuery(map[string]string{"status": status}, limit, cursor), nil, &resp)
	return resp, err
}

// EventsPage returns a paginated event listing. Requires an admin bearer token.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, "events?"+pageQuery(nil, limit, cursor), nil, &resp)
	return resp, err
}

func pageQuery(filters map[string]string, limit int, cursor string) string {
	q := url.Values{}
	for k, v := range filters {
		if v != "" {
			q.Set(k, v)
		}
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	return q.Encode()
}

func (c *Client) upload(ctx context.Context, endpoint, filename string, r io.Reader, out any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(fw, r); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}
	return c.send(ctx, http.MethodPost, endpoint, &buf, mw.FormDataContentType(), out)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	return c.send(ctx, method, endpoint, &buf, "application/json", out)
}

func (c *Client) send(ctx context.Context, method, endpoint string, body io.Reader, contentType string, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(endpoint), body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) url(endpoint string) string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base + "/" + strings.TrimLeft(endpoint, "/")
}
