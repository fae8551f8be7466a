// Package lookup talks to the external airport and flight search services.
package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"flightclaim/internal/domain"
	"flightclaim/internal/metrics"
	"flightclaim/internal/session"
)

// MinQueryLength is the shortest airport query that is sent upstream.
const MinQueryLength = 2

// Options configures a Client.
type Options struct {
	AirportsURL string
	FlightsURL  string
	Timeout     time.Duration
	CacheTTL    time.Duration
	// Cache, when set, keeps airport results for CacheTTL.
	Cache  session.Store
	Logger zerolog.Logger
}

type Client struct {
	airports string
	flights  string
	http     *http.Client
	cache    session.Store
	ttl      time.Duration
	group    singleflight.Group
	log      zerolog.Logger
}

func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		airports: strings.TrimRight(opts.AirportsURL, "/"),
		flights:  strings.TrimRight(opts.FlightsURL, "/"),
		http:     &http.Client{Timeout: timeout},
		cache:    opts.Cache,
		ttl:      opts.CacheTTL,
		log:      opts.Logger,
	}
}

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("lookup %s: unexpected status %d", e.URL, e.Status)
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, res.Body)
		return &StatusError{URL: u, Status: res.StatusCode}
	}
	return json.NewDecoder(res.Body).Decode(out)
}

// SearchAirports returns airports matching q. Queries shorter than MinQueryLength return
// no results without a request. Identical concurrent queries share one upstream call.
func (c *Client) SearchAirports(ctx context.Context, q string) ([]domain.Airport, error) {
	q = strings.TrimSpace(q)
	if len([]rune(q)) < MinQueryLength {
		return []domain.Airport{}, nil
	}
	key := "lookup:airports:" + strings.ToLower(q)
	if items, ok := c.cached(ctx, key); ok {
		metrics.RecordLookup("airports", "cache_hit")
		return items, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		var p struct {
			Items []domain.Airport `json:"items"`
		}
		u := c.airports + "/airports/search?q=" + url.QueryEscape(q)
		if err := c.getJSON(ctx, u, &p); err != nil {
			return nil, err
		}
		if p.Items == nil {
			p.Items = []domain.Airport{}
		}
		c.store(ctx, key, p.Items)
		return p.Items, nil
	})
	if err != nil {
		metrics.RecordLookup("airports", "error")
		return nil, fmt.Errorf("search airports %q: %w", q, err)
	}
	metrics.RecordLookup("airports", "success")
	return v.([]domain.Airport), nil
}

// SearchFlights returns scheduled flights for a segment on a date.
func (c *Client) SearchFlights(ctx context.Context, from, to, date string) ([]domain.Flight, error) {
	if from == "" || to == "" {
		return nil, errors.New("search flights: from and to are required")
	}
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return nil, fmt.Errorf("search flights: date %q: %w", date, err)
	}
	q := url.Values{}
	q.Set("from", from)
	q.Set("to", to)
	q.Set("date", date)
	var p struct {
		Flights []domain.Flight `json:"flights"`
	}
	if err := c.getJSON(ctx, c.flights+"/flights/search?"+q.Encode(), &p); err != nil {
		metrics.RecordLookup("flights", "error")
		return nil, fmt.Errorf("search flights %s-%s %s: %w", from, to, date, err)
	}
	metrics.RecordLookup("flights", "success")
	if p.Flights == nil {
		p.Flights = []domain.Flight{}
	}
	return p.Flights, nil
}

func (c *Client) cached(ctx context.Context, key string) ([]domain.Airport, bool) {
	if c.cache == nil || c.ttl <= 0 {
		return nil, false
	}
	data, err := c.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			c.log.Warn().Err(err).Str("key", key).Msg("lookup cache get failed")
		}
		return nil, false
	}
	var items []domain.Airport
	if err := json.Unmarshal(data, &items); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("lookup cache entry unreadable")
		return nil, false
	}
	return items, true
}

func (c *Client) store(ctx context.Context, key string, items []domain.Airport) {
	if c.cache == nil || c.ttl <= 0 {
		return
	}
	data, err := json.Marshal(items)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("lookup cache set failed")
	}
}
