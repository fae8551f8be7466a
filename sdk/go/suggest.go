package flightclaimsdk

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrSuperseded is returned by Suggest when a newer query replaced this one.
var ErrSuperseded = errors.New("query superseded")

// AirportSuggester debounces airport searches typed into an autocomplete field. Only the
// most recent query is searched; older calls return ErrSuperseded and their results are dropped.
type AirportSuggester struct {
	Search   func(ctx context.Context, q string) ([]Airport, error)
	Delay    time.Duration
	MinChars int

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

// NewAirportSuggester searches through c with a 300ms debounce and a two-character minimum.
func NewAirportSuggester(c *Client) *AirportSuggester {
	return &AirportSuggester{Search: c.SearchAirports, Delay: 300 * time.Millisecond, MinChars: 2}
}

// Suggest waits for the debounce delay and searches q unless a newer call arrives first.
// Queries shorter than MinChars return no results without searching.
func (s *AirportSuggester) Suggest(ctx context.Context, q string) ([]Airport, error) {
	q = strings.TrimSpace(q)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.seq++
	mine := s.seq
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()

	if len([]rune(q)) < s.MinChars {
		return nil, nil
	}
	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, s.cause(ctx, mine)
		case <-timer.C:
		}
	}
	if !s.current(mine) {
		return nil, ErrSuperseded
	}
	items, err := s.Search(ctx, q)
	if !s.current(mine) {
		return nil, ErrSuperseded
	}
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *AirportSuggester) current(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq == seq
}

// cause tells a caller cancellation apart from being replaced by a newer query.
func (s *AirportSuggester) cause(ctx context.Context, seq uint64) error {
	if !s.current(seq) {
		return ErrSuperseded
	}
	return ctx.Err()
}
