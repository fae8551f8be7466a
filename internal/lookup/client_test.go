package lookup

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flightclaim/internal/session"
)

func TestSearchAirportsCachesResults(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/airports/search", r.URL.Path)
		assert.Equal(t, "Lond", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(`{"items":[{"iata":"LHR","icao":"EGLL","name":"Heathrow","municipalityName":"London","countryCode":"GB","label":"London Heathrow (LHR)"}]}`))
	}))
	defer srv.Close()

	c := New(Options{AirportsURL: srv.URL + "/", CacheTTL: time.Minute, Cache: session.NewMemoryStore(), Logger: zerolog.Nop()})
	for i := 0; i < 3; i++ {
		items, err := c.SearchAirports(context.Background(), " Lond ")
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "EGLL", items[0].ICAO)
		assert.Equal(t, "London", items[0].MunicipalityName)
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestSearchAirportsShortQuerySkipsUpstream(t *testing.T) {
	c := New(Options{AirportsURL: "http://127.0.0.1:1"})
	items, err := c.SearchAirports(context.Background(), "L")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestSearchAirportsCoalescesConcurrentQueries(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	c := New(Options{AirportsURL: srv.URL})
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.SearchAirports(context.Background(), "par")
			assert.NoError(t, err)
		}()
	}
	assert.Eventually(t, func() bool { return hits.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, hits.Load(), int32(2))
}

func TestSearchFlights(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("from") != "LHR" || q.Get("to") != "JFK" || q.Get("date") != "2024-05-01" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"flights":[{"flight_number":"BA117","airline":{"code":"BA","name":"British Airways"},"departure":{"airport":"LHR","scheduled":"2024-05-01T08:25:00Z"},"arrival":{"airport":"JFK","scheduled":"2024-05-01T11:20:00Z"}}]}`))
	}))
	defer srv.Close()

	c := New(Options{FlightsURL: srv.URL})
	flights, err := c.SearchFlights(context.Background(), "LHR", "JFK", "2024-05-01")
	require.NoError(t, err)
	require.Len(t, flights, 1)
	assert.Equal(t, "BA117", flights[0].FlightNumber)
	assert.Equal(t, "British Airways", flights[0].Airline.Name)

	_, err = c.SearchFlights(context.Background(), "LHR", "CDG", "2024-05-01")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Status)

	_, err = c.SearchFlights(context.Background(), "LHR", "JFK", "May 1st")
	assert.Error(t, err)
}
