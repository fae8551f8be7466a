package flightclaimsdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestClientWizardCalls(t *testing.T) {
	var gotAuth, gotQuery, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/wizard":
			gotQuery = r.URL.RawQuery
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "w1", "step": 1, "step_name": "journey", "can_advance": true})
		case r.Method == http.MethodPost && r.URL.Path == "/v1/wizard/w1/actions":
			var a map[string]any
			_ = json.NewDecoder(r.Body).Decode(&a)
			gotBody, _ = a["type"].(string)
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "w1", "step": 1, "draft": map[string]any{"is_direct": true}})
		case r.URL.Path == "/v1/wizard/w1/next":
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"error":{"code":"step_incomplete","message":"step is incomplete"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.BearerToken = "tok"
	direct := true
	wz, err := c.StartWizard(context.Background(), StartOptions{From: "LHR", Direct: &direct})
	require.NoError(t, err)
	assert.Equal(t, "w1", wz.ID)
	assert.True(t, wz.CanAdvance)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Contains(t, gotQuery, "from=LHR")
	assert.Contains(t, gotQuery, "direct=true")

	wz, err = c.Apply(context.Background(), "w1", Action{"type": "set_direct", "enabled": true})
	require.NoError(t, err)
	assert.Equal(t, "set_direct", gotBody)
	assert.Equal(t, true, wz.Draft["is_direct"])

	_, err = c.Next(context.Background(), "w1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "step_incomplete", apiErr.Code)
	c.HTTPClient.CloseIdleConnections()
}

func TestClientStageDocumentSendsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/wizard/w1/documents/id_document" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "w1", "draft": map[string]any{"filename": hdr.Filename}})
	}))
	defer srv.Close()

	c := New(srv.URL)
	wz, err := c.StageDocument(context.Background(), "w1", "id_document", "passport.pdf", strings.NewReader("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, "passport.pdf", wz.Draft["filename"])
	c.HTTPClient.CloseIdleConnections()
}

func TestSuggesterSkipsShortQueries(t *testing.T) {
	var calls atomic.Int32
	s := &AirportSuggester{
		Search: func(ctx context.Context, q string) ([]Airport, error) {
			calls.Add(1)
			return []Airport{{IATA: "LHR"}}, nil
		},
		MinChars: 2,
	}
	items, err := s.Suggest(context.Background(), "l")
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, int32(0), calls.Load())

	items, err = s.Suggest(context.Background(), "lo")
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestSuggesterMostRecentQueryWins(t *testing.T) {
	var mu sync.Mutex
	var searched []string
	s := &AirportSuggester{
		Search: func(ctx context.Context, q string) ([]Airport, error) {
			mu.Lock()
			searched = append(searched, q)
			mu.Unlock()
			return []Airport{{IATA: strings.ToUpper(q)}}, nil
		},
		Delay: 200 * time.Millisecond,
	}

	errs := make(chan error, 1)
	go func() {
		_, err := s.Suggest(context.Background(), "lo")
		errs <- err
	}()
	time.Sleep(50 * time.Millisecond)
	items, err := s.Suggest(context.Background(), "lhr")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "LHR", items[0].IATA)
	assert.ErrorIs(t, <-errs, ErrSuperseded)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"lhr"}, searched)
}

func TestSuggesterDropsInFlightResults(t *testing.T) {
	started := make(chan struct{})
	s := &AirportSuggester{
		Search: func(ctx context.Context, q string) ([]Airport, error) {
			if q == "lo" {
				close(started)
				<-ctx.Done()
				return nil, ctx.Err()
			}
			return []Airport{{IATA: "LON"}}, nil
		},
	}
	errs := make(chan error, 1)
	go func() {
		_, err := s.Suggest(context.Background(), "lo")
		errs <- err
	}()
	<-started
	items, err := s.Suggest(context.Background(), "lon")
	require.NoError(t, err)
	assert.Equal(t, "LON", items[0].IATA)
	assert.ErrorIs(t, <-errs, ErrSuperseded)
}

func TestSuggesterHonoursCallerCancellation(t *testing.T) {
	s := &AirportSuggester{
		Search: func(ctx context.Context, q string) ([]Airport, error) { return nil, nil },
		Delay:  time.Second,
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Suggest(ctx, "lhr")
	assert.ErrorIs(t, err, context.Canceled)
}
