package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTPSubmitter posts the payload to a remote claim submission service.
type HTTPSubmitter struct {
	url  string
	http *http.Client
}

func NewHTTPSubmitter(url string, timeout time.Duration) *HTTPSubmitter {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPSubmitter{url: strings.TrimRight(url, "/"), http: &http.Client{Timeout: timeout}}
}

func (h *HTTPSubmitter) Submit(ctx context.Context, s Submission) (Result, error) {
	body, err := json.Marshal(s)
	if err != nil {
		return Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := h.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("submit claim: %w", err)
	}
	defer res.Body.Close()
	var out Result
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("submit claim: status %d: %w", res.StatusCode, err)
	}
	if res.StatusCode/100 != 2 && out.Error == "" {
		out.Success = false
		out.Error = fmt.Sprintf("claim service returned %d", res.StatusCode)
	}
	return out, nil
}
