package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"flightclaim/internal/domain"
	"flightclaim/internal/wizard"
)

const (
	wizardKeyPattern  = "wizard:%s"
	handoffKeyPattern = "handoff:%s"
)

// Wizards persists wizard states as JSON with a sliding TTL.
type Wizards struct {
	Store Store
	TTL   time.Duration
}

func (w Wizards) Load(ctx context.Context, id string) (wizard.State, error) {
	var s wizard.State
	data, err := w.Store.Get(ctx, fmt.Sprintf(wizardKeyPattern, id))
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("unmarshal wizard %s: %w", id, err)
	}
	return s, nil
}

func (w Wizards) Save(ctx context.Context, id string, s wizard.State) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal wizard %s: %w", id, err)
	}
	return w.Store.Set(ctx, fmt.Sprintf(wizardKeyPattern, id), data, w.TTL)
}

func (w Wizards) Delete(ctx context.Context, id string) error {
	return w.Store.Delete(ctx, fmt.Sprintf(wizardKeyPattern, id))
}

// Handoff carries a fast-track extraction, including the stored boarding-pass URL, from
// the express upload to the wizard that consumes it.
type Handoff struct {
	Draft     domain.ClaimDraft `json:"draft"`
	CreatedAt string            `json:"created_at"`
}

// Handoffs are single-use: Take removes the entry.
type Handoffs struct {
	Store Store
	TTL   time.Duration
}

func (h Handoffs) Put(ctx context.Context, token string, v Handoff) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal handoff: %w", err)
	}
	return h.Store.Set(ctx, fmt.Sprintf(handoffKeyPattern, token), data, h.TTL)
}

func (h Handoffs) Take(ctx context.Context, token string) (Handoff, error) {
	var v Handoff
	data, err := h.Store.Take(ctx, fmt.Sprintf(handoffKeyPattern, token))
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("unmarshal handoff: %w", err)
	}
	return v, nil
}
