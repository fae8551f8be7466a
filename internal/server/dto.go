package server

import (
	"encoding/json"

	"flightclaim/internal/domain"
	"flightclaim/internal/engine"
)

// Request payloads

type ChatSessionRequest struct {
	Visitor  string               `json:"visitor,omitempty"`
	Messages []domain.ChatMessage `json:"messages"`
}

type ChatMessagesRequest struct {
	Messages []domain.ChatMessage `json:"messages"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

// Response payloads

type DevLoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at" format:"date-time"`
}

type UploadResponse struct {
	URL string `json:"url"`
}

type PrevResponse struct {
	Wizard engine.WizardView `json:"wizard"`
	Exited bool              `json:"exited"`
}

type SegmentsResponse struct {
	Items []domain.Segment `json:"items"`
}

type AirportsResponse struct {
	Items []domain.Airport `json:"items"`
}

type ClaimResponse struct {
	Claim   domain.Claim   `json:"claim"`
	Payload map[string]any `json:"payload"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type ClaimStatsResponse struct {
	Counts map[string]int `json:"counts"`
}

type paginatedClaims struct {
	Items      []domain.Claim `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type paginatedChatSessions struct {
	Items      []domain.ChatSession `json:"items"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func claimResponse(c domain.Claim) ClaimResponse {
	payload := decodeJSONMap(c.PayloadJSON)
	if payload == nil {
		payload = map[string]any{}
	}
	return ClaimResponse{Claim: c, Payload: payload}
}

func eventResponse(e domain.Event) EventResponse {
	payload := decodeJSONMap(e.Payload)
	if payload == nil {
		payload = map[string]any{}
	}
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    payload,
	}
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
