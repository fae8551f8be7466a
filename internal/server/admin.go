package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"flightclaim/internal/domain"
	"flightclaim/internal/engine"
	"flightclaim/internal/repo"
)

func registerChatSessions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-chat-session",
		Method:        http.MethodPost,
		Path:          "/chat-sessions",
		Summary:       "Create a chat session",
		Tags:          []string{"chat"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body ChatSessionRequest `json:"body"`
	}) (*struct {
		Body domain.ChatSession `json:"body"`
	}, error) {
		s, err := e.CreateChatSession(ctx, input.Body.Visitor, input.Body.Messages)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ChatSession `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-chat-session",
		Method:      http.MethodPut,
		Path:        "/chat-sessions/{id}",
		Summary:     "Replace a chat session's messages",
		Tags:        []string{"chat"},
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body ChatMessagesRequest `json:"body"`
	}) (*struct {
		Body domain.ChatSession `json:"body"`
	}, error) {
		s, err := e.UpdateChatSession(ctx, input.ID, input.Body.Messages)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ChatSession `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-chat-session",
		Method:      http.MethodGet,
		Path:        "/chat-sessions/{id}",
		Summary:     "Get a chat session with its messages",
		Tags:        []string{"chat"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.ChatSession `json:"body"`
	}, error) {
		s, err := e.GetChatSession(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ChatSession `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-chat-sessions",
		Method:      http.MethodGet,
		Path:        "/chat-sessions",
		Summary:     "List chat sessions",
		Tags:        []string{"admin"},
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body paginatedChatSessions `json:"body"`
	}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		cursorTS, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		limit := normalizeLimit(input.Limit)
		items, err := e.ListChatSessions(ctx, limit+1, cursorTS, cursorID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedChatSessions{Items: nonNilSlice(items)}
		if len(items) > limit {
			last := items[limit-1]
			resp.NextCursor = composeCursor(last.UpdatedAt, last.ID)
			resp.Items = items[:limit]
		}
		return &struct {
			Body paginatedChatSessions `json:"body"`
		}{Body: resp}, nil
	})
}

func registerClaims(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-claims",
		Method:      http.MethodGet,
		Path:        "/claims",
		Summary:     "List submitted claims",
		Tags:        []string{"admin"},
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"submitted,reviewing,accepted,rejected"`
		Email  string `query:"email"`
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body paginatedClaims `json:"body"`
	}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		cursorTS, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		limit := normalizeLimit(input.Limit)
		items, err := e.ListClaims(ctx, repo.ClaimFilters{
			Status:          input.Status,
			Email:           input.Email,
			Limit:           limit + 1,
			CursorCreatedAt: cursorTS,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedClaims{Items: nonNilSlice(items)}
		if len(items) > limit {
			last := items[limit-1]
			resp.NextCursor = composeCursor(last.CreatedAt, last.ID)
			resp.Items = items[:limit]
		}
		return &struct {
			Body paginatedClaims `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "claim-stats",
		Method:      http.MethodGet,
		Path:        "/claims/stats",
		Summary:     "Count claims by status",
		Tags:        []string{"admin"},
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ClaimStatsResponse `json:"body"`
	}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		counts, err := e.ClaimStats(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ClaimStatsResponse `json:"body"`
		}{Body: ClaimStatsResponse{Counts: counts}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-claim",
		Method:      http.MethodGet,
		Path:        "/claims/{id}",
		Summary:     "Get a submitted claim",
		Tags:        []string{"admin"},
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ClaimResponse `json:"body"`
	}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		c, err := e.GetClaim(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ClaimResponse `json:"body"`
		}{Body: claimResponse(c)}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Tags:        []string{"admin"},
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"claim,wizard,chat_session"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.ListEvents(ctx, limit+1, cursorID, repo.EventFilters{
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}
