package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"flightclaim/internal/domain"
	"flightclaim/internal/events"
	"flightclaim/internal/repo"
)

// ErrInvalidChat is returned for malformed chat sessions.
var ErrInvalidChat = errors.New("invalid chat session")

var chatRoles = map[string]bool{"user": true, "assistant": true, "system": true}

func (e Engine) normalizeMessages(messages []domain.ChatMessage) ([]domain.ChatMessage, error) {
	out := make([]domain.ChatMessage, 0, len(messages))
	for i, m := range messages {
		m.Role = strings.ToLower(strings.TrimSpace(m.Role))
		if !chatRoles[m.Role] {
			return nil, fmt.Errorf("%w: messages[%d].role %q", ErrInvalidChat, i, m.Role)
		}
		if strings.TrimSpace(m.Content) == "" {
			return nil, fmt.Errorf("%w: messages[%d].content is empty", ErrInvalidChat, i)
		}
		if m.TS == "" {
			m.TS = e.timestamp()
		}
		out = append(out, m)
	}
	return out, nil
}

func (e Engine) CreateChatSession(ctx context.Context, visitor string, messages []domain.ChatMessage) (domain.ChatSession, error) {
	msgs, err := e.normalizeMessages(messages)
	if err != nil {
		return domain.ChatSession{}, err
	}
	now := e.timestamp()
	s := domain.ChatSession{
		ID:           uuid.NewString(),
		Visitor:      strings.TrimSpace(visitor),
		Messages:     msgs,
		MessageCount: len(msgs),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertChatSessionTx(ctx, tx, s); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.ChatSessionCreated, "chat_session", s.ID, chatActor(s), events.EventPayload{
			"messages": len(msgs),
		})
	})
	if err != nil {
		return domain.ChatSession{}, err
	}
	return s, nil
}

// UpdateChatSession replaces the session's messages with the full ordered list.
func (e Engine) UpdateChatSession(ctx context.Context, id string, messages []domain.ChatMessage) (domain.ChatSession, error) {
	msgs, err := e.normalizeMessages(messages)
	if err != nil {
		return domain.ChatSession{}, err
	}
	now := e.timestamp()
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.ReplaceChatMessagesTx(ctx, tx, id, msgs, now); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.ChatSessionUpdated, "chat_session", id, "chat:"+id, events.EventPayload{
			"messages": len(msgs),
		})
	})
	if err != nil {
		return domain.ChatSession{}, err
	}
	return e.Repo.GetChatSession(ctx, id)
}

func (e Engine) GetChatSession(ctx context.Context, id string) (domain.ChatSession, error) {
	return e.Repo.GetChatSession(ctx, id)
}

func (e Engine) ListChatSessions(ctx context.Context, limit int, cursorUpdatedAt, cursorID string) ([]domain.ChatSession, error) {
	return e.Repo.ListChatSessionsWithCursor(ctx, limit, cursorUpdatedAt, cursorID)
}

func chatActor(s domain.ChatSession) string {
	if s.Visitor != "" {
		return "visitor:" + s.Visitor
	}
	return "chat:" + s.ID
}

func (e Engine) ListClaims(ctx context.Context, f repo.ClaimFilters) ([]domain.Claim, error) {
	return e.Repo.ListClaimsWithCursor(ctx, f)
}

func (e Engine) GetClaim(ctx context.Context, id string) (domain.Claim, error) {
	return e.Repo.GetClaim(ctx, id)
}

func (e Engine) ClaimStats(ctx context.Context) (map[string]int, error) {
	return e.Repo.CountClaimsByStatus(ctx)
}

func (e Engine) ListEvents(ctx context.Context, limit int, cursor int64, f repo.EventFilters) ([]domain.Event, error) {
	return e.Repo.LatestEventsFrom(ctx, limit, cursor, f)
}
