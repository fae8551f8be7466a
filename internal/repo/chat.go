package repo

import (
	"context"
	"database/sql"
	"strings"

	"flightclaim/internal/domain"
)

func (r Repo) InsertChatSessionTx(ctx context.Context, tx *sql.Tx, s domain.ChatSession) error {
	if _, err := tx.ExecContext(ctx, `INSERT INTO chat_sessions(id,visitor,created_at,updated_at) VALUES (?,?,?,?)`,
		s.ID, nullable(s.Visitor), s.CreatedAt, s.UpdatedAt); err != nil {
		return err
	}
	return insertMessages(ctx, tx, s.ID, s.Messages)
}

// ReplaceChatMessagesTx overwrites the session's message list.
func (r Repo) ReplaceChatMessagesTx(ctx context.Context, tx *sql.Tx, id string, messages []domain.ChatMessage, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE chat_sessions SET updated_at=? WHERE id=?`, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_messages WHERE session_id=?`, id); err != nil {
		return err
	}
	return insertMessages(ctx, tx, id, messages)
}

func insertMessages(ctx context.Context, tx *sql.Tx, id string, messages []domain.ChatMessage) error {
	for i, m := range messages {
		if _, err := tx.ExecContext(ctx, `INSERT INTO chat_messages(session_id,seq,role,content,ts) VALUES (?,?,?,?,?)`,
			id, i, m.Role, m.Content, m.TS); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) GetChatSession(ctx context.Context, id string) (domain.ChatSession, error) {
	var s domain.ChatSession
	var visitor sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,visitor,created_at,updated_at FROM chat_sessions WHERE id=?`, id).
		Scan(&s.ID, &visitor, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	s.Visitor = visitor.String
	rows, err := r.DB.QueryContext(ctx, `SELECT role,content,ts FROM chat_messages WHERE session_id=? ORDER BY seq ASC`, id)
	if err != nil {
		return s, err
	}
	defer rows.Close()
	s.Messages = []domain.ChatMessage{}
	for rows.Next() {
		var m domain.ChatMessage
		if err := rows.Scan(&m.Role, &m.Content, &m.TS); err != nil {
			return s, err
		}
		s.Messages = append(s.Messages, m)
	}
	return s, rows.Err()
}

// ListChatSessionsWithCursor returns sessions without messages, newest first.
func (r Repo) ListChatSessionsWithCursor(ctx context.Context, limit int, cursorUpdatedAt, cursorID string) ([]domain.ChatSession, error) {
	clauses := []string{"1=1"}
	var args []any
	if cursorUpdatedAt != "" && cursorID != "" {
		clauses = append(clauses, "(updated_at < ? OR (updated_at = ? AND id < ?))")
		args = append(args, cursorUpdatedAt, cursorUpdatedAt, cursorID)
	}
	query := `SELECT s.id,s.visitor,s.created_at,s.updated_at,(SELECT COUNT(*) FROM chat_messages m WHERE m.session_id=s.id)
FROM chat_sessions s WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY updated_at DESC, id DESC`
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ChatSession
	for rows.Next() {
		var s domain.ChatSession
		var visitor sql.NullString
		if err := rows.Scan(&s.ID, &visitor, &s.CreatedAt, &s.UpdatedAt, &s.MessageCount); err != nil {
			return nil, err
		}
		s.Visitor = visitor.String
		res = append(res, s)
	}
	return res, rows.Err()
}
