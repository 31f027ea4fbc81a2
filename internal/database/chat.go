package database

import (
	"context"
	"fmt"
)

// AppendChatMessage inserts one transcript turn. Per §5's open-question
// decision, chat history never leaks across session_id values — callers
// always scope reads/writes to a single session.
func AppendChatMessage(ctx context.Context, m *ChatMessage) (*ChatMessage, error) {
	pool := Pool()

	var out ChatMessage
	err := pool.QueryRow(ctx, `
		INSERT INTO chat_messages (session_id, user_id, role, content, tool_calls, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, session_id, user_id, role, content, tool_calls, created_at
	`, m.SessionID, m.UserID, m.Role, m.Content, m.ToolCalls).Scan(
		&out.ID, &out.SessionID, &out.UserID, &out.Role, &out.Content, &out.ToolCalls, &out.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("append chat message for session %s: %w", m.SessionID, err)
	}
	return &out, nil
}

// ChatHistory returns a session's transcript in chronological order, the
// context window handed to the chat orchestrator's provider call.
func ChatHistory(ctx context.Context, sessionID string, limit int) ([]ChatMessage, error) {
	pool := Pool()

	rows, err := pool.Query(ctx, `
		SELECT id, session_id, user_id, role, content, tool_calls, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query chat history for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	out := make([]ChatMessage, 0)
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(
			&m.ID, &m.SessionID, &m.UserID, &m.Role, &m.Content, &m.ToolCalls, &m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		out = append(out, m)
	}
	// reverse to chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}
