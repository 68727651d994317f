package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Conversation is one answered query.
type Conversation struct {
	ID        string
	UserID    string
	Query     string
	Intent    json.RawMessage
	Response  string
	CreatedAt time.Time
}

// SaveConversation stores a conversation and returns its id.
func (s *Store) SaveConversation(ctx context.Context, c Conversation) (string, error) {
	if c.UserID == "" {
		return "", fmt.Errorf("user_id is required")
	}
	intent := []byte(c.Intent)
	if len(intent) == 0 {
		intent = []byte("{}")
	}
	var id string
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO conversations (user_id, query, intent, response, created_at)
VALUES ($1,$2,$3,$4,NOW())
RETURNING id::text
`, c.UserID, c.Query, intent, c.Response).Scan(&id)
	return id, err
}

// ListConversations returns a user's most recent conversations, newest first.
func (s *Store) ListConversations(ctx context.Context, userID string, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id::text, user_id, query, intent, response, created_at
FROM conversations
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Conversation
	for rows.Next() {
		var (
			c      Conversation
			intent []byte
		)
		if err := rows.Scan(&c.ID, &c.UserID, &c.Query, &intent, &c.Response, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Intent = json.RawMessage(intent)
		out = append(out, c)
	}
	return out, rows.Err()
}
