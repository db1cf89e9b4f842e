package conversations

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/feedforward/pkg/models"
)

// PostgresSource reads the conversations and themes tables owned by the
// ingestion pipeline. It never writes.
type PostgresSource struct {
	db *sql.DB
}

func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) RecentIDs(ctx context.Context, ids []string, since time.Time) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id FROM conversations
        WHERE id = ANY($1) AND created_at >= $2
    `, pq.Array(ids), since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query recent conversations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

func (s *PostgresSource) Contexts(ctx context.Context, ids []string) ([]models.ConversationContext, error) {
	if len(ids) == 0 {
		return []models.ConversationContext{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT DISTINCT ON (conversation_id)
               conversation_id, coalesce(user_intent,''), symptoms, coalesce(affected_flow,''),
               coalesce(excerpt,''), coalesce(product_area,''), coalesce(component,'')
        FROM themes
        WHERE conversation_id = ANY($1)
        ORDER BY conversation_id, created_at DESC
    `, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query theme contexts: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]models.ConversationContext, len(ids))
	for rows.Next() {
		var c models.ConversationContext
		var symptoms []string
		if err := rows.Scan(&c.ConversationID, &c.UserIntent, pq.Array(&symptoms), &c.AffectedFlow,
			&c.Excerpt, &c.ProductArea, &c.Component); err != nil {
			return nil, err
		}
		c.Symptoms = symptoms
		byID[c.ConversationID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]models.ConversationContext, 0, len(ids))
	for _, id := range ids {
		c, ok := byID[id]
		if !ok {
			c = models.ConversationContext{ConversationID: id}
		}
		out = append(out, c)
	}
	return out, nil
}
