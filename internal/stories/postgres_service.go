package stories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresService struct {
	pool *pgxpool.Pool
}

func NewPostgresService(pool *pgxpool.Pool) *PostgresService {
	return &PostgresService{pool: pool}
}

func (s *PostgresService) CreateStory(ctx context.Context, d Draft) (string, error) {
	if err := validateDraft(d); err != nil {
		return "", err
	}
	if d.Status == "" {
		d.Status = StatusCandidate
	}
	id := d.ProposedID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
        INSERT INTO stories (id, title, description, product_area, technical_area, status, confidence_score, signature, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (id) DO NOTHING
    `, id, d.Title, d.Description, d.ProductArea, d.TechnicalArea, d.Status, d.Confidence, d.Signature, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("insert story: %w", err)
	}
	return id, nil
}

func (s *PostgresService) AppendEvidence(ctx context.Context, e Evidence) error {
	if err := validateEvidence(e); err != nil {
		return err
	}
	if e.AddedAt.IsZero() {
		e.AddedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
        INSERT INTO story_evidence (story_id, conversation_id, source, excerpt, added_at)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (story_id, conversation_id) DO NOTHING
    `, e.StoryID, e.ConversationID, e.Source, e.Excerpt, e.AddedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrNotFound
		}
		return fmt.Errorf("insert evidence: %w", err)
	}
	return nil
}
