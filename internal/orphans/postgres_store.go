package orphans

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const orphanColumns = `id, signature, coalesce(original_signature,''), conversation_ids, placed_ids, theme_data,
        confidence_score, reviewed_count, coalesce(last_decision,''), first_seen_at, last_updated_at,
        graduated_at, coalesce(story_id,'')`

type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, now: time.Now}
}

func (s *PostgresStore) GetBySignature(ctx context.Context, sig string) (*Orphan, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orphanColumns+` FROM conversation_orphans WHERE signature=$1`, sig)
	return scanOrphan(row)
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (*Orphan, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orphanColumns+` FROM conversation_orphans WHERE id=$1`, id)
	return scanOrphan(row)
}

// Accumulate is insert-or-fetch followed by a locked read-modify-write, all
// inside one transaction. ON CONFLICT DO NOTHING makes the insert the only
// arbiter when several workers see a new signature at once; the loser
// re-reads the winner's row with FOR UPDATE on the same transaction.
func (s *PostgresStore) Accumulate(ctx context.Context, seed Seed) (*Orphan, Outcome, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("begin accumulate tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := s.now().UTC()
	fresh := newFromSeed(uuid.NewString(), seed, now)
	td, err := json.Marshal(fresh.ThemeData)
	if err != nil {
		return nil, "", fmt.Errorf("marshal theme data: %w", err)
	}

	row := tx.QueryRow(ctx, `
        INSERT INTO conversation_orphans (id, signature, original_signature, conversation_ids, theme_data, confidence_score, first_seen_at, last_updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
        ON CONFLICT (signature) DO NOTHING
        RETURNING `+orphanColumns,
		fresh.ID, fresh.Signature, nullIfEmpty(fresh.OriginalSignature), ensureSliceNotNil(fresh.ConversationIDs), td, fresh.ConfidenceScore, now)
	created, err := scanOrphan(row)
	switch {
	case err == nil:
		if err := tx.Commit(ctx); err != nil {
			return nil, "", fmt.Errorf("commit orphan insert: %w", err)
		}
		return created, OutcomeCreated, nil
	case !errors.Is(err, ErrNotFound):
		return nil, "", fmt.Errorf("insert orphan: %w", err)
	}

	existing, err := scanOrphan(tx.QueryRow(ctx,
		`SELECT `+orphanColumns+` FROM conversation_orphans WHERE signature=$1 FOR UPDATE`, seed.Signature))
	if errors.Is(err, ErrNotFound) {
		log.Error().
			Str("signature", seed.Signature).
			Strs("conversation_ids", seed.ConversationIDs).
			Msg("orphan insert conflicted but no row found on re-read")
		return nil, "", fmt.Errorf("%w: conflict on signature %q but re-read found no row", ErrInvariantViolation, seed.Signature)
	}
	if err != nil {
		return nil, "", fmt.Errorf("re-read orphan: %w", err)
	}
	if !existing.IsActive() {
		return existing, OutcomeGraduated, nil
	}
	if !fold(existing, seed, now) {
		return existing, OutcomeDuplicate, nil
	}

	td, err = json.Marshal(existing.ThemeData)
	if err != nil {
		return nil, "", fmt.Errorf("marshal theme data: %w", err)
	}
	if _, err := tx.Exec(ctx, `
        UPDATE conversation_orphans
        SET conversation_ids=$1, theme_data=$2, confidence_score=$3, last_updated_at=$4
        WHERE id=$5
    `, existing.ConversationIDs, td, existing.ConfidenceScore, existing.LastUpdatedAt, existing.ID); err != nil {
		return nil, "", fmt.Errorf("update orphan: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, "", fmt.Errorf("commit orphan update: %w", err)
	}
	return existing, OutcomeAccumulated, nil
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]*Orphan, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT `+orphanColumns+`
        FROM conversation_orphans
        WHERE graduated_at IS NULL
        ORDER BY first_seen_at, signature
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*Orphan, 0)
	for rows.Next() {
		o, err := scanOrphan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GraduateWith(ctx context.Context, id string, at time.Time, fn GraduateFunc) (*Orphan, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin graduation tx: %w", err)
	}
	defer tx.Rollback(ctx)

	o, err := scanOrphan(tx.QueryRow(ctx, `SELECT `+orphanColumns+` FROM conversation_orphans WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if !o.IsActive() {
		return o, ErrAlreadyGraduated
	}
	storyID, err := fn(o)
	if err != nil {
		return nil, err
	}
	tag, err := tx.Exec(ctx, `
        UPDATE conversation_orphans
        SET graduated_at=$1, story_id=$2, last_updated_at=$1
        WHERE id=$3 AND graduated_at IS NULL
    `, at.UTC(), storyID, id)
	if err != nil {
		return nil, fmt.Errorf("stamp graduation: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return nil, fmt.Errorf("%w: orphan %s graduated while locked", ErrInvariantViolation, id)
	}
	if err := tx.Commit(ctx); err != nil {
		log.Error().Err(err).Str("orphan_id", id).Str("story_id", storyID).
			Msg("story created but graduation commit failed")
		return nil, fmt.Errorf("commit graduation: %w", err)
	}
	ts := at.UTC()
	o.GraduatedAt = &ts
	o.StoryID = storyID
	o.LastUpdatedAt = ts
	return o, nil
}

func (s *PostgresStore) MarkReviewed(ctx context.Context, id string, count int, decision string) error {
	tag, err := s.pool.Exec(ctx, `
        UPDATE conversation_orphans
        SET reviewed_count=GREATEST(reviewed_count, $1), last_decision=$2
        WHERE id=$3
    `, count, decision, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkPlaced appends the member ids of conversationIDs that are not placed
// yet, keeping their order.
func (s *PostgresStore) MarkPlaced(ctx context.Context, id string, conversationIDs []string) error {
	tag, err := s.pool.Exec(ctx, `
        UPDATE conversation_orphans
        SET placed_ids = placed_ids || ARRAY(
                SELECT p.cid
                FROM unnest($1::text[]) WITH ORDINALITY AS p(cid, n)
                WHERE p.cid = ANY(conversation_ids) AND NOT p.cid = ANY(placed_ids)
                ORDER BY p.n
            ),
            last_updated_at = $2
        WHERE id = $3
    `, dedupe(conversationIDs), s.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark placed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func scanOrphan(scanner pgx.Row) (*Orphan, error) {
	var o Orphan
	var td []byte
	if err := scanner.Scan(&o.ID, &o.Signature, &o.OriginalSignature, &o.ConversationIDs, &o.PlacedIDs, &td,
		&o.ConfidenceScore, &o.ReviewedCount, &o.LastDecision, &o.FirstSeenAt, &o.LastUpdatedAt,
		&o.GraduatedAt, &o.StoryID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(td) > 0 {
		if err := json.Unmarshal(td, &o.ThemeData); err != nil {
			return nil, fmt.Errorf("decode theme data for %s: %w", o.Signature, err)
		}
	}
	if o.ConversationIDs == nil {
		o.ConversationIDs = []string{}
	}
	if len(o.PlacedIDs) == 0 {
		o.PlacedIDs = nil
	}
	return &o, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// ensureSliceNotNil keeps NOT NULL array columns from receiving NULL.
func ensureSliceNotNil(slice []string) []string {
	if slice == nil {
		return []string{}
	}
	return slice
}
