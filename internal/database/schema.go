package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/zerolog/log"
)

// schema holds the tables this service owns. conversations and themes belong
// to the upstream conversation store and are only read.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS conversation_orphans (
        id                 TEXT PRIMARY KEY,
        signature          TEXT NOT NULL UNIQUE,
        original_signature TEXT,
        conversation_ids   TEXT[] NOT NULL DEFAULT '{}',
        placed_ids         TEXT[] NOT NULL DEFAULT '{}',
        theme_data         JSONB NOT NULL DEFAULT '{}',
        confidence_score   DOUBLE PRECISION,
        reviewed_count     INTEGER NOT NULL DEFAULT 0,
        last_decision      TEXT,
        first_seen_at      TIMESTAMPTZ NOT NULL,
        last_updated_at    TIMESTAMPTZ NOT NULL,
        graduated_at       TIMESTAMPTZ,
        story_id           TEXT
    )`,
	`ALTER TABLE conversation_orphans ADD COLUMN IF NOT EXISTS placed_ids TEXT[] NOT NULL DEFAULT '{}'`,
	`CREATE INDEX IF NOT EXISTS conversation_orphans_active_idx
        ON conversation_orphans (first_seen_at, signature) WHERE graduated_at IS NULL`,
	`CREATE TABLE IF NOT EXISTS stories (
        id               TEXT PRIMARY KEY,
        title            TEXT NOT NULL,
        description      TEXT NOT NULL DEFAULT '',
        product_area     TEXT,
        technical_area   TEXT,
        status           TEXT NOT NULL,
        confidence_score DOUBLE PRECISION,
        signature        TEXT,
        created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
    )`,
	`CREATE TABLE IF NOT EXISTS story_evidence (
        story_id        TEXT NOT NULL REFERENCES stories(id) ON DELETE CASCADE,
        conversation_id TEXT NOT NULL,
        source          TEXT NOT NULL,
        excerpt         TEXT,
        added_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
        PRIMARY KEY (story_id, conversation_id)
    )`,
}

// EnsureSchema creates the owned tables and brings River's tables up to date.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return fmt.Errorf("migrate river schema: %w", err)
	}
	for _, v := range res.Versions {
		log.Info().Int("version", v.Version).Msg("applied river migration")
	}
	return nil
}
