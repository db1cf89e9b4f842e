package stories

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedforward/internal/database"
)

func TestPostgresCreateStoryWithProposedIDIsIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres test in short mode")
	}
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, database.EnsureSchema(ctx, pool))

	svc := NewPostgresService(pool)
	d := Draft{Title: "Export hangs", Signature: "test_" + uuid.NewString(), ProposedID: uuid.NewString()}

	first, err := svc.CreateStory(ctx, d)
	require.NoError(t, err)
	second, err := svc.CreateStory(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, d.ProposedID, first)
	assert.Equal(t, first, second)

	var n int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM stories WHERE signature = $1`, d.Signature).Scan(&n))
	assert.Equal(t, 1, n)
}
