package orphans

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedforward/internal/database"
)

func newTestPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
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
	return NewPostgresStore(pool)
}

func TestPostgresStoreAccumulateAndGraduate(t *testing.T) {
	store := newTestPostgresStore(t)
	ctx := context.Background()
	sig := "test_" + uuid.NewString()

	o, outcome, err := store.Accumulate(ctx, seedFor(sig, "c1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)

	_, outcome, err = store.Accumulate(ctx, seedFor(sig, "c1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	o, outcome, err = store.Accumulate(ctx, seedFor(sig, "c2"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccumulated, outcome)
	assert.Equal(t, []string{"c1", "c2"}, o.ConversationIDs)

	require.NoError(t, store.MarkReviewed(ctx, o.ID, 2, DecisionReject))

	g, err := store.GraduateWith(ctx, o.ID, time.Now(), func(*Orphan) (string, error) { return "story-" + sig, nil })
	require.NoError(t, err)
	assert.Equal(t, "story-"+sig, g.StoryID)

	_, err = store.GraduateWith(ctx, o.ID, time.Now(), func(*Orphan) (string, error) { return "again", nil })
	assert.ErrorIs(t, err, ErrAlreadyGraduated)

	got, outcome, err := store.Accumulate(ctx, seedFor(sig, "c3"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeGraduated, outcome)
	assert.Equal(t, 2, got.ReviewedCount)
	assert.Equal(t, DecisionReject, got.LastDecision)
}

func TestPostgresStoreMarkPlaced(t *testing.T) {
	store := newTestPostgresStore(t)
	ctx := context.Background()
	sig := "test_" + uuid.NewString()

	o, _, err := store.Accumulate(ctx, seedFor(sig, "c1", "c2", "c3", "c4"))
	require.NoError(t, err)
	assert.Empty(t, o.PlacedIDs)

	require.NoError(t, store.MarkPlaced(ctx, o.ID, []string{"c3", "c1", "other", "c3"}))
	require.NoError(t, store.MarkPlaced(ctx, o.ID, []string{"c1"}))

	got, err := store.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"c3", "c1"}, got.PlacedIDs)
	assert.Equal(t, []string{"c2", "c4"}, got.PendingIDs())
	assert.Len(t, got.ConversationIDs, 4)

	assert.ErrorIs(t, store.MarkPlaced(ctx, uuid.NewString(), []string{"c1"}), ErrNotFound)
}

func TestPostgresStoreConcurrentCreate(t *testing.T) {
	store := newTestPostgresStore(t)
	ctx := context.Background()
	sig := "test_" + uuid.NewString()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := store.Accumulate(ctx, seedFor(sig, fmt.Sprintf("c%02d", i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	o, err := store.GetBySignature(ctx, sig)
	require.NoError(t, err)
	assert.Len(t, o.ConversationIDs, 20)
}
