package stories

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedforward/internal/retry"
)

func TestInMemoryCreateDefaultsToCandidate(t *testing.T) {
	svc := NewInMemoryService()
	id, err := svc.CreateStory(context.Background(), Draft{Title: "Export times out"})
	require.NoError(t, err)

	st, err := svc.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCandidate, st.Status)
	assert.Equal(t, "Export times out", st.Title)

	_, err = svc.CreateStory(context.Background(), Draft{Title: "  "})
	assert.ErrorIs(t, err, ErrInvalidDraft)
}

func TestInMemoryAppendEvidenceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService()
	id, err := svc.CreateStory(ctx, Draft{Title: "t"})
	require.NoError(t, err)

	ev := Evidence{StoryID: id, ConversationID: "c1", Source: SourceOrphanGraduation}
	require.NoError(t, svc.AppendEvidence(ctx, ev))
	ev.Source = SourcePostGraduationRoute
	require.NoError(t, svc.AppendEvidence(ctx, ev))

	got := svc.Evidence(id)
	require.Len(t, got, 1)
	assert.Equal(t, SourceOrphanGraduation, got[0].Source)
	assert.False(t, got[0].AddedAt.IsZero())

	assert.ErrorIs(t, svc.AppendEvidence(ctx, Evidence{StoryID: "nope", ConversationID: "c1"}), ErrNotFound)
	assert.ErrorIs(t, svc.AppendEvidence(ctx, Evidence{StoryID: id}), ErrInvalidDraft)
}

type flakyService struct {
	failures int32
	err      error
	calls    int32
	inner    Service
}

func (f *flakyService) CreateStory(ctx context.Context, d Draft) (string, error) {
	if atomic.AddInt32(&f.calls, 1) <= f.failures {
		return "", f.err
	}
	return f.inner.CreateStory(ctx, d)
}

func (f *flakyService) AppendEvidence(ctx context.Context, e Evidence) error {
	if atomic.AddInt32(&f.calls, 1) <= f.failures {
		return f.err
	}
	return f.inner.AppendEvidence(ctx, e)
}

func quickRetry() retry.Config {
	return retry.Config{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func TestRetryingServiceRetriesTransient(t *testing.T) {
	flaky := &flakyService{failures: 2, err: errors.New("503 service unavailable"), inner: NewInMemoryService()}
	svc := NewRetryingService(flaky, quickRetry())

	id, err := svc.CreateStory(context.Background(), Draft{Title: "t"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, int32(3), atomic.LoadInt32(&flaky.calls))
}

// lostReplyService commits the first create and then reports a dropped
// connection, as a server that answered too late would.
type lostReplyService struct {
	*InMemoryService
	calls int32
}

func (s *lostReplyService) CreateStory(ctx context.Context, d Draft) (string, error) {
	id, err := s.InMemoryService.CreateStory(ctx, d)
	if err != nil {
		return "", err
	}
	if atomic.AddInt32(&s.calls, 1) == 1 {
		return "", errors.New("read tcp: connection reset by peer")
	}
	return id, nil
}

func TestRetryingServiceCreateAfterLostReplyMakesOneStory(t *testing.T) {
	inner := &lostReplyService{InMemoryService: NewInMemoryService()}
	svc := NewRetryingService(inner, quickRetry())

	id, err := svc.CreateStory(context.Background(), Draft{Title: "Export hangs", Signature: "sig"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&inner.calls))

	all := inner.Stories()
	require.Len(t, all, 1)
	assert.Equal(t, id, all[0].ID)
}

func TestInMemoryCreateStoryHonoursProposedID(t *testing.T) {
	svc := NewInMemoryService()
	d := Draft{Title: "t", ProposedID: "story-1"}

	first, err := svc.CreateStory(context.Background(), d)
	require.NoError(t, err)
	d.Title = "changed"
	second, err := svc.CreateStory(context.Background(), d)
	require.NoError(t, err)

	assert.Equal(t, "story-1", first)
	assert.Equal(t, first, second)
	st, err := svc.Get("story-1")
	require.NoError(t, err)
	assert.Equal(t, "t", st.Title)
	assert.Len(t, svc.Stories(), 1)
}

func TestRetryingServiceDoesNotRetryPermanent(t *testing.T) {
	inner := NewInMemoryService()
	flaky := &flakyService{inner: inner}
	svc := NewRetryingService(flaky, quickRetry())

	err := svc.AppendEvidence(context.Background(), Evidence{StoryID: "missing", ConversationID: "c"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(1), atomic.LoadInt32(&flaky.calls))

	flaky.failures, flaky.calls, flaky.err = 5, 0, errors.New("syntax error at or near")
	_, err = svc.CreateStory(context.Background(), Draft{Title: "t"})
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&flaky.calls))
}
