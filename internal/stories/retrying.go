package stories

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/feedforward/internal/retry"
)

// RetryingService retries transient failures of the wrapped service with
// exponential backoff. Validation and not-found errors are returned as-is.
// Story creation pins a ProposedID before the first attempt so an attempt
// that committed but lost its reply is not created again.
type RetryingService struct {
	next Service
	cfg  retry.Config
}

func NewRetryingService(next Service, cfg retry.Config) *RetryingService {
	return &RetryingService{next: next, cfg: cfg}
}

func (s *RetryingService) CreateStory(ctx context.Context, d Draft) (string, error) {
	if d.ProposedID == "" {
		d.ProposedID = uuid.NewString()
	}
	var id string
	res := retry.Do(ctx, s.cfg, "create_story", func(ctx context.Context) error {
		var err error
		id, err = s.next.CreateStory(ctx, d)
		return classify(err)
	})
	if !res.Success {
		return "", res.LastError
	}
	return id, nil
}

func (s *RetryingService) AppendEvidence(ctx context.Context, e Evidence) error {
	res := retry.Do(ctx, s.cfg, "append_evidence", func(ctx context.Context) error {
		return classify(s.next.AppendEvidence(ctx, e))
	})
	if !res.Success {
		return res.LastError
	}
	return nil
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrInvalidDraft) || errors.Is(err, ErrNotFound) || !retry.IsRetryable(err) {
		return retry.Permanent(err)
	}
	return err
}
