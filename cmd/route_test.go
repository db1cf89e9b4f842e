package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedforward/internal/config"
	"github.com/feedforward/internal/conversations"
	"github.com/feedforward/internal/graduation"
	"github.com/feedforward/internal/matcher"
	"github.com/feedforward/internal/orphans"
	"github.com/feedforward/internal/stories"
	"github.com/feedforward/pkg/models"
)

type stubRouter struct {
	mu   sync.Mutex
	fail map[string]bool
}

func (r *stubRouter) Route(_ context.Context, th models.Theme) (*matcher.RouteResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[th.ConversationID] {
		return nil, errors.New("store unavailable")
	}
	return &matcher.RouteResult{Result: matcher.ResultAccumulated, ConversationID: th.ConversationID}, nil
}

func TestReadThemes(t *testing.T) {
	body := `[{"conversation_id":"c1","issue_signature":"billing_refund_missing","user_intent":"refund"}]`
	path := filepath.Join(t.TempDir(), "themes.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	themes, err := readThemes(path, nil)
	require.NoError(t, err)
	require.Len(t, themes, 1)
	assert.Equal(t, "billing_refund_missing", themes[0].Signature)

	themes, err = readThemes("-", strings.NewReader(body))
	require.NoError(t, err)
	assert.Len(t, themes, 1)

	_, err = readThemes("-", strings.NewReader("{"))
	assert.ErrorContains(t, err, "decode themes")
}

func TestRouteAllCountsFailures(t *testing.T) {
	router := &stubRouter{fail: map[string]bool{"c2": true}}
	themes := []models.Theme{{ConversationID: "c1"}, {ConversationID: "c2"}, {ConversationID: "c3"}}

	summary, err := routeAll(context.Background(), router, themes, 2)
	assert.ErrorContains(t, err, "1 of 3")
	require.NotNil(t, summary)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 2, summary.Results[string(matcher.ResultAccumulated)])
}

func TestRouteAllGraduatesThroughMatcher(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := orphans.NewInMemoryStore()
	svc := stories.NewInMemoryService()
	source := conversations.NewInMemorySource()
	engine := graduation.NewEngine(store, svc, source, nil, graduation.DefaultConfig())
	m := matcher.New(store, engine)

	var themes []models.Theme
	for _, id := range []string{"c1", "c2", "c3", "c4", "c5"} {
		th := models.Theme{
			ConversationID:        id,
			ProductArea:           "billing",
			Component:             "refunds",
			UserIntent:            "refund never arrived",
			Symptoms:              []string{"refund missing"},
			ConversationCreatedAt: &now,
		}
		source.AddTheme(th, now)
		themes = append(themes, th)
	}

	summary, err := routeAll(ctx, m, themes, 4)
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Total)
	require.Len(t, svc.Stories(), 1)
	assert.Len(t, svc.Evidence(svc.Stories()[0].ID), 5)
}

func TestQueueConfigFromConfig(t *testing.T) {
	var cfg config.Config
	cfg.Worker.MaxWorkers = 4
	cfg.Worker.RouteTimeout = time.Minute
	cfg.Graduation.SweepInterval = 5 * time.Minute

	qc := queueConfig(&cfg)
	assert.Equal(t, 4, qc.MaxWorkers)
	assert.Equal(t, time.Minute, qc.RouteTimeout)
	assert.Equal(t, 5*time.Minute, qc.SweepInterval)
	assert.Equal(t, 25, qc.MaxAttempts)
}
