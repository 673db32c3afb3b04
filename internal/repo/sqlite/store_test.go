package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/vibeweaver/internal/domain"
	"github.com/shaiso/vibeweaver/internal/repo"
	"github.com/shaiso/vibeweaver/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ scheduler.Store = (*Store)(nil)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RuleRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	session := uuid.New()

	rule := domain.NewRule(session, domain.TaggedArtifactTrigger("drums"), domain.AuditionAction("abc123", 4)).
		WithPriority(domain.PriorityHigh).
		AsOneShot()
	require.NoError(t, s.InsertRule(ctx, &rule))

	got, err := s.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, rule.ID, got.ID)
	assert.Equal(t, session, got.SessionID)
	assert.Equal(t, rule.Trigger, got.Trigger)
	assert.Equal(t, rule.Action.Type, got.Action.Type)
	assert.JSONEq(t, string(rule.Action.Params), string(got.Action.Params))
	assert.Equal(t, domain.PriorityHigh, got.Priority)
	assert.True(t, got.Enabled())
	assert.True(t, got.OneShot)
	assert.Nil(t, got.LastFiredAt)
	assert.True(t, rule.CreatedAt.Equal(got.CreatedAt))
}

func TestStore_InsertDuplicate(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	rule := domain.NewRule(uuid.New(), domain.BeatTrigger(4), domain.PlayAction())
	require.NoError(t, s.InsertRule(ctx, &rule))
	require.ErrorIs(t, s.InsertRule(ctx, &rule), repo.ErrAlreadyExists)
}

func TestStore_ListRulesBySession(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	a, b := uuid.New(), uuid.New()

	first := domain.NewRule(a, domain.BeatTrigger(4), domain.PlayAction())
	second := domain.NewRule(a, domain.MarkerTrigger("drop"), domain.StopAction())
	other := domain.NewRule(b, domain.BeatTrigger(1), domain.PauseAction())
	for _, r := range []*domain.Rule{&first, &other, &second} {
		require.NoError(t, s.InsertRule(ctx, r))
	}

	rules, err := s.ListRules(ctx, a)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, first.ID, rules[0].ID)
	assert.Equal(t, second.ID, rules[1].ID)

	all, err := s.ListAllRules(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := s.ListRules(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_DeleteAndNotFound(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	rule := domain.NewRule(uuid.New(), domain.BeatTrigger(4), domain.PlayAction())
	require.NoError(t, s.InsertRule(ctx, &rule))

	require.NoError(t, s.DeleteRule(ctx, rule.ID))
	require.ErrorIs(t, s.DeleteRule(ctx, rule.ID), repo.ErrNotFound)

	_, err := s.GetRule(ctx, rule.ID)
	require.ErrorIs(t, err, repo.ErrNotFound)
	require.ErrorIs(t, s.UpdateRuleFired(ctx, rule.ID, time.Now()), repo.ErrNotFound)
	require.ErrorIs(t, s.SetRuleEnabled(ctx, rule.ID, false), repo.ErrNotFound)
}

func TestStore_FiredAndEnabled(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	rule := domain.NewRule(uuid.New(), domain.BeatTrigger(4), domain.PlayAction())
	require.NoError(t, s.InsertRule(ctx, &rule))

	at := time.Date(2026, 3, 1, 10, 0, 0, 123, time.UTC)
	require.NoError(t, s.UpdateRuleFired(ctx, rule.ID, at))
	require.NoError(t, s.UpdateRuleFired(ctx, rule.ID, at.Add(time.Second)))
	require.NoError(t, s.SetRuleEnabled(ctx, rule.ID, false))

	got, err := s.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.FiredCount)
	require.NotNil(t, got.LastFiredAt)
	assert.True(t, at.Add(time.Second).Equal(*got.LastFiredAt))
	assert.False(t, got.Enabled())
}

func TestStore_GenerationStats(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.UpdateGenerationStats(ctx, domain.GenerationStats{Space: "musicgen", AvgDurationMs: 1000, SampleCount: 1}))
	require.NoError(t, s.UpdateGenerationStats(ctx, domain.GenerationStats{Space: "beat_this", AvgDurationMs: 300, SampleCount: 7}))
	require.NoError(t, s.UpdateGenerationStats(ctx, domain.GenerationStats{Space: "musicgen", AvgDurationMs: 2000, SampleCount: 2}))

	stats, err := s.ListGenerationStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.GenerationStats{
		{Space: "beat_this", AvgDurationMs: 300, SampleCount: 7},
		{Space: "musicgen", AvgDurationMs: 2000, SampleCount: 2},
	}, stats)
}

func TestStore_ReopenFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rules.db")

	s, err := Open(path)
	require.NoError(t, err)
	rule := domain.NewRule(uuid.New(), domain.TransportTrigger("playing"), domain.NotifyAction("go"))
	require.NoError(t, s.InsertRule(ctx, &rule))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "playing", got.Trigger.State)
}

func TestStore_WithScheduler(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	session := uuid.New()

	sched := scheduler.New(scheduler.Config{SessionID: session, Store: s})
	oneShot, err := sched.AddRule(ctx, domain.NewRule(session, domain.MarkerTrigger("drop"), domain.PlayAction()).AsOneShot())
	require.NoError(t, err)
	repeat, err := sched.AddRule(ctx, domain.NewRule(session, domain.BeatTrigger(4), domain.PauseAction()))
	require.NoError(t, err)

	assert.Len(t, sched.ProcessBroadcast(ctx, domain.MarkerReached("drop", 16)), 1)
	assert.Len(t, sched.ProcessBroadcast(ctx, domain.BeatTick(8, 120)), 1)
	require.NoError(t, sched.RecordGenerationTime(ctx, "beat_this", 1000))
	require.NoError(t, sched.RecordGenerationTime(ctx, "beat_this", 3000))

	_, err = s.GetRule(ctx, oneShot)
	require.ErrorIs(t, err, repo.ErrNotFound)

	stored, err := s.GetRule(ctx, repeat)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stored.FiredCount)

	// Новая сессия-планировщик подхватывает правила и статистику
	reloaded := scheduler.New(scheduler.Config{SessionID: session, Store: s})
	require.NoError(t, reloaded.LoadRules(ctx))
	assert.Equal(t, 1, reloaded.Rules().Len())
	assert.Equal(t, 2000.0, reloaded.EstimateDuration("beat_this"))
}
