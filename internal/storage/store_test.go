package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/raine/review-moderator/internal/moderation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "moderation.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestDecisions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, approved := range []bool{true, false, true} {
		err := store.RecordDecision(ctx, &moderation.Decision{
			ID:             []string{"a", "b", "c"}[i],
			ProductDetails: "Ceramic mug",
			ImageCount:     i + 1,
			Approved:       approved,
			Reason:         "reason",
			Model:          "gemini/gemini-2.5-flash",
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	decisions, err := store.ListDecisions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, decisions, 3)
	assert.Equal(t, "c", decisions[0].ID)
	assert.Equal(t, "a", decisions[2].ID)
	assert.False(t, decisions[1].Approved)
	assert.Equal(t, 2, decisions[1].ImageCount)
	assert.WithinDuration(t, base.Add(2*time.Minute), decisions[0].CreatedAt, time.Second)

	limited, err := store.ListDecisions(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestDecisions_DuplicateID(t *testing.T) {
	store := newTestStore(t)
	d := &moderation.Decision{ID: "dup", ProductDetails: "x", Reason: "r", Model: "m", CreatedAt: time.Now()}
	require.NoError(t, store.RecordDecision(context.Background(), d))
	assert.Error(t, store.RecordDecision(context.Background(), d))
}

func TestListDecisions_Empty(t *testing.T) {
	decisions, err := newTestStore(t).ListDecisions(context.Background(), 10)
	require.NoError(t, err)
	assert.NotNil(t, decisions)
	assert.Empty(t, decisions)
}

func TestVerdictCache(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	v, err := store.GetVerdict(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, store.SetVerdict(ctx, "k", &moderation.ModerationVerdict{Approved: false, Reason: "blurred"}))
	v, err = store.GetVerdict(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, &moderation.ModerationVerdict{Approved: false, Reason: "blurred"}, v)

	// Overwrites existing entries.
	require.NoError(t, store.SetVerdict(ctx, "k", &moderation.ModerationVerdict{Approved: true, Reason: ""}))
	v, err = store.GetVerdict(ctx, "k")
	require.NoError(t, err)
	assert.True(t, v.Approved)
}

func TestVerdictCache_TTL(t *testing.T) {
	store := newTestStore(t).WithVerdictTTL(time.Hour)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	require.NoError(t, store.SetVerdict(ctx, "k", &moderation.ModerationVerdict{Approved: true}))

	now = now.Add(30 * time.Minute)
	v, err := store.GetVerdict(ctx, "k")
	require.NoError(t, err)
	assert.NotNil(t, v)

	now = now.Add(time.Hour)
	v, err = store.GetVerdict(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, v)

	removed, err := store.PruneVerdicts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestRunPruner(t *testing.T) {
	store := newTestStore(t).WithVerdictTTL(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	old := time.Now().Add(-time.Hour)
	store.now = func() time.Time { return old }
	require.NoError(t, store.SetVerdict(ctx, "stale", &moderation.ModerationVerdict{Approved: true}))
	store.now = time.Now

	done := make(chan struct{})
	go func() {
		store.RunPruner(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		var n int
		err := store.db.QueryRow("SELECT COUNT(*) FROM verdict_cache").Scan(&n)
		return err == nil && n == 0
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestRunPruner_NoTTL(t *testing.T) {
	// Returns immediately without a TTL.
	newTestStore(t).RunPruner(context.Background(), time.Millisecond)
}
