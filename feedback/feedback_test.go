package feedback

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/consult-sh/consult/types"
)

func newTestGormStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	store, err := NewGormStore(db, zap.NewNop())
	require.NoError(t, err)
	return store
}

// Both implementations must satisfy the same observable contract, so the
// suite runs once per constructor.
func eachStore(t *testing.T, run func(t *testing.T, store Store)) {
	t.Run("gorm", func(t *testing.T) { run(t, newTestGormStore(t)) })
	t.Run("memory", func(t *testing.T) { run(t, NewMemoryStore()) })
}

func TestLogQuery(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		id, err := store.LogQuery(ctx, "how do I shard postgres?", []string{"app-architecture-expert", "kg-traversal-expert"})
		require.NoError(t, err)
		assert.Len(t, id, QueryIDLen)

		entries, err := store.Recent(ctx, 10)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, id, entries[0].QueryID)
		assert.Equal(t, "how do I shard postgres?", entries[0].Question)
		assert.Equal(t, ExpertList{"app-architecture-expert", "kg-traversal-expert"}, entries[0].ExpertsUsed)
		assert.Nil(t, entries[0].SynthesisHelpful)
	})
}

func TestUpdatesRequireKnownQueryID(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		for name, err := range map[string]error{
			"rate synthesis": store.RateSynthesis(ctx, "nope00000000", true),
			"rate expert":    store.RateExpert(ctx, "nope00000000", "x", true),
			"log action":     store.LogAction(ctx, "nope00000000", "implemented"),
			"add notes":      store.AddNotes(ctx, "nope00000000", "n/a"),
		} {
			require.Error(t, err, name)
			assert.Equal(t, types.ErrValidation, types.GetErrorCode(err), name)
		}
	})
}

func TestPointUpdates(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		id, err := store.LogQuery(ctx, "question", []string{"a-1", "b-2"})
		require.NoError(t, err)

		require.NoError(t, store.RateSynthesis(ctx, id, true))
		require.NoError(t, store.RateExpert(ctx, id, "a-1", true))
		require.NoError(t, store.RateExpert(ctx, id, "b-2", false))
		require.NoError(t, store.LogAction(ctx, id, "implemented the first action"))
		require.NoError(t, store.AddNotes(ctx, id, "good panel"))

		entries, err := store.Recent(ctx, 1)
		require.NoError(t, err)
		require.Len(t, entries, 1)

		e := entries[0]
		require.NotNil(t, e.SynthesisHelpful)
		assert.True(t, *e.SynthesisHelpful)
		assert.Equal(t, "a-1", e.BestExpert)
		assert.Equal(t, "b-2", e.WorstExpert)
		assert.Equal(t, "implemented the first action", e.ActionTaken)
		assert.Equal(t, "good panel", e.UserNotes)
	})
}

func TestStatsAccumulate(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			id, err := store.LogQuery(ctx, fmt.Sprintf("question %d", i), []string{"a-1", "b-2"})
			require.NoError(t, err)
			require.NoError(t, store.RateExpert(ctx, id, "a-1", true))
			if i == 0 {
				require.NoError(t, store.RateExpert(ctx, id, "b-2", false))
			}
		}

		stats, err := store.Stats(ctx)
		require.NoError(t, err)

		assert.Equal(t, ExpertStat{ExpertID: "a-1", Positive: 3, Total: 3}, stats["a-1"])
		assert.Equal(t, ExpertStat{ExpertID: "b-2", Negative: 1, Total: 1}, stats["b-2"])
	})
}

func TestRecentLimitAndOrder(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		var ids []string
		for i := 0; i < 5; i++ {
			id, err := store.LogQuery(ctx, fmt.Sprintf("question %d", i), []string{"a-1"})
			require.NoError(t, err)
			ids = append(ids, id)
		}

		entries, err := store.Recent(ctx, 3)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		// Chronological order, newest last.
		assert.Equal(t, ids[2], entries[0].QueryID)
		assert.Equal(t, ids[4], entries[2].QueryID)

		none, err := store.Recent(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func TestAnalyzePatterns(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		report, err := store.AnalyzePatterns(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, report.TotalConsultations)
		assert.Nil(t, report.SynthesisHelpfulRate)

		var ids []string
		for i := 0; i < 4; i++ {
			id, err := store.LogQuery(ctx, fmt.Sprintf("question %d", i),
				[]string{"tax-optimization-expert", "wealth-pattern-analyzer"})
			require.NoError(t, err)
			ids = append(ids, id)
		}
		require.NoError(t, store.RateSynthesis(ctx, ids[0], true))
		require.NoError(t, store.RateSynthesis(ctx, ids[1], false))
		require.NoError(t, store.RateExpert(ctx, ids[0], "tax-optimization-expert", true))
		require.NoError(t, store.RateExpert(ctx, ids[1], "tax-optimization-expert", true))
		require.NoError(t, store.RateExpert(ctx, ids[2], "wealth-pattern-analyzer", false))

		report, err = store.AnalyzePatterns(ctx)
		require.NoError(t, err)

		assert.Equal(t, 4, report.TotalConsultations)
		require.NotNil(t, report.SynthesisHelpfulRate)
		assert.InDelta(t, 0.5, *report.SynthesisHelpfulRate, 1e-9)
		assert.Equal(t, map[string]int{"tax-optimization-expert": 2}, report.TopPerformingExperts)
		assert.Equal(t, map[string]int{"wealth-pattern-analyzer": 1}, report.UnderperformingExperts)
		assert.Equal(t, map[string]int{"tax": 4, "wealth": 4}, report.CommonDomains)
	})
}

func TestNewQueryID(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)

	id := NewQueryID("question", at)
	assert.Len(t, id, QueryIDLen)
	assert.Regexp(t, "^[0-9a-f]{12}$", id)

	// Stable for identical inputs, distinct across time.
	assert.Equal(t, id, NewQueryID("question", at))
	assert.NotEqual(t, id, NewQueryID("question", at.Add(time.Nanosecond)))
}
