package storage

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *AggregateStore {
	t.Helper()
	s, err := OpenAggregateStore(context.Background(), filepath.Join(t.TempDir(), "out", "route_delays.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAggregateStoreSaveRun(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	started := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	run := RunRecord{
		Started:  started,
		Finished: started.Add(90 * time.Second),
		Months:   []string{"2025-10", "2025-11", "2025-12"},
		Loaded:   100, Cleaned: 80, Filtered: 60, Routes: 5, Sampled: 50, Groups: 2,
	}
	rows := []AggregateRecord{
		{RouteID: "ICE_ICE 1→Berlin Hbf", Date: "2025-10-04", MeanDelay: 3, SDDelay: math.NaN(), NTrains: 1, Weekday: 5, IsWeekend: true, City: "Berlin"},
		{RouteID: "IC_IC 2→Köln Hbf", Date: "2025-10-01", MeanDelay: 2.5, SDDelay: 0.7071, NTrains: 2, Weekday: 2},
	}

	id, err := s.SaveRun(ctx, run, rows)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	got, err := s.Run(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, run.Months, got.Months)
	assert.Equal(t, 50, got.Sampled)
	assert.True(t, started.Equal(got.Started))

	aggs, err := s.Aggregates(ctx, id)
	require.NoError(t, err)
	require.Len(t, aggs, 2)

	// 按 route_id 排序, "E" 小于 "_"
	assert.Equal(t, "ICE_ICE 1→Berlin Hbf", aggs[0].RouteID)
	assert.True(t, math.IsNaN(aggs[0].SDDelay))
	assert.True(t, aggs[0].IsWeekend)
	assert.Equal(t, "Berlin", aggs[0].City)

	assert.Equal(t, "IC_IC 2→Köln Hbf", aggs[1].RouteID)
	assert.Empty(t, aggs[1].City)
	assert.InDelta(t, 0.7071, aggs[1].SDDelay, 1e-9)
	assert.False(t, aggs[1].IsWeekend)

	latest, err := s.LatestRunID(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, latest)
}

func TestAggregateStoreDuplicateRun(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	run := RunRecord{RunID: "fixed", Started: time.Now(), Finished: time.Now()}
	_, err := s.SaveRun(ctx, run, nil)
	require.NoError(t, err)

	_, err = s.SaveRun(ctx, run, nil)
	assert.Error(t, err)
}
