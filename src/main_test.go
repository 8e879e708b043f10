package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"RailDelayInsight/src/config"
	"RailDelayInsight/src/storage"
	"RailDelayInsight/src/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) (*config.Config, *config.DataConfig, *storage.Logger) {
	t.Helper()
	dir := t.TempDir()

	cfg, dcfg := config.Default()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.TrainTypeThreshold = 1
	cfg.TopNRoutes = 10
	cfg.StationsFile = filepath.Join(dir, "data", "stations_dataset.csv")
	cfg.Output = config.OutputConfig{
		Dir:    filepath.Join(dir, "output"),
		CSV:    true,
		SQLite: filepath.Join(dir, "output", "route_delays.db"),
	}
	require.NoError(t, os.MkdirAll(cfg.DataDir, 0o755))

	for _, m := range cfg.Months {
		_, err := testutil.WriteMonthParquet(cfg.DataDir, m, []testutil.Row{
			testutil.Departure("ICE", "ICE 1", "Berlin Hbf", m+"-01T08:00:00Z", 2),
			testutil.Departure("ICE", "ICE 1", "Berlin Hbf", m+"-01T09:00:00Z", 6),
		})
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(cfg.StationsFile,
		[]byte("type,id,nr,name,city\nstation,8011160,1071,Berlin Hbf,Berlin\n"), 0o644))

	logger, err := storage.NewLogger(filepath.Join(dir, "logs", "app.log"))
	require.NoError(t, err)
	t.Cleanup(func() { logger.Close() })
	return cfg, dcfg, logger
}

func TestRunnerRun(t *testing.T) {
	ctx := context.Background()
	cfg, dcfg, logger := testConfig(t)

	r, err := newRunner(ctx, cfg, dcfg, logger)
	require.NoError(t, err)
	defer r.Close()

	report, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Rows)
	assert.FileExists(t, report.CSVPath)
	assert.Empty(t, report.XLSXPath)

	aggs, err := r.store.Aggregates(ctx, report.RunID)
	require.NoError(t, err)
	require.Len(t, aggs, 3)
	for _, a := range aggs {
		assert.Equal(t, "Berlin", a.City)
		assert.Equal(t, 4.0, a.MeanDelay)
		assert.Equal(t, 2, a.NTrains)
	}
}

func TestRunnerLogsPreviousRun(t *testing.T) {
	ctx := context.Background()
	cfg, dcfg, logger := testConfig(t)

	r, err := newRunner(ctx, cfg, dcfg, logger)
	require.NoError(t, err)
	report, err := r.Run(ctx)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	logs := logger.Subscribe()
	defer logger.Unsubscribe(logs)

	r, err = newRunner(ctx, cfg, dcfg, logger)
	require.NoError(t, err)
	defer r.Close()

	var got []string
	for len(logs) > 0 {
		got = append(got, <-logs)
	}
	assert.Contains(t, strings.Join(got, ""), "上一次运行: "+report.RunID)
}

func TestRunnerSkipsOverlappingRun(t *testing.T) {
	ctx := context.Background()
	cfg, dcfg, logger := testConfig(t)
	cfg.Output.SQLite = ""

	r, err := newRunner(ctx, cfg, dcfg, logger)
	require.NoError(t, err)

	r.mu.Lock()
	_, err = r.Run(ctx)
	r.mu.Unlock()
	assert.ErrorIs(t, err, errRunInProgress)

	_, err = r.Run(ctx)
	assert.NoError(t, err)
}

func TestRunnerMissingCatalogIsNotFatal(t *testing.T) {
	ctx := context.Background()
	cfg, dcfg, logger := testConfig(t)
	cfg.Output.SQLite = ""
	cfg.StationsFile = filepath.Join(t.TempDir(), "missing.csv")

	r, err := newRunner(ctx, cfg, dcfg, logger)
	require.NoError(t, err)

	report, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Rows)
}

func TestRunScheduleNeedsCronOrInterval(t *testing.T) {
	cfg, dcfg, logger := testConfig(t)
	cfg.Output.SQLite = ""
	cfg.Schedule = config.ScheduleConfig{}

	r, err := newRunner(context.Background(), cfg, dcfg, logger)
	require.NoError(t, err)
	assert.Error(t, runSchedule(context.Background(), r, cfg))
}
