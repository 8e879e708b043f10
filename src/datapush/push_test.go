package datapush

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"RailDelayInsight/src/config"
	"RailDelayInsight/src/datasource/stations"
	"RailDelayInsight/src/processor"
	"RailDelayInsight/src/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleResult() *processor.Result {
	started := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	return &processor.Result{
		Aggregates: processor.RowsToFrame([]processor.AggregateRow{
			{RouteID: processor.RouteKey("IC", "IC 2", "Köln Hbf"), Date: "2025-10-01", MeanDelay: 2.5, SDDelay: 0.5, NTrains: 2, Weekday: 2},
			{RouteID: processor.RouteKey("ICE", "ICE 1", "Berlin Hbf"), Date: "2025-10-04", MeanDelay: 3, SDDelay: math.NaN(), NTrains: 1, Weekday: 5, IsWeekend: true},
		}, ""),
		Summary: processor.Summary{
			Loaded: 10, Filtered: 6, Routes: 2, Sampled: 3, Groups: 2,
			Clean:   processor.CleanStats{Input: 10, Output: 8},
			Started: started, Finished: started.Add(time.Minute),
		},
	}
}

func TestPublishAllOutputs(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := storage.OpenAggregateStore(ctx, filepath.Join(dir, "route_delays.db"))
	require.NoError(t, err)
	defer store.Close()

	p := &Publisher{
		Output:  config.OutputConfig{Dir: filepath.Join(dir, "output"), CSV: true, XLSX: true},
		Months:  []string{"2025-10", "2025-11", "2025-12"},
		Catalog: stations.NewCatalog([]stations.Station{{Name: "Berlin Hbf", City: "Berlin"}}),
		Store:   store,
	}

	report, err := p.Publish(ctx, sampleResult())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Rows)
	assert.NotEmpty(t, report.RunID)

	raw, err := os.ReadFile(report.CSVPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "route_id,date,mean_delay,sd_delay,n_trains,weekday,is_weekend,city", lines[0])

	xl, err := excelize.OpenFile(report.XLSXPath)
	require.NoError(t, err)
	defer xl.Close()
	sheetRows, err := xl.GetRows(ExportSheet)
	require.NoError(t, err)
	require.Len(t, sheetRows, 3)
	assert.Equal(t, processor.DefaultRouteColumn, sheetRows[0][0])
	// sd_delay 为 NaN 的单元格为空
	assert.Equal(t, "", sheetRows[2][3])

	run, err := store.Run(ctx, report.RunID)
	require.NoError(t, err)
	assert.Equal(t, 8, run.Cleaned)
	assert.Equal(t, p.Months, run.Months)

	aggs, err := store.Aggregates(ctx, report.RunID)
	require.NoError(t, err)
	require.Len(t, aggs, 2)
	assert.Equal(t, "Berlin", aggs[0].City)
	assert.True(t, math.IsNaN(aggs[0].SDDelay))
	assert.Empty(t, aggs[1].City)
}

func TestPublishNothingEnabled(t *testing.T) {
	p := &Publisher{Output: config.OutputConfig{Dir: t.TempDir()}}
	report, err := p.Publish(context.Background(), sampleResult())
	require.NoError(t, err)
	assert.Empty(t, report.CSVPath)
	assert.Empty(t, report.XLSXPath)
	assert.Empty(t, report.RunID)

	_, err = p.Publish(context.Background(), nil)
	assert.Error(t, err)
}

func TestToRecordsWithoutCity(t *testing.T) {
	records, err := ToRecords(sampleResult().Aggregates, "")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 2, records[0].NTrains)
	assert.Empty(t, records[0].City)
	assert.True(t, records[1].IsWeekend)
}
