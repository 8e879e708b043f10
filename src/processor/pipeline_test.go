package processor_test

import (
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"RailDelayInsight/src/config"
	"RailDelayInsight/src/datasource/file"
	"RailDelayInsight/src/processor"
	"RailDelayInsight/src/storage"
	"RailDelayInsight/src/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var months = []string{"2025-10", "2025-11", "2025-12"}

// writeMonths 每个月写入:
// ICE 1 两班(同一天), IC 2 与 RE 3 各一班, 一班巴士, 一班取消的 ICE,
// 前两个月另有一班 RB 9 (全部只有两条, 低于阈值)
func writeMonths(t *testing.T, dir string) {
	t.Helper()
	for i, m := range months {
		canceled := testutil.Departure("ICE", "ICE 1", "Berlin Hbf", m+"-01T12:00:00Z", 30)
		canceled.IsCanceled = testutil.Bool(true)

		rows := []testutil.Row{
			testutil.Departure("ICE", "ICE 1", "Berlin Hbf", m+"-01T08:00:00Z", 2),
			testutil.Departure("ICE", "ICE 1", "Berlin Hbf", m+"-01T18:00:00Z", 4),
			testutil.Departure("IC", "IC 2", "Köln Hbf", m+"-02T09:00:00Z", 5),
			testutil.Departure("RE", "RE 3", "Bonn Hbf", m+"-03T10:00:00Z", 1),
			testutil.Departure("Bus", "Bus 7", "Bonn Hbf", m+"-03T11:00:00Z", 0),
			canceled,
		}
		if i < 2 {
			rows = append(rows, testutil.Departure("RB", "RB 9", "Bonn Hbf", m+"-04T07:00:00Z", 9))
		}
		_, err := testutil.WriteMonthParquet(dir, m, rows)
		require.NoError(t, err)
	}
}

func testParams() processor.Params {
	p := processor.DefaultParams()
	p.TopNRoutes = 2
	p.Rules.Threshold = 3
	return p
}

func TestPipelineRun(t *testing.T) {
	dir := t.TempDir()
	writeMonths(t, dir)

	logger, err := storage.NewLogger(filepath.Join(dir, "logs", "app.log"))
	require.NoError(t, err)
	defer logger.Close()

	p := &processor.Pipeline{
		Source: &file.MonthlySource{DataDir: dir, Months: months, Ext: ".parquet", Columns: processor.RequiredColumns},
		Params: testParams(),
		Logger: logger,
	}
	res, err := p.Run()
	require.NoError(t, err)

	s := res.Summary
	assert.Equal(t, 20, s.Loaded)
	assert.Equal(t, 17, s.Clean.Output)
	assert.Equal(t, 3, s.Clean.Canceled)
	assert.Equal(t, 12, s.Filtered)
	assert.Equal(t, 3, s.Routes)
	assert.Equal(t, 9, s.Sampled)
	assert.Equal(t, 6, s.Groups)
	assert.False(t, s.Finished.Before(s.Started))

	rows, err := processor.FrameToRows(res.Aggregates, "")
	require.NoError(t, err)
	require.Len(t, rows, 6)

	ice := processor.RouteKey("ICE", "ICE 1", "Berlin Hbf")
	ic := processor.RouteKey("IC", "IC 2", "Köln Hbf")
	for i, m := range months {
		// ICE 1 每月一组, 两班车
		r := rows[i]
		assert.Equal(t, ice, r.RouteID)
		assert.Equal(t, m+"-01", r.Date)
		assert.Equal(t, 3.0, r.MeanDelay)
		assert.InDelta(t, math.Sqrt2, r.SDDelay, 1e-12)
		assert.Equal(t, 2, r.NTrains)

		// IC 2 与 RE 3 记录数相同, 按线路标识取 IC 2
		r = rows[3+i]
		assert.Equal(t, ic, r.RouteID)
		assert.Equal(t, m+"-02", r.Date)
		assert.True(t, math.IsNaN(r.SDDelay))
		assert.Equal(t, 1, r.NTrains)
	}

	total := 0
	for _, r := range rows {
		total += r.NTrains
	}
	assert.Equal(t, s.Sampled, total)
}

// writeSingleRouteMonths 每个月10条记录, RE 共9条 (含3条车次为 S5 的城郊线), 巴士与 S 车型各6条,
// IC, RB, EC 各3条低于阈值; 剩下的只有 RE 1 往 Bonn Hbf 的6班车
func writeSingleRouteMonths(t *testing.T, dir string) {
	t.Helper()
	reDays := map[string][2]string{
		"2025-10": {"2025-10-04", "2025-10-04"}, // 周六
		"2025-11": {"2025-11-04", "2025-11-05"}, // 周二, 周三
		"2025-12": {"2025-12-06", "2025-12-07"}, // 周六, 周日
	}
	for _, m := range months {
		days := reDays[m]
		rows := []testutil.Row{
			testutil.Departure("RE", "RE 1", "Bonn Hbf", days[0]+"T08:00:00Z", 2),
			testutil.Departure("RE", "RE 1", "Bonn Hbf", days[1]+"T12:00:00Z", 4),
			testutil.Departure("RE", "S5", "Bonn Hbf", m+"-02T09:00:00Z", 7),
			testutil.Departure("Bus", "Bus 7", "Bonn Hbf", m+"-02T10:00:00Z", 0),
			testutil.Departure("Bus", "Bus 8", "Bonn Hbf", m+"-02T11:00:00Z", 0),
			testutil.Departure("S", "S 1", "Köln Hbf", m+"-03T07:00:00Z", 1),
			testutil.Departure("S", "S 2", "Köln Hbf", m+"-03T08:00:00Z", 1),
			testutil.Departure("IC", "IC 2", "Köln Hbf", m+"-03T09:00:00Z", 3),
			testutil.Departure("RB", "RB 9", "Bonn Hbf", m+"-03T10:00:00Z", 5),
			testutil.Departure("EC", "EC 7", "Berlin Hbf", m+"-03T11:00:00Z", 6),
		}
		_, err := testutil.WriteMonthParquet(dir, m, rows)
		require.NoError(t, err)
	}
}

func TestPipelineSingleTopRoute(t *testing.T) {
	dir := t.TempDir()
	writeSingleRouteMonths(t, dir)

	params := processor.DefaultParams()
	params.TopNRoutes = 1
	params.Rules.Threshold = 5
	src := &file.MonthlySource{DataDir: dir, Months: months, Ext: ".parquet", Columns: processor.RequiredColumns}

	res, err := (&processor.Pipeline{Source: src, Params: params}).Run()
	require.NoError(t, err)

	s := res.Summary
	assert.Equal(t, 30, s.Loaded)
	assert.Equal(t, 6, s.Filtered)
	assert.Equal(t, 1, s.Routes)
	assert.Equal(t, 6, s.Sampled)

	rows, err := processor.FrameToRows(res.Aggregates, "")
	require.NoError(t, err)

	route := processor.RouteKey("RE", "RE 1", "Bonn Hbf")
	type day struct {
		date    string
		n       int
		weekday int
		weekend bool
	}
	want := []day{
		{"2025-10-04", 2, 5, true},
		{"2025-11-04", 1, 1, false},
		{"2025-11-05", 1, 2, false},
		{"2025-12-06", 1, 5, true},
		{"2025-12-07", 1, 6, true},
	}
	require.Len(t, rows, len(want))

	total := 0
	for i, w := range want {
		r := rows[i]
		assert.Equal(t, route, r.RouteID)
		assert.Equal(t, w.date, r.Date)
		assert.Equal(t, w.n, r.NTrains, w.date)
		assert.Equal(t, w.weekday, r.Weekday, w.date)
		assert.Equal(t, w.weekend, r.IsWeekend, w.date)
		total += r.NTrains
	}
	assert.Equal(t, s.Filtered, total)
	assert.Equal(t, 3.0, rows[0].MeanDelay)
}

func TestPipelineDeterministic(t *testing.T) {
	dir := t.TempDir()
	writeMonths(t, dir)
	src := &file.MonthlySource{DataDir: dir, Months: months, Ext: ".parquet", Columns: processor.RequiredColumns}

	var first [][]string
	for i := 0; i < 3; i++ {
		res, err := (&processor.Pipeline{Source: src, Params: testParams()}).Run()
		require.NoError(t, err)
		if first == nil {
			first = res.Aggregates.Records()
			continue
		}
		assert.Equal(t, first, res.Aggregates.Records(), fmt.Sprintf("run %d", i))
	}
}

func TestPipelineMissingMonth(t *testing.T) {
	dir := t.TempDir()
	writeMonths(t, dir)

	src := &file.MonthlySource{DataDir: dir, Months: []string{"2025-09", "2025-10", "2025-11"}, Ext: ".parquet", Columns: processor.RequiredColumns}
	_, err := (&processor.Pipeline{Source: src, Params: testParams()}).Run()
	assert.ErrorIs(t, err, file.ErrMissingFile)
}

func TestPipelineInvalidTopN(t *testing.T) {
	dir := t.TempDir()
	writeMonths(t, dir)

	params := testParams()
	params.TopNRoutes = 0
	src := &file.MonthlySource{DataDir: dir, Months: months, Ext: ".parquet", Columns: processor.RequiredColumns}
	_, err := (&processor.Pipeline{Source: src, Params: params}).Run()
	assert.ErrorIs(t, err, processor.ErrInvalidParam)
}

func TestNewParams(t *testing.T) {
	cfg, dcfg := config.Default()
	cfg.TopNRoutes = 7
	cfg.TrainTypeThreshold = 42

	p, err := processor.NewParams(cfg, dcfg)
	require.NoError(t, err)
	assert.Equal(t, 7, p.TopNRoutes)
	assert.Equal(t, 42, p.Rules.Threshold)
	assert.Equal(t, dcfg.TimeFormats, p.TimeFormats)
	assert.Equal(t, processor.DefaultRouteColumn, p.RouteColumn)
}
