package processor

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/stat"
)

// AggregateRow 是一条线路一天的延误统计
type AggregateRow struct {
	RouteID   string
	Date      string
	MeanDelay float64
	SDDelay   float64 // 只有一条记录时为 NaN
	NTrains   int
	Weekday   int // 0=周一 .. 6=周日
	IsWeekend bool
}

type groupKey struct {
	route string
	date  string
}

// AggregateDaily 按 (线路, 日期) 分组统计延误
// 结果按线路、日期升序排列
func AggregateDaily(df dataframe.DataFrame, column string) (dataframe.DataFrame, error) {
	rows, err := AggregateRows(df, column)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	return RowsToFrame(rows, column), nil
}

// AggregateRows 与 AggregateDaily 相同, 返回结构体切片
func AggregateRows(df dataframe.DataFrame, column string) ([]AggregateRow, error) {
	if column == "" {
		column = DefaultRouteColumn
	}
	if err := requireColumns(df, "aggregate", column, ColDate, ColDelay); err != nil {
		return nil, err
	}

	routes := df.Col(column)
	dates := df.Col(ColDate)
	delays := df.Col(ColDelay).Float()

	groups := make(map[groupKey][]float64)
	for i := 0; i < df.Nrow(); i++ {
		k := groupKey{route: routes.Elem(i).String(), date: dates.Elem(i).String()}
		groups[k] = append(groups[k], delays[i])
	}

	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].route != keys[j].route {
			return keys[i].route < keys[j].route
		}
		return keys[i].date < keys[j].date
	})

	rows := make([]AggregateRow, 0, len(keys))
	for _, k := range keys {
		day, err := time.Parse(DateLayout, k.date)
		if err != nil {
			return nil, fmt.Errorf("aggregate: %w: date %q", ErrBadTimestamp, k.date)
		}
		values := groups[k]
		mean, sd := meanStdDev(values)
		weekday := WeekdayIndex(day)
		rows = append(rows, AggregateRow{
			RouteID:   k.route,
			Date:      k.date,
			MeanDelay: mean,
			SDDelay:   sd,
			NTrains:   len(values),
			Weekday:   weekday,
			IsWeekend: weekday >= 5,
		})
	}
	return rows, nil
}

// meanStdDev 返回均值与样本标准差, 单条记录时标准差为 NaN
func meanStdDev(values []float64) (float64, float64) {
	if len(values) == 1 {
		return values[0], math.NaN()
	}
	return stat.MeanStdDev(values, nil)
}

// WeekdayIndex 周一为0, 周日为6
func WeekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// RowsToFrame 把聚合结果转为 DataFrame
func RowsToFrame(rows []AggregateRow, column string) dataframe.DataFrame {
	if column == "" {
		column = DefaultRouteColumn
	}
	n := len(rows)
	routes := make([]string, n)
	dates := make([]string, n)
	means := make([]float64, n)
	sds := make([]float64, n)
	counts := make([]int, n)
	weekdays := make([]int, n)
	weekends := make([]bool, n)
	for i, r := range rows {
		routes[i] = r.RouteID
		dates[i] = r.Date
		means[i] = r.MeanDelay
		sds[i] = r.SDDelay
		counts[i] = r.NTrains
		weekdays[i] = r.Weekday
		weekends[i] = r.IsWeekend
	}

	return dataframe.New(
		series.New(routes, series.String, column),
		series.New(dates, series.String, ColDate),
		series.New(means, series.Float, ColMeanDelay),
		series.New(sds, series.Float, ColSDDelay),
		series.New(counts, series.Int, ColNTrains),
		series.New(weekdays, series.Int, ColWeekday),
		series.New(weekends, series.Bool, ColIsWeekend),
	)
}

// FrameToRows 读取聚合结果 DataFrame
func FrameToRows(df dataframe.DataFrame, column string) ([]AggregateRow, error) {
	if column == "" {
		column = DefaultRouteColumn
	}
	if err := requireColumns(df, "aggregate", column, ColDate, ColMeanDelay, ColSDDelay, ColNTrains, ColWeekday, ColIsWeekend); err != nil {
		return nil, err
	}

	counts, err := df.Col(ColNTrains).Int()
	if err != nil {
		return nil, fmt.Errorf("aggregate: %s: %w", ColNTrains, err)
	}
	weekdays, err := df.Col(ColWeekday).Int()
	if err != nil {
		return nil, fmt.Errorf("aggregate: %s: %w", ColWeekday, err)
	}
	weekends, err := df.Col(ColIsWeekend).Bool()
	if err != nil {
		return nil, fmt.Errorf("aggregate: %s: %w", ColIsWeekend, err)
	}
	routes := df.Col(column).Records()
	dates := df.Col(ColDate).Records()
	means := df.Col(ColMeanDelay).Float()
	sds := df.Col(ColSDDelay).Float()

	rows := make([]AggregateRow, df.Nrow())
	for i := range rows {
		rows[i] = AggregateRow{
			RouteID:   routes[i],
			Date:      dates[i],
			MeanDelay: means[i],
			SDDelay:   sds[i],
			NTrains:   counts[i],
			Weekday:   weekdays[i],
			IsWeekend: weekends[i],
		}
	}
	return rows, nil
}
