package processor

import (
	"fmt"
	"sort"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// RouteCount 线路及其记录数
type RouteCount struct {
	Route string
	Count int
}

// RankRoutes 按记录数降序排列线路, 记录数相同按线路标识升序
func RankRoutes(df dataframe.DataFrame, column string) ([]RouteCount, error) {
	if column == "" {
		column = DefaultRouteColumn
	}
	if err := requireColumns(df, "sample", column); err != nil {
		return nil, err
	}

	counts := ValueCounts(df.Col(column))
	ranked := make([]RouteCount, 0, len(counts))
	for route, n := range counts {
		ranked = append(ranked, RouteCount{Route: route, Count: n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Route < ranked[j].Route
	})
	return ranked, nil
}

// TopRoutes 返回记录数最多的 n 条线路
func TopRoutes(df dataframe.DataFrame, n int, column string) ([]RouteCount, error) {
	if n <= 0 {
		return nil, fmt.Errorf("sample: %w: top n %d", ErrInvalidParam, n)
	}
	ranked, err := RankRoutes(df, column)
	if err != nil {
		return nil, err
	}
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked, nil
}

// SampleTopRoutes 只保留记录数最多的 n 条线路的数据
func SampleTopRoutes(df dataframe.DataFrame, n int, column string) (dataframe.DataFrame, error) {
	if column == "" {
		column = DefaultRouteColumn
	}
	top, err := TopRoutes(df, n, column)
	if err != nil {
		return dataframe.DataFrame{}, err
	}

	keep := make(map[string]struct{}, len(top))
	for _, rc := range top {
		keep[rc.Route] = struct{}{}
	}

	df = df.Filter(dataframe.F{
		Colname:    column,
		Comparator: series.CompFunc,
		Comparando: func(el series.Element) bool {
			if el.IsNA() {
				return false
			}
			_, ok := keep[el.String()]
			return ok
		},
	})
	return df, frameErr(df, "sample")
}
