// data.go
package processor

import (
	"errors"
	"fmt"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// 原始数据列
const (
	ColStationName     = "station_name"
	ColXMLStationName  = "xml_station_name"
	ColFinalStation    = "final_destination_station"
	ColTrainName       = "train_name"
	ColTrainType       = "train_type"
	ColDelay           = "delay_in_min"
	ColTime            = "time"
	ColIsCanceled      = "is_canceled"
	ColDate            = "date"
	DefaultRouteColumn = "route_id"
)

// 聚合结果列
const (
	ColMeanDelay = "mean_delay"
	ColSDDelay   = "sd_delay"
	ColNTrains   = "n_trains"
	ColWeekday   = "weekday"
	ColIsWeekend = "is_weekend"
)

// DateLayout 是 date 列的格式
const DateLayout = "2006-01-02"

// TimeLayout 是清洗后 time 列的格式
const TimeLayout = "2006-01-02 15:04:05"

var (
	ErrMissingColumn = errors.New("required column missing")
	ErrBadTimestamp  = errors.New("unparseable timestamp")
	ErrInvalidParam  = errors.New("invalid parameter")
	ErrBadRouteKey   = errors.New("malformed route key")
)

// RequiredColumns 是加载阶段需要读取的列
var RequiredColumns = []string{
	ColStationName,
	ColXMLStationName,
	ColFinalStation,
	ColTrainName,
	ColDelay,
	ColTime,
	ColIsCanceled,
	ColTrainType,
}

// ColumnTypes 决定每一列在 DataFrame 中的类型, 未列出的按字符串处理
var ColumnTypes = map[string]series.Type{
	ColDelay:      series.Float,
	ColIsCanceled: series.Bool,
}

// ColumnType 返回列的目标类型
func ColumnType(name string) series.Type {
	if t, ok := ColumnTypes[name]; ok {
		return t
	}
	return series.String
}

// requireColumns 检查 df 是否包含指定列
func requireColumns(df dataframe.DataFrame, stage string, names ...string) error {
	if df.Err != nil {
		return fmt.Errorf("%s: %w", stage, df.Err)
	}
	have := make(map[string]bool, df.Ncol())
	for _, n := range df.Names() {
		have[n] = true
	}
	for _, n := range names {
		if !have[n] {
			return fmt.Errorf("%s: %w: %s", stage, ErrMissingColumn, n)
		}
	}
	return nil
}

// frameErr 把 gota 的链式错误转换为普通错误
func frameErr(df dataframe.DataFrame, stage string) error {
	if df.Err != nil {
		return fmt.Errorf("%s: %w", stage, df.Err)
	}
	return nil
}

// notNA 用于 series.CompFunc 过滤
func notNA(el series.Element) bool {
	return !el.IsNA()
}
