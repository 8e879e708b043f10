package processor

import (
	"fmt"
	"strings"

	"RailDelayInsight/src/config"
	"RailDelayInsight/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"golang.org/x/text/unicode/norm"
)

// CleanStats 记录清洗阶段每类被剔除的行数
type CleanStats struct {
	Input         int // 输入行数
	Output        int // 输出行数
	FilledStation int // 用 xml_station_name 补全的站名数
	Canceled      int // 取消或取消状态未知
	NoDelay       int // 延误为空
	NoStation     int // 补全后站名仍为空
}

// Clean 清洗原始数据
//  1. 站名为空时用 xml_station_name 补全
//  2. 只保留未取消且延误非空的记录, 补全后仍无站名的记录一并剔除
//  3. 解析 time, 生成 date 列
//  4. 删除 is_canceled 与 xml_station_name
func Clean(df dataframe.DataFrame, timeFormats []string) (dataframe.DataFrame, CleanStats, error) {
	stats := CleanStats{Input: df.Nrow()}
	if err := requireColumns(df, "clean",
		ColStationName, ColXMLStationName, ColTrainName, ColDelay, ColTime, ColIsCanceled); err != nil {
		return dataframe.DataFrame{}, stats, err
	}
	if len(timeFormats) == 0 {
		timeFormats = config.DefaultTimeFormats
	}

	df, stats.FilledStation = fillStationName(df)
	df = df.Mutate(normalizeText(df.Col(ColTrainName)))
	if err := frameErr(df, "clean"); err != nil {
		return dataframe.DataFrame{}, stats, err
	}

	countDropped(df, &stats)

	kept := df.FilterAggregation(
		dataframe.And,
		dataframe.F{Colname: ColIsCanceled, Comparator: series.CompFunc, Comparando: notCanceled},
		dataframe.F{Colname: ColDelay, Comparator: series.CompFunc, Comparando: notNA},
		dataframe.F{Colname: ColStationName, Comparator: series.CompFunc, Comparando: notNA},
	)
	if err := frameErr(kept, "clean"); err != nil {
		return dataframe.DataFrame{}, stats, err
	}

	kept, err := deriveDate(kept, timeFormats)
	if err != nil {
		return dataframe.DataFrame{}, stats, err
	}

	kept = kept.Drop([]string{ColIsCanceled, ColXMLStationName})
	if err := frameErr(kept, "clean"); err != nil {
		return dataframe.DataFrame{}, stats, err
	}

	stats.Output = kept.Nrow()
	return kept, stats, nil
}

// notCanceled 取消状态为空时视为不可用
func notCanceled(el series.Element) bool {
	if el.IsNA() {
		return false
	}
	canceled, err := el.Bool()
	return err == nil && !canceled
}

// fillStationName 返回补全后的 DataFrame 与补全数量
func fillStationName(df dataframe.DataFrame) (dataframe.DataFrame, int) {
	primary := df.Col(ColStationName)
	fallback := df.Col(ColXMLStationName)

	filled := 0
	values := make([]interface{}, primary.Len())
	for i := 0; i < primary.Len(); i++ {
		name := cleanName(primary.Elem(i))
		if name == nil {
			name = cleanName(fallback.Elem(i))
			if name != nil {
				filled++
			}
		}
		values[i] = name
	}

	return df.Mutate(series.New(values, series.String, ColStationName)), filled
}

// normalizeText 去除首尾空白并做NFC规范化, 空串视为空值
func normalizeText(s series.Series) series.Series {
	values := make([]interface{}, s.Len())
	for i := 0; i < s.Len(); i++ {
		values[i] = cleanName(s.Elem(i))
	}
	return series.New(values, series.String, s.Name)
}

func cleanName(el series.Element) interface{} {
	if el.IsNA() {
		return nil
	}
	v := strings.TrimSpace(norm.NFC.String(el.String()))
	if v == "" {
		return nil
	}
	return v
}

func countDropped(df dataframe.DataFrame, stats *CleanStats) {
	canceled := df.Col(ColIsCanceled)
	delay := df.Col(ColDelay)
	station := df.Col(ColStationName)
	for i := 0; i < df.Nrow(); i++ {
		switch {
		case !notCanceled(canceled.Elem(i)):
			stats.Canceled++
		case delay.Elem(i).IsNA():
			stats.NoDelay++
		case station.Elem(i).IsNA():
			stats.NoStation++
		}
	}
}

// deriveDate 统一 time 格式并增加 date 列
func deriveDate(df dataframe.DataFrame, timeFormats []string) (dataframe.DataFrame, error) {
	times := df.Col(ColTime)
	normalized := make([]string, times.Len())
	dates := make([]string, times.Len())

	for i := 0; i < times.Len(); i++ {
		el := times.Elem(i)
		if el.IsNA() {
			return dataframe.DataFrame{}, fmt.Errorf("clean: row %d: %w: empty time", i, ErrBadTimestamp)
		}
		t, err := utils.ParseTime(strings.TrimSpace(el.String()), timeFormats)
		if err != nil {
			return dataframe.DataFrame{}, fmt.Errorf("clean: row %d: %w: %v", i, ErrBadTimestamp, err)
		}
		normalized[i] = t.Format(TimeLayout)
		dates[i] = t.Format(DateLayout)
	}

	df = df.Mutate(series.New(normalized, series.String, ColTime))
	df = df.Mutate(series.New(dates, series.String, ColDate))
	return df, frameErr(df, "clean")
}
