package processor

import (
	"fmt"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/spf13/cast"
)

// 线路标识分隔符: 车型_车次→站名
const (
	TypeSeparator    = "_"
	StationSeparator = "→"
)

// RouteParts 是线路标识的三个组成部分
type RouteParts struct {
	TrainType   string
	TrainName   string
	StationName string
}

// 字段中的反斜杠与两个分隔符前加 "\" 转义, 不同的三元组得到不同的标识
var routeEscaper = strings.NewReplacer(`\`, `\\`, TypeSeparator, `\`+TypeSeparator, StationSeparator, `\`+StationSeparator)

// RouteKey 生成线路标识, 不含特殊字符的字段原样拼接
func RouteKey(trainType, trainName, stationName string) string {
	return routeEscaper.Replace(trainType) +
		TypeSeparator +
		routeEscaper.Replace(trainName) +
		StationSeparator +
		routeEscaper.Replace(stationName)
}

// Key 返回 RouteParts 对应的线路标识
func (p RouteParts) Key() string {
	return RouteKey(p.TrainType, p.TrainName, p.StationName)
}

// ParseRouteKey 按未转义的分隔符拆分线路标识并还原字段
func ParseRouteKey(key string) (RouteParts, error) {
	seps := []rune{[]rune(TypeSeparator)[0], []rune(StationSeparator)[0]}
	fields := make([]string, 0, 3)

	var b strings.Builder
	escaped := false
	for _, r := range key {
		switch {
		case escaped:
			b.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case len(fields) < len(seps) && r == seps[len(fields)]:
			fields = append(fields, b.String())
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	if escaped || len(fields) != len(seps) {
		return RouteParts{}, fmt.Errorf("%w: %q", ErrBadRouteKey, key)
	}
	return RouteParts{TrainType: fields[0], TrainName: fields[1], StationName: b.String()}, nil
}

// AddRouteID 增加线路标识列, column 为空时使用 route_id
func AddRouteID(df dataframe.DataFrame, column string) (dataframe.DataFrame, error) {
	if column == "" {
		column = DefaultRouteColumn
	}
	if err := requireColumns(df, "route", ColTrainType, ColTrainName, ColStationName); err != nil {
		return dataframe.DataFrame{}, err
	}

	types := df.Col(ColTrainType)
	names := df.Col(ColTrainName)
	stations := df.Col(ColStationName)

	keys := make([]string, df.Nrow())
	for i := range keys {
		keys[i] = RouteKey(asText(types.Elem(i)), asText(names.Elem(i)), asText(stations.Elem(i)))
	}

	df = df.Mutate(series.New(keys, series.String, column))
	return df, frameErr(df, "route")
}

// asText 把任意类型的单元格转成文本, 空值写作 NaN
func asText(el series.Element) string {
	if el.IsNA() {
		return "NaN"
	}
	s, err := cast.ToStringE(el.Val())
	if err != nil {
		return el.String()
	}
	return s
}
