package processor

import (
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// rec 是测试用的一条原始记录, nil 表示空值
type rec struct {
	station    interface{}
	xmlStation interface{}
	trainName  interface{}
	delay      interface{}
	at         interface{}
	canceled   interface{}
	trainType  interface{}
}

func dep(trainType, trainName, station, at string, delay float64) rec {
	return rec{
		station:   station,
		trainName: trainName,
		delay:     delay,
		at:        at,
		canceled:  false,
		trainType: trainType,
	}
}

func rawFrame(recs ...rec) dataframe.DataFrame {
	n := len(recs)
	cols := map[string][]interface{}{}
	for _, name := range RequiredColumns {
		cols[name] = make([]interface{}, n)
	}
	for i, r := range recs {
		cols[ColStationName][i] = r.station
		cols[ColXMLStationName][i] = r.xmlStation
		cols[ColFinalStation][i] = "Endstation"
		cols[ColTrainName][i] = r.trainName
		cols[ColDelay][i] = r.delay
		cols[ColTime][i] = r.at
		cols[ColIsCanceled][i] = r.canceled
		cols[ColTrainType][i] = r.trainType
	}

	ss := make([]series.Series, 0, len(RequiredColumns))
	for _, name := range RequiredColumns {
		ss = append(ss, series.New(cols[name], ColumnType(name), name))
	}
	return dataframe.New(ss...)
}

// typedFrame 生成已清洗过的数据, 只包含过滤与线路标识需要的列
func typedFrame(types, names, stations []string) dataframe.DataFrame {
	return dataframe.New(
		series.New(types, series.String, ColTrainType),
		series.New(names, series.String, ColTrainName),
		series.New(stations, series.String, ColStationName),
	)
}

func repeat(s string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s
	}
	return out
}
