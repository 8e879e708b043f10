// Package testutil 提供测试用的月度数据文件生成工具
package testutil

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// Row 与月度 parquet 文件的一行对应, nil 表示空值
type Row struct {
	StationName    *string  `parquet:"name=station_name, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	XMLStationName *string  `parquet:"name=xml_station_name, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	FinalStation   *string  `parquet:"name=final_destination_station, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	TrainName      *string  `parquet:"name=train_name, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	DelayInMin     *float64 `parquet:"name=delay_in_min, type=DOUBLE, repetitiontype=OPTIONAL"`
	Time           *string  `parquet:"name=time, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	IsCanceled     *bool    `parquet:"name=is_canceled, type=BOOLEAN, repetitiontype=OPTIONAL"`
	TrainType      *string  `parquet:"name=train_type, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
}

// TimestampRow 的 time 列以毫秒时间戳存储
type TimestampRow struct {
	StationName    *string  `parquet:"name=station_name, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	XMLStationName *string  `parquet:"name=xml_station_name, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	FinalStation   *string  `parquet:"name=final_destination_station, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	TrainName      *string  `parquet:"name=train_name, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	DelayInMin     *float64 `parquet:"name=delay_in_min, type=DOUBLE, repetitiontype=OPTIONAL"`
	Time           *int64   `parquet:"name=time, type=INT64, convertedtype=TIMESTAMP_MILLIS, repetitiontype=OPTIONAL"`
	IsCanceled     *bool    `parquet:"name=is_canceled, type=BOOLEAN, repetitiontype=OPTIONAL"`
	TrainType      *string  `parquet:"name=train_type, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
}

// Str 返回字符串指针
func Str(s string) *string { return &s }

// Float 返回浮点指针
func Float(f float64) *float64 { return &f }

// Bool 返回布尔指针
func Bool(b bool) *bool { return &b }

// Millis 返回毫秒时间戳指针
func Millis(t time.Time) *int64 {
	v := t.UnixMilli()
	return &v
}

// Departure 生成一条正常发车记录
func Departure(trainType, trainName, station, at string, delay float64) Row {
	return Row{
		StationName:  Str(station),
		FinalStation: Str("Endstation"),
		TrainName:    Str(trainName),
		DelayInMin:   Float(delay),
		Time:         Str(at),
		IsCanceled:   Bool(false),
		TrainType:    Str(trainType),
	}
}

// MonthFile 返回 dir 下 data-<month>.parquet 的路径
func MonthFile(dir, month string) string {
	return filepath.Join(dir, fmt.Sprintf("data-%s.parquet", month))
}

// WriteParquet 把 rows 写入 path, rows 的元素类型必须一致
func WriteParquet[T any](path string, rows []T) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer fw.Close()

	pw, err := writer.NewParquetWriter(fw, new(T), 1)
	if err != nil {
		return fmt.Errorf("parquet writer %s: %w", path, err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i := range rows {
		if err := pw.Write(rows[i]); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("write footer %s: %w", path, err)
	}
	return nil
}

// WriteMonthParquet 在 dir 下写入一个月的数据文件, 返回文件路径
func WriteMonthParquet(dir, month string, rows []Row) (string, error) {
	path := MonthFile(dir, month)
	return path, WriteParquet(path, rows)
}
