// reader.go
package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"RailDelayInsight/src/config"
	"RailDelayInsight/src/processor"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/spf13/cast"
	"github.com/tealeg/xlsx"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/common"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/types"
)

// ErrMissingFile 月度数据文件不存在
var ErrMissingFile = errors.New("monthly data file missing")

// MonthlySource 读取三个月的数据并合并为一张表
type MonthlySource struct {
	DataDir   string
	Months    []string // 形如 2025-10
	Ext       string   // .parquet 或 .xlsx
	SheetName string   // xlsx 使用的工作表, 为空时取第一个
	Columns   []string // 需要读取的列
}

// NewMonthlySource 根据配置创建数据源
func NewMonthlySource(cfg *config.Config, dcfg *config.DataConfig) *MonthlySource {
	columns := processor.RequiredColumns
	if dcfg != nil && len(dcfg.Columns) > 0 {
		columns = dcfg.GetColumns()
	}
	return &MonthlySource{
		DataDir:   cfg.DataDir,
		Months:    cfg.Months,
		Ext:       cfg.FileExt,
		SheetName: cfg.SheetName,
		Columns:   columns,
	}
}

// MonthFile 返回 <dataDir>/data-<YYYY>-<MM><ext>
func MonthFile(dataDir, month, ext string) string {
	if ext == "" {
		ext = config.DefaultFileExt
	}
	return filepath.Join(dataDir, fmt.Sprintf("data-%s%s", month, ext))
}

// Files 返回需要读取的文件列表
func (s *MonthlySource) Files() []string {
	files := make([]string, 0, len(s.Months))
	for _, m := range s.Months {
		files = append(files, MonthFile(s.DataDir, m, s.Ext))
	}
	return files
}

// Load 实现 processor.Source
// 任何一个文件缺失都直接返回错误, 不做部分月份的合并
func (s *MonthlySource) Load() (dataframe.DataFrame, error) {
	files := s.Files()
	if len(files) == 0 {
		return dataframe.DataFrame{}, fmt.Errorf("no months configured")
	}

	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return dataframe.DataFrame{}, fmt.Errorf("%w: %s", ErrMissingFile, f)
			}
			return dataframe.DataFrame{}, fmt.Errorf("stat %s: %w", f, err)
		}
	}

	var df dataframe.DataFrame
	for i, f := range files {
		month, err := s.readMonth(f)
		if err != nil {
			return dataframe.DataFrame{}, err
		}
		if i == 0 {
			df = month
			continue
		}
		df = df.RBind(month)
		if df.Err != nil {
			return dataframe.DataFrame{}, fmt.Errorf("concat %s: %w", f, df.Err)
		}
	}
	return df, nil
}

func (s *MonthlySource) readMonth(path string) (dataframe.DataFrame, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return ReadXLSX(path, s.SheetName, s.Columns)
	default:
		return ReadParquet(path, s.Columns)
	}
}

// ReadParquet 只读取 columns 指定的列
func ReadParquet(path string, columns []string) (dataframe.DataFrame, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return dataframe.DataFrame{}, fmt.Errorf("%w: %s", ErrMissingFile, path)
		}
		return dataframe.DataFrame{}, fmt.Errorf("open parquet %s: %w", path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetColumnReader(fr, 1)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("read parquet footer %s: %w", path, err)
	}
	defer pr.ReadStop()

	num := pr.GetNumRows()
	root := pr.SchemaHandler.GetRootExName()

	// 先确认所有列都存在
	paths := make([]string, len(columns))
	elements := make([]*parquet.SchemaElement, len(columns))
	for i, name := range columns {
		exPath := common.PathToStr([]string{root, name})
		inPath, err := pr.SchemaHandler.ConvertToInPathStr(exPath)
		if err != nil {
			return dataframe.DataFrame{}, fmt.Errorf("%s: %w: %s", path, processor.ErrMissingColumn, name)
		}
		paths[i] = exPath
		if idx, ok := pr.SchemaHandler.MapIndex[inPath]; ok {
			elements[i] = pr.SchemaHandler.SchemaElements[idx]
		}
	}

	cols := make([]series.Series, len(columns))
	for i, name := range columns {
		var values []interface{}
		if num > 0 {
			values, _, _, err = pr.ReadColumnByPath(paths[i], num)
			if err != nil {
				return dataframe.DataFrame{}, fmt.Errorf("read column %s from %s: %w", name, path, err)
			}
			if int64(len(values)) != num {
				return dataframe.DataFrame{}, fmt.Errorf("read column %s from %s: got %d of %d rows", name, path, len(values), num)
			}
		}
		cols[i] = toSeries(values, name, elements[i])
	}

	df := dataframe.New(cols...)
	if df.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("build frame %s: %w", path, df.Err)
	}
	return df, nil
}

// ReadXLSX 读取xlsx, 第一行为表头
func ReadXLSX(path, sheetName string, columns []string) (dataframe.DataFrame, error) {
	xlFile, err := xlsx.OpenFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return dataframe.DataFrame{}, fmt.Errorf("%w: %s", ErrMissingFile, path)
		}
		return dataframe.DataFrame{}, fmt.Errorf("xlsx open file false: %w", err)
	}

	if len(xlFile.Sheets) == 0 {
		return dataframe.DataFrame{}, fmt.Errorf("excel文件中没有工作表: %s", path)
	}
	sheet := xlFile.Sheets[0]
	if sheetName != "" {
		s, ok := xlFile.Sheet[sheetName]
		if !ok {
			return dataframe.DataFrame{}, fmt.Errorf("工作表 %s 不存在: %s", sheetName, path)
		}
		sheet = s
	}

	return convertSheetToDataFrame(sheet, path, columns)
}

// convertSheetToDataFrame 将xlsx.Sheet中需要的列转换为dataframe.DataFrame
func convertSheetToDataFrame(sheet *xlsx.Sheet, path string, columns []string) (dataframe.DataFrame, error) {
	if len(sheet.Rows) == 0 {
		return dataframe.DataFrame{}, fmt.Errorf("%s: %w: empty sheet", path, processor.ErrMissingColumn)
	}

	headerIdx := make(map[string]int)
	for i, cell := range sheet.Rows[0].Cells {
		headerIdx[strings.TrimSpace(cell.Value)] = i
	}

	positions := make([]int, len(columns))
	for i, name := range columns {
		pos, ok := headerIdx[name]
		if !ok {
			return dataframe.DataFrame{}, fmt.Errorf("%s: %w: %s", path, processor.ErrMissingColumn, name)
		}
		positions[i] = pos
	}

	nrows := len(sheet.Rows) - 1
	values := make([][]interface{}, len(columns))
	for i := range values {
		values[i] = make([]interface{}, nrows)
	}

	// 填充数据(从第二行开始), 空单元格视为空值
	for r, row := range sheet.Rows[1:] {
		for i, pos := range positions {
			if row == nil || pos >= len(row.Cells) {
				continue
			}
			if v := row.Cells[pos].Value; v != "" {
				values[i][r] = v
			}
		}
	}

	cols := make([]series.Series, len(columns))
	for i, name := range columns {
		cols[i] = toSeries(values[i], name, nil)
	}

	df := dataframe.New(cols...)
	if df.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("build frame %s: %w", path, df.Err)
	}
	return df, nil
}

// toSeries 按列的目标类型转换原始值
func toSeries(values []interface{}, name string, el *parquet.SchemaElement) series.Series {
	t := processor.ColumnType(name)
	converted := make([]interface{}, len(values))
	for i, v := range values {
		converted[i] = convertValue(v, t, el)
	}
	return series.New(converted, t, name)
}

func convertValue(v interface{}, t series.Type, el *parquet.SchemaElement) interface{} {
	if v == nil {
		return nil
	}
	switch t {
	case series.Float:
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return nil
		}
		return f
	case series.Bool:
		b, err := cast.ToBoolE(v)
		if err != nil {
			return nil
		}
		return b
	default:
		if ts, ok := timestampValue(v, el); ok {
			return ts.Format(time.RFC3339Nano)
		}
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil
		}
		return s
	}
}

// timestampValue 处理以 INT64/INT96 存储的时间戳列
func timestampValue(v interface{}, el *parquet.SchemaElement) (time.Time, bool) {
	if el == nil {
		return time.Time{}, false
	}
	if el.GetType() == parquet.Type_INT96 {
		if s, ok := v.(string); ok && len(s) == 12 {
			return types.INT96ToTime(s).UTC(), true
		}
		return time.Time{}, false
	}

	n, ok := v.(int64)
	if !ok {
		return time.Time{}, false
	}

	if lt := el.LogicalType; lt != nil && lt.IsSetTIMESTAMP() && lt.TIMESTAMP.Unit != nil {
		unit := lt.TIMESTAMP.Unit
		switch {
		case unit.IsSetMILLIS():
			return time.UnixMilli(n).UTC(), true
		case unit.IsSetMICROS():
			return time.UnixMicro(n).UTC(), true
		case unit.IsSetNANOS():
			return time.Unix(0, n).UTC(), true
		}
	}

	if el.IsSetConvertedType() {
		switch el.GetConvertedType() {
		case parquet.ConvertedType_TIMESTAMP_MILLIS:
			return time.UnixMilli(n).UTC(), true
		case parquet.ConvertedType_TIMESTAMP_MICROS:
			return time.UnixMicro(n).UTC(), true
		}
	}
	return time.Time{}, false
}
