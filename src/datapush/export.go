package datapush

import (
	"fmt"
	"os"
	"path/filepath"

	"RailDelayInsight/src/utils"

	"github.com/go-gota/gota/dataframe"
)

// 导出文件名(不含扩展名)与工作表名
const (
	ExportBaseName = "agg_route_daily"
	ExportSheet    = "agg_route_daily"
)

// ExportCSV 把 df 写成 csv, 空值写作 NaN
func ExportCSV(df dataframe.DataFrame, path string) error {
	if df.Err != nil {
		return df.Err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("创建导出目录失败: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建csv失败: %w", err)
	}
	if err := df.WriteCSV(f); err != nil {
		f.Close()
		return fmt.Errorf("写入csv失败: %w", err)
	}
	return f.Close()
}

// ExportXLSX 把 df 写成 xlsx, 空值写作空单元格
func ExportXLSX(df dataframe.DataFrame, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("创建导出目录失败: %w", err)
	}
	return utils.SaveToExcel(df, path, ExportSheet)
}
