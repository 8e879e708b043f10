// Package datapush 把聚合结果推送到各个输出(csv/xlsx/sqlite)
package datapush

import (
	"context"
	"fmt"
	"path/filepath"

	"RailDelayInsight/src/config"
	"RailDelayInsight/src/datasource/stations"
	"RailDelayInsight/src/processor"
	"RailDelayInsight/src/storage"
	"RailDelayInsight/src/utils"

	"github.com/go-gota/gota/dataframe"
)

// Publisher 负责一次运行结果的全部输出
type Publisher struct {
	Output      config.OutputConfig
	RouteColumn string
	Months      []string
	Catalog     *stations.Catalog       // 可选, 为 nil 时不补充城市
	Store       *storage.AggregateStore // 可选, 为 nil 时不写库
	Logger      *storage.Logger
}

// Report 记录输出的位置
type Report struct {
	CSVPath  string
	XLSXPath string
	RunID    string
	Rows     int
}

// Publish 依次补充城市、导出文件、写入数据库
func (p *Publisher) Publish(ctx context.Context, res *processor.Result) (Report, error) {
	var report Report
	if res == nil {
		return report, fmt.Errorf("publish: empty result")
	}

	agg := res.Aggregates
	if p.Catalog != nil {
		enriched, err := p.Catalog.Enrich(agg, p.RouteColumn)
		if err != nil {
			return report, fmt.Errorf("publish: %w", err)
		}
		agg = enriched
	}
	report.Rows = agg.Nrow()

	if p.Output.CSV {
		report.CSVPath = filepath.Join(p.Output.Dir, ExportBaseName+".csv")
		if err := ExportCSV(agg, report.CSVPath); err != nil {
			return report, err
		}
		p.info("已导出csv: " + report.CSVPath)
	}

	if p.Output.XLSX {
		report.XLSXPath = filepath.Join(p.Output.Dir, ExportBaseName+".xlsx")
		if err := ExportXLSX(agg, report.XLSXPath); err != nil {
			return report, err
		}
		p.info("已导出xlsx: " + report.XLSXPath)
	}

	if p.Store != nil {
		records, err := ToRecords(agg, p.RouteColumn)
		if err != nil {
			return report, err
		}
		runID, err := p.Store.SaveRun(ctx, p.runRecord(res.Summary), records)
		if err != nil {
			return report, fmt.Errorf("写入数据库失败: %w", err)
		}
		report.RunID = runID
		if p.Logger != nil {
			p.Logger.Infof("已写入数据库 run_id=%s rows=%d", runID, len(records))
		}
	}
	return report, nil
}

func (p *Publisher) runRecord(s processor.Summary) storage.RunRecord {
	return storage.RunRecord{
		Started:  s.Started,
		Finished: s.Finished,
		Months:   p.Months,
		Loaded:   s.Loaded,
		Cleaned:  s.Clean.Output,
		Filtered: s.Filtered,
		Routes:   s.Routes,
		Sampled:  s.Sampled,
		Groups:   s.Groups,
	}
}

// ToRecords 把聚合结果转为数据库记录, 有 city 列时一并写入
func ToRecords(agg dataframe.DataFrame, routeColumn string) ([]storage.AggregateRecord, error) {
	rows, err := processor.FrameToRows(agg, routeColumn)
	if err != nil {
		return nil, err
	}

	var cities []string
	if utils.HasColumn(agg, stations.ColCity) {
		col := agg.Col(stations.ColCity)
		cities = make([]string, col.Len())
		for i := range cities {
			if el := col.Elem(i); !el.IsNA() {
				cities[i] = el.String()
			}
		}
	}

	records := make([]storage.AggregateRecord, len(rows))
	for i, r := range rows {
		records[i] = storage.AggregateRecord{
			RouteID:   r.RouteID,
			Date:      r.Date,
			MeanDelay: r.MeanDelay,
			SDDelay:   r.SDDelay,
			NTrains:   r.NTrains,
			Weekday:   r.Weekday,
			IsWeekend: r.IsWeekend,
		}
		if cities != nil {
			records[i].City = cities[i]
		}
	}
	return records, nil
}

func (p *Publisher) info(msg string) {
	if p.Logger != nil {
		p.Logger.Info(msg)
	}
}
