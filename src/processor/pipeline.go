package processor

import (
	"fmt"
	"time"

	"RailDelayInsight/src/config"
	"RailDelayInsight/src/storage"

	"github.com/go-gota/gota/dataframe"
)

// Source 提供原始数据
type Source interface {
	Load() (dataframe.DataFrame, error)
}

// Params 一次运行的参数
type Params struct {
	TopNRoutes  int
	RouteColumn string
	TimeFormats []string
	Rules       FilterRules
}

// DefaultParams 默认参数: 阈值1000, 保留150条线路
func DefaultParams() Params {
	return Params{
		TopNRoutes:  config.DefaultTopNRoutes,
		RouteColumn: DefaultRouteColumn,
		TimeFormats: config.DefaultTimeFormats,
		Rules:       DefaultFilterRules(),
	}
}

// NewParams 由配置生成运行参数
func NewParams(cfg *config.Config, dcfg *config.DataConfig) (Params, error) {
	rules, err := NewFilterRules(dcfg, cfg.TrainTypeThreshold)
	if err != nil {
		return Params{}, err
	}
	p := Params{
		TopNRoutes:  cfg.TopNRoutes,
		RouteColumn: cfg.RouteColumn,
		Rules:       rules,
	}
	if dcfg != nil {
		p.TimeFormats = dcfg.TimeFormats
	}
	return p, nil
}

// Summary 记录每个阶段的行数
type Summary struct {
	Loaded   int
	Clean    CleanStats
	Filtered int
	Routes   int // 过滤后的线路数
	Sampled  int
	Groups   int
	Started  time.Time
	Finished time.Time
}

// String 用于写日志
func (s Summary) String() string {
	return fmt.Sprintf("loaded=%d cleaned=%d (canceled=%d no_delay=%d no_station=%d filled_station=%d) filtered=%d routes=%d sampled=%d groups=%d elapsed=%v",
		s.Loaded, s.Clean.Output, s.Clean.Canceled, s.Clean.NoDelay, s.Clean.NoStation, s.Clean.FilledStation,
		s.Filtered, s.Routes, s.Sampled, s.Groups, s.Finished.Sub(s.Started))
}

// Result 一次运行的输出
type Result struct {
	Aggregates dataframe.DataFrame
	Summary    Summary
}

// Pipeline 串联 加载 → 清洗 → 过滤 → 线路标识 → 抽样 → 聚合
type Pipeline struct {
	Source Source
	Params Params
	Logger *storage.Logger
}

// Run 执行一次完整计算
func (p *Pipeline) Run() (*Result, error) {
	started := time.Now()
	p.info("开始加载月度数据")

	raw, err := p.Source.Load()
	if err != nil {
		p.logError("加载失败", err)
		return nil, err
	}

	res, err := Transform(raw, p.Params, p.Logger)
	if err != nil {
		p.logError("处理失败", err)
		return nil, err
	}
	res.Summary.Started = started
	res.Summary.Finished = time.Now()
	p.info("处理完成: " + res.Summary.String())
	return res, nil
}

// Transform 对已加载的数据依次执行各阶段, 每个阶段返回新的 DataFrame
func Transform(raw dataframe.DataFrame, params Params, logger *storage.Logger) (*Result, error) {
	if params.RouteColumn == "" {
		params.RouteColumn = DefaultRouteColumn
	}
	summary := Summary{Loaded: raw.Nrow(), Started: time.Now()}
	logInfo(logger, fmt.Sprintf("加载行数: %d", summary.Loaded))

	cleaned, stats, err := Clean(raw, params.TimeFormats)
	if err != nil {
		return nil, err
	}
	summary.Clean = stats
	logInfo(logger, fmt.Sprintf("清洗后行数: %d", stats.Output))

	filtered, err := FilterTrainTypes(cleaned, params.Rules)
	if err != nil {
		return nil, err
	}
	summary.Filtered = filtered.Nrow()
	logInfo(logger, fmt.Sprintf("过滤后行数: %d", summary.Filtered))

	routed, err := AddRouteID(filtered, params.RouteColumn)
	if err != nil {
		return nil, err
	}
	summary.Routes = len(ValueCounts(routed.Col(params.RouteColumn)))

	sampled, err := SampleTopRoutes(routed, params.TopNRoutes, params.RouteColumn)
	if err != nil {
		return nil, err
	}
	summary.Sampled = sampled.Nrow()
	logInfo(logger, fmt.Sprintf("线路数: %d, 抽样后行数: %d", summary.Routes, summary.Sampled))

	agg, err := AggregateDaily(sampled, params.RouteColumn)
	if err != nil {
		return nil, err
	}
	summary.Groups = agg.Nrow()
	summary.Finished = time.Now()

	return &Result{Aggregates: agg, Summary: summary}, nil
}

func logInfo(logger *storage.Logger, msg string) {
	if logger != nil {
		logger.Info(msg)
	}
}

func (p *Pipeline) info(msg string) { logInfo(p.Logger, msg) }

func (p *Pipeline) logError(stage string, err error) {
	if p.Logger != nil {
		p.Logger.Errorf("%s: %v", stage, err)
	}
}
