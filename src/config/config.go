package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config 结构体定义了应用程序的运行配置
type Config struct {
	DataDir            string   `json:"data_dir"`             // 月度数据文件所在目录
	Months             []string `json:"months"`               // 参与计算的三个月份, 形如 2025-10
	FileExt            string   `json:"file_ext"`             // .parquet 或 .xlsx
	SheetName          string   `json:"sheet_name"`           // xlsx 数据所在工作表
	TrainTypeThreshold int      `json:"train_type_threshold"` // 车型最少记录数
	TopNRoutes         int      `json:"top_n_routes"`         // 保留的热门线路数
	RouteColumn        string   `json:"route_column"`         // 线路标识列名
	StationsFile       string   `json:"stations_file"`        // 车站目录csv, 为空则不补充城市

	LogName       string `json:"log_name"`
	LogMaxSize    string `json:"log_max_size"`
	LogLevel      string `json:"log_level"`       // DEBUG/INFO/WARNING/ERROR
	LogMaxBackups int    `json:"log_max_backups"` // 轮转后保留的旧日志数, 0 表示不清理

	Output   OutputConfig   `json:"output"`
	Schedule ScheduleConfig `json:"schedule"`
}

// OutputConfig 聚合结果的导出位置
type OutputConfig struct {
	Dir    string `json:"dir"`    // 导出目录
	CSV    bool   `json:"csv"`    // 是否导出csv
	XLSX   bool   `json:"xlsx"`   // 是否导出xlsx
	SQLite string `json:"sqlite"` // sqlite数据库路径, 为空不写库
}

// ScheduleConfig 定时运行
type ScheduleConfig struct {
	Spec          string   `json:"spec"`           // cron表达式, 含秒
	CheckInterval Duration `json:"check_interval"` // spec为空时按间隔执行
}

// DataConfig 定义数据清洗与过滤规则
type DataConfig struct {
	Columns         []string `json:"columns"`          // 需要读取的列
	ExcludedTypes   []string `json:"excluded_types"`   // 直接排除的车型
	SuburbanPattern string   `json:"suburban_pattern"` // 城郊线车次正则
	TimeFormats     []string `json:"time_formats"`     // time列可接受的格式
}

// 默认值
const (
	DefaultDataDir            = "data"
	DefaultFileExt            = ".parquet"
	DefaultTrainTypeThreshold = 1000
	DefaultTopNRoutes         = 150
	DefaultRouteColumn        = "route_id"
	DefaultSuburbanPattern    = `\bS[0-9]+\b`
	DefaultLogName            = "app.log"
	DefaultLogMaxSize         = "10 * 1024 * 1024"
	DefaultLogLevel           = "INFO"
	DefaultLogMaxBackups      = 5
)

var (
	DefaultMonths        = []string{"2025-10", "2025-11", "2025-12"}
	DefaultColumns       = []string{"station_name", "xml_station_name", "final_destination_station", "train_name", "delay_in_min", "time", "is_canceled", "train_type"}
	DefaultExcludedTypes = []string{"S", "Bus"}
	DefaultTimeFormats   = []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04",
		"2006-01-02",
	}
)

var (
	once               sync.Once
	instance           *Config
	dataConfigInstance *DataConfig
	mu                 sync.RWMutex
)

// LoadConfig 只加载一次配置文件, 之后返回同一份实例
func LoadConfig(jsonFolder, jsonFile, dataJsonFile string) (*Config, *DataConfig, error) {
	var err error
	once.Do(func() {
		instance, dataConfigInstance, err = loadConfigs(jsonFolder, jsonFile, dataJsonFile)
	})
	return instance, dataConfigInstance, err
}

// Default 返回全部使用默认值的配置
func Default() (*Config, *DataConfig) {
	return defaultConfig(), defaultDataConfig()
}

// 数值项为0也是合法取值, 只能在解析前预置默认值
func defaultConfig() *Config {
	cfg := &Config{
		TrainTypeThreshold: DefaultTrainTypeThreshold,
		TopNRoutes:         DefaultTopNRoutes,
		LogMaxBackups:      DefaultLogMaxBackups,
	}
	cfg.applyDefaults()
	return cfg
}

func defaultDataConfig() *DataConfig {
	dcfg := &DataConfig{}
	dcfg.applyDefaults()
	return dcfg
}

func loadConfigs(jsonFolder, jsonFile, dataJsonFile string) (*Config, *DataConfig, error) {
	// 两个文件并发读取解析
	cfgCh := decodeAsync(filepath.Join(jsonFolder, jsonFile), "配置文件", defaultConfig, (*Config).applyDefaults)
	dcfgCh := decodeAsync(filepath.Join(jsonFolder, dataJsonFile), "数据配置文件", defaultDataConfig, (*DataConfig).applyDefaults)
	c, d := <-cfgCh, <-dcfgCh

	if err := combineErrors(c.err, d.err); err != nil {
		return nil, nil, err
	}

	cfg, dcfg := c.value, d.value
	if err := cfg.ApplyEnv(filepath.Join(jsonFolder, ".env")); err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, dcfg, nil
}

type decoded[T any] struct {
	value *T
	err   error
}

// decodeAsync 在后台把 path 解析到 newT 返回的默认值上, 文件中未出现的键保持默认
// 成功后再由 defaults 补齐被显式写成空值的字段
func decodeAsync[T any](path, label string, newT func() *T, defaults func(*T)) <-chan decoded[T] {
	ch := make(chan decoded[T], 1)
	go func() {
		data, err := os.ReadFile(path)
		if err != nil {
			ch <- decoded[T]{err: fmt.Errorf("读取%s失败: %w", label, err)}
			return
		}
		v := newT()
		if err := json.Unmarshal(data, v); err != nil {
			ch <- decoded[T]{err: fmt.Errorf("解析%s失败 %s: %w", label, path, err)}
			return
		}
		defaults(v)
		ch <- decoded[T]{value: v}
	}()
	return ch
}

// combineErrors 忽略 nil, 多个错误时合并
func combineErrors(errs ...error) error {
	var nonNil []error
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		return fmt.Errorf("配置加载遇到多个错误: %w", errors.Join(nonNil...))
	}
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if len(c.Months) == 0 {
		c.Months = append([]string(nil), DefaultMonths...)
	}
	if c.FileExt == "" {
		c.FileExt = DefaultFileExt
	}
	if !strings.HasPrefix(c.FileExt, ".") {
		c.FileExt = "." + c.FileExt
	}
	if c.RouteColumn == "" {
		c.RouteColumn = DefaultRouteColumn
	}
	if c.LogName == "" {
		c.LogName = DefaultLogName
	}
	if c.LogMaxSize == "" {
		c.LogMaxSize = DefaultLogMaxSize
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "output"
	}
}

func (dc *DataConfig) applyDefaults() {
	if len(dc.Columns) == 0 {
		dc.Columns = append([]string(nil), DefaultColumns...)
	}
	if dc.ExcludedTypes == nil {
		dc.ExcludedTypes = append([]string(nil), DefaultExcludedTypes...)
	}
	if dc.SuburbanPattern == "" {
		dc.SuburbanPattern = DefaultSuburbanPattern
	}
	if len(dc.TimeFormats) == 0 {
		dc.TimeFormats = append([]string(nil), DefaultTimeFormats...)
	}
}

// ApplyEnv 用 .env 文件及环境变量覆盖部分配置
// .env 文件不存在时只读取当前环境变量
func (c *Config) ApplyEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("加载env文件失败 %s: %w", envFile, err)
		}
	}

	c.DataDir = getEnv("DATA_DIR", c.DataDir)
	c.Output.SQLite = getEnv("SQLITE_DATABASE", c.Output.SQLite)
	c.TopNRoutes = getEnvInt("TOP_N_ROUTES", c.TopNRoutes)
	c.TrainTypeThreshold = getEnvInt("TRAIN_TYPE_THRESHOLD", c.TrainTypeThreshold)
	return nil
}

// Validate 校验配置是否可用于一次完整运行
func (c *Config) Validate() error {
	if len(c.Months) != 3 {
		return fmt.Errorf("months 需要正好三个月份, 当前为 %d 个", len(c.Months))
	}
	for _, m := range c.Months {
		if _, err := time.Parse("2006-01", m); err != nil {
			return fmt.Errorf("月份格式错误 %q: %w", m, err)
		}
	}
	if c.TopNRoutes <= 0 {
		return fmt.Errorf("top_n_routes 必须大于0")
	}
	if c.TrainTypeThreshold < 0 {
		return fmt.Errorf("train_type_threshold 不能为负数")
	}
	if c.LogMaxBackups < 0 {
		return fmt.Errorf("log_max_backups 不能为负数")
	}
	switch c.FileExt {
	case ".parquet", ".xlsx":
	default:
		return fmt.Errorf("不支持的文件类型 %s", c.FileExt)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// Duration 在 JSON 中写作 "24h" 或秒数
type Duration time.Duration

func (d *Duration) UnmarshalJSON(data []byte) error {
	if secs, err := strconv.ParseFloat(string(data), 64); err == nil {
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// 以下访问器在运行期间可能被并发调用

func (dc *DataConfig) GetExcludedTypes() []string {
	mu.RLock()
	defer mu.RUnlock()
	return append([]string(nil), dc.ExcludedTypes...)
}

func (dc *DataConfig) GetColumns() []string {
	mu.RLock()
	defer mu.RUnlock()
	return append([]string(nil), dc.Columns...)
}
