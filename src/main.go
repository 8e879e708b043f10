package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"sync"
	"syscall"
	"time"

	"RailDelayInsight/src/config"
	"RailDelayInsight/src/datapush"
	"RailDelayInsight/src/datasource/file"
	"RailDelayInsight/src/datasource/stations"
	"RailDelayInsight/src/processor"
	"RailDelayInsight/src/storage"

	"github.com/robfig/cron"
)

// 运行模式
const (
	modeOnce     = "once"
	modeSchedule = "schedule"
	modeWatch    = "watch"
)

var errRunInProgress = errors.New("上一次计算尚未结束")

func main() {
	jsonFolder := flag.String("config", "./config", "配置文件目录")
	mode := flag.String("mode", modeOnce, "运行模式: once|schedule|watch")
	httpAddr := flag.String("http", "", "实时日志地址, 例如 :8080, 为空不启动")
	flag.Parse()

	if err := run(*jsonFolder, *mode, *httpAddr); err != nil {
		log.Fatal(err)
	}
}

func run(jsonFolder, mode, httpAddr string) error {
	cfg, dcfg, err := config.LoadConfig(jsonFolder, "config.json", "dataconfig.json")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// 初始化日志系统
	logger, err := storage.NewLogger(cfg.LogName)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Close()

	level, err := storage.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.SetLevel(level)
	logger.SetMaxBackups(cfg.LogMaxBackups)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go reopenOnHangup(ctx, logger)

	if httpAddr != "" {
		go startWebUI(ctx, httpAddr, logger)
	}

	r, err := newRunner(ctx, cfg, dcfg, logger)
	if err != nil {
		logger.Error(err.Error())
		return err
	}
	defer r.Close()

	switch mode {
	case modeOnce:
		_, err = r.Run(ctx)
	case modeSchedule:
		err = runSchedule(ctx, r, cfg)
	case modeWatch:
		err = runWatch(ctx, r, cfg)
	default:
		err = fmt.Errorf("未知的运行模式 %q", mode)
	}
	if err != nil {
		logger.Error(err.Error())
		return err
	}
	logger.Info("服务已退出")
	return nil
}

// runner 保证同一时间只有一次计算
type runner struct {
	cfg      *config.Config
	pipeline *processor.Pipeline
	store    *storage.AggregateStore
	logger   *storage.Logger
	mu       sync.Mutex
}

func newRunner(ctx context.Context, cfg *config.Config, dcfg *config.DataConfig, logger *storage.Logger) (*runner, error) {
	params, err := processor.NewParams(cfg, dcfg)
	if err != nil {
		return nil, fmt.Errorf("参数错误: %w", err)
	}

	r := &runner{
		cfg:    cfg,
		logger: logger,
		pipeline: &processor.Pipeline{
			Source: file.NewMonthlySource(cfg, dcfg),
			Params: params,
			Logger: logger,
		},
	}

	if cfg.Output.SQLite != "" {
		store, err := storage.OpenAggregateStore(ctx, cfg.Output.SQLite)
		if err != nil {
			return nil, err
		}
		r.store = store
		if last, err := store.LatestRunID(ctx); err == nil {
			logger.Info("上一次运行: " + last)
		}
	}
	return r, nil
}

// Run 执行一次计算并输出结果, 已有计算进行中时直接返回 errRunInProgress
func (r *runner) Run(ctx context.Context) (datapush.Report, error) {
	if !r.mu.TryLock() {
		r.logger.Warning(errRunInProgress.Error())
		return datapush.Report{}, errRunInProgress
	}
	defer r.mu.Unlock()

	t1 := time.Now()
	res, err := r.pipeline.Run()
	if err != nil {
		return datapush.Report{}, err
	}

	publisher := &datapush.Publisher{
		Output:      r.cfg.Output,
		RouteColumn: r.cfg.RouteColumn,
		Months:      r.cfg.Months,
		Catalog:     r.loadCatalog(),
		Store:       r.store,
		Logger:      r.logger,
	}
	report, err := publisher.Publish(ctx, res)
	if err != nil {
		r.logger.Errorf("输出失败: %v", err)
		return report, err
	}

	r.logger.Infof("数据处理时间: %v", time.Since(t1))
	if err := r.logger.CheckRotate(r.cfg.LogMaxSize); err != nil {
		r.logger.Warning("日志轮转失败: " + err.Error())
	}
	return report, nil
}

// loadCatalog 车站目录不可用时只记录警告, 结果不含城市列
func (r *runner) loadCatalog() *stations.Catalog {
	if r.cfg.StationsFile == "" {
		return nil
	}
	catalog, err := stations.LoadCatalog(r.cfg.StationsFile)
	if err != nil {
		r.logger.Warning("车站目录不可用: " + err.Error())
		return nil
	}
	r.logger.Infof("车站目录已加载 %d 个车站", catalog.Len())
	return catalog
}

func (r *runner) Close() error {
	if r.store != nil {
		return r.store.Close()
	}
	return nil
}

// runSchedule 按 cron 表达式定时运行, 表达式为空时按 check_interval 运行
func runSchedule(ctx context.Context, r *runner, cfg *config.Config) error {
	spec := cfg.Schedule.Spec
	if spec == "" {
		interval := time.Duration(cfg.Schedule.CheckInterval)
		if interval <= 0 {
			return fmt.Errorf("schedule 需要 spec 或 check_interval")
		}
		spec = fmt.Sprintf("@every %s", interval)
	}

	c := cron.New()
	err := c.AddFunc(spec, func() {
		r.logger.Infof("开始定时计算(%s)", spec)
		if _, err := r.Run(ctx); err != nil && !errors.Is(err, errRunInProgress) {
			r.logger.Errorf("定时计算失败: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("创建定时任务失败: %w", err)
	}

	c.Start()
	defer c.Stop()

	r.logger.Infof("定时服务已启动(%s), 按Ctrl+C退出", spec)
	<-ctx.Done()
	return nil
}

// runWatch 数据目录中参与计算的月度文件更新后重新计算
func runWatch(ctx context.Context, r *runner, cfg *config.Config) error {
	monitor, err := file.NewFileMonitor(cfg.DataDir, cfg.FileExt, 0)
	if err != nil {
		return err
	}
	defer monitor.Close()

	wanted := make([]string, 0, len(cfg.Months))
	for _, f := range file.NewMonthlySource(cfg, nil).Files() {
		wanted = append(wanted, filepath.Base(f))
	}
	r.logger.Infof("开始监控目录 %s", cfg.DataDir)

	return monitor.Watch(ctx, func(path string) {
		if !slices.Contains(wanted, filepath.Base(path)) {
			r.logger.Debug("忽略文件: " + path)
			return
		}
		r.logger.Info("数据文件已更新: " + path)
		if _, err := r.Run(ctx); err != nil && !errors.Is(err, errRunInProgress) {
			r.logger.Errorf("重新计算失败: %v", err)
		}
	})
}

// reopenOnHangup 收到 SIGHUP 时重新打开日志文件, 配合外部 logrotate 使用
func reopenOnHangup(ctx context.Context, logger *storage.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := logger.Reopen(""); err != nil {
				log.Println("reopen log failed:", err)
				continue
			}
			logger.Info("日志文件已重新打开")
		}
	}
}

// startWebUI 启动一个简单的Web界面来显示实时日志
func startWebUI(ctx context.Context, addr string, logger *storage.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/logs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		logChan := logger.Subscribe()
		defer logger.Unsubscribe(logChan)

		for {
			select {
			case msg, ok := <-logChan:
				if !ok {
					return
				}
				if _, err := fmt.Fprint(w, msg); err != nil {
					return
				}
				if f, ok := w.(http.Flusher); ok {
					f.Flush()
				}
			case <-r.Context().Done():
				return
			}
		}
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("日志服务启动失败: " + err.Error())
	}
}
