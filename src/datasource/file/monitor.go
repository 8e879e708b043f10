// monitor.go
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

var monthlyFilePattern = regexp.MustCompile(`^data-\d{4}-\d{2}\.(parquet|xlsx)$`)

// IsMonthlyFile 判断文件名是否为 data-YYYY-MM.<ext>, ext 为空时接受 parquet 与 xlsx
func IsMonthlyFile(name, ext string) bool {
	base := filepath.Base(name)
	if !monthlyFilePattern.MatchString(base) {
		return false
	}
	return ext == "" || strings.EqualFold(filepath.Ext(base), ext)
}

// FileMonitor 监控数据目录中月度文件的变化
type FileMonitor struct {
	watchDir string
	ext      string
	settle   time.Duration // 文件最后一次写入后等待的时间
	watcher  *fsnotify.Watcher
	lastMod  map[string]time.Time
	timers   map[string]*time.Timer
	mu       sync.Mutex
}

// NewFileMonitor 监控 dir, settle 为 0 时使用 2 秒
func NewFileMonitor(dir, ext string, settle time.Duration) (*FileMonitor, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	if settle <= 0 {
		settle = 2 * time.Second
	}
	return &FileMonitor{
		watchDir: dir,
		ext:      ext,
		settle:   settle,
		watcher:  watcher,
		lastMod:  make(map[string]time.Time),
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Watch 阻塞直到 ctx 结束或监控出错
// 同一文件连续写入只在稳定 settle 之后回调一次
func (m *FileMonitor) Watch(ctx context.Context, handler func(string)) error {
	defer m.stopTimers()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-m.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !IsMonthlyFile(event.Name, m.ext) {
				continue
			}
			m.schedule(event.Name, handler)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}

func (m *FileMonitor) schedule(name string, handler func(string)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.timers[name]; ok {
		t.Reset(m.settle)
		return
	}
	m.timers[name] = time.AfterFunc(m.settle, func() {
		m.fire(name, handler)
	})
}

func (m *FileMonitor) fire(name string, handler func(string)) {
	info, err := os.Stat(name)

	m.mu.Lock()
	delete(m.timers, name)
	if err != nil || !info.ModTime().After(m.lastMod[name]) {
		m.mu.Unlock()
		return
	}
	m.lastMod[name] = info.ModTime()
	m.mu.Unlock()

	handler(name)
}

func (m *FileMonitor) stopTimers() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, t := range m.timers {
		t.Stop()
		delete(m.timers, name)
	}
}

// Close 停止监控
func (m *FileMonitor) Close() error {
	return m.watcher.Close()
}
