package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// LogLevel 日志级别
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARNING
	ERROR
	FATAL
)

var levelNames = map[LogLevel]string{
	DEBUG:   "DEBUG",
	INFO:    "INFO",
	WARNING: "WARNING",
	ERROR:   "ERROR",
	FATAL:   "FATAL",
}

func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseLevel 解析配置中的级别名称, 不区分大小写, 空串视为 INFO
func ParseLevel(name string) (LogLevel, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return INFO, nil
	}
	if name == "WARN" {
		return WARNING, nil
	}
	for level, n := range levelNames {
		if n == name {
			return level, nil
		}
	}
	return INFO, fmt.Errorf("unknown log level %q", name)
}

// 时间格式
const entryTimeLayout = "2006-01-02 15:04:05"

// Entry 一条日志
type Entry struct {
	Time    time.Time
	Level   LogLevel
	Message string
}

// String 格式为 [时间] 级别: 消息, 以换行结尾
func (e Entry) String() string {
	return fmt.Sprintf("[%s] %s: %s\n", e.Time.Format(entryTimeLayout), e.Level, e.Message)
}

// DefaultMaxBackups 轮转后保留的旧日志数量
const DefaultMaxBackups = 5

// Logger 写文件并转发给订阅者的日志记录器
type Logger struct {
	mu          sync.Mutex
	filename    string
	file        *os.File
	level       LogLevel
	maxBackups  int
	subscribers []chan string
}

// NewLogger 以追加方式打开 filename, 目录不存在时创建
func NewLogger(filename string) (*Logger, error) {
	l := &Logger{filename: filename, level: DEBUG, maxBackups: DefaultMaxBackups}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Logger) open() error {
	if dir := filepath.Dir(l.filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
	}
	file, err := os.OpenFile(l.filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		l.file = nil
		return err
	}
	l.file = file
	return nil
}

// SetLevel 低于 level 的日志被丢弃
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

// SetMaxBackups 设置轮转后保留的旧文件数, 小于等于0表示不清理
func (l *Logger) SetMaxBackups(n int) {
	l.mu.Lock()
	l.maxBackups = n
	l.mu.Unlock()
}

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Reopen 关闭当前文件后重新打开, filename 为空时沿用原路径
// 外部工具移动日志文件后发送 SIGHUP 时使用
func (l *Logger) Reopen(filename string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		_ = l.file.Close()
	}
	if filename != "" {
		l.filename = filename
	}
	return l.open()
}

// Log 写入一条日志
func (l *Logger) Log(level LogLevel, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	entry := Entry{Time: time.Now(), Level: level, Message: message}.String()
	if l.file != nil {
		_, _ = l.file.WriteString(entry)
	}

	// 订阅者通道已满时丢弃, 不阻塞写日志
	for _, ch := range l.subscribers {
		select {
		case ch <- entry:
		default:
		}
	}
}

// Subscribe 返回接收后续日志的通道, 缓冲100条
func (l *Logger) Subscribe() <-chan string {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch := make(chan string, 100)
	l.subscribers = append(l.subscribers, ch)
	return ch
}

// Unsubscribe 取消订阅并关闭通道
func (l *Logger) Unsubscribe(ch <-chan string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, sub := range l.subscribers {
		if sub == ch {
			close(sub)
			l.subscribers = append(l.subscribers[:i], l.subscribers[i+1:]...)
			return
		}
	}
}

// CheckRotate 文件超过 maxSize 字节时轮转
// maxSize 可以写成 "10 * 1024 * 1024", 无法解析或为0时不轮转
func (l *Logger) CheckRotate(maxSize string) error {
	limit := eval(maxSize)
	if limit <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	info, err := l.file.Stat()
	if err != nil {
		return err
	}
	if info.Size() <= limit {
		return nil
	}
	return l.rotate()
}

// rotate 把当前文件改名为 <name>.<时间戳><ext> 并新建文件, 调用方持有锁
func (l *Logger) rotate() error {
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}

	ext := filepath.Ext(l.filename)
	base := strings.TrimSuffix(l.filename, ext)
	rotated := fmt.Sprintf("%s.%s%s", base, time.Now().Format("20060102150405.000"), ext)
	if err := os.Rename(l.filename, rotated); err != nil {
		// 改名失败时继续写原文件
		_ = l.open()
		return fmt.Errorf("rotate log: %w", err)
	}
	if err := l.open(); err != nil {
		return err
	}
	return l.pruneBackups(base, ext)
}

// pruneBackups 只保留最新的 maxBackups 个旧文件
func (l *Logger) pruneBackups(base, ext string) error {
	if l.maxBackups <= 0 {
		return nil
	}
	matches, err := filepath.Glob(base + ".*" + ext)
	if err != nil {
		return err
	}
	backups := matches[:0]
	for _, m := range matches {
		if m != l.filename {
			backups = append(backups, m)
		}
	}
	if len(backups) <= l.maxBackups {
		return nil
	}

	// 时间戳定长, 按文件名排序即按时间排序
	sort.Strings(backups)
	for _, old := range backups[:len(backups)-l.maxBackups] {
		if err := os.Remove(old); err != nil {
			return err
		}
	}
	return nil
}

// eval 计算只含乘法的整数表达式
func eval(expr string) int64 {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return 0
	}
	var result int64 = 1
	for _, part := range strings.Split(expr, "*") {
		num, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return 0
		}
		result *= num
	}
	return result
}

func (l *Logger) Debug(msg string)   { l.Log(DEBUG, msg) }
func (l *Logger) Info(msg string)    { l.Log(INFO, msg) }
func (l *Logger) Warning(msg string) { l.Log(WARNING, msg) }
func (l *Logger) Error(msg string)   { l.Log(ERROR, msg) }
func (l *Logger) Fatal(msg string)   { l.Log(FATAL, msg) }

func (l *Logger) Infof(format string, args ...any)  { l.Log(INFO, fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...any) { l.Log(ERROR, fmt.Sprintf(format, args...)) }
