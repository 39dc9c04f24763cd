package logs

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
)

// 定义日志级别常量（数值越大，级别越高）
const (
	LevelTrace   = iota // 0（最低，最详细）
	LevelDebug          // 1
	LevelVerbose        // 2
	LevelInfo           // 3
	LevelWarning        // 4
	LevelError          // 5（最高，最严重）
)

var (
	mu       sync.RWMutex
	logLevel = LevelInfo // 全局日志级别
	nodeTag  = "-------"  // 日志前缀里的节点标识（取公钥前 7 位）
)

// 全局 Logger 实例
var logger *Logger

// Logger 结构体
type Logger struct {
	traceLogger   *log.Logger
	debugLogger   *log.Logger
	verboseLogger *log.Logger
	infoLogger    *log.Logger
	warnLogger    *log.Logger
	errorLogger   *log.Logger
}

// 初始化全局 Logger 实例
func init() {
	flags := log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile
	logger = &Logger{
		traceLogger:   log.New(os.Stdout, "[TRACE]   ", flags),
		debugLogger:   log.New(os.Stdout, "[DEBUG]   ", flags),
		verboseLogger: log.New(os.Stdout, "[VERBOSE] ", flags),
		infoLogger:    log.New(os.Stdout, "[INFO]    ", flags),
		warnLogger:    log.New(os.Stdout, "[WARN]    ", flags),
		errorLogger:   log.New(os.Stderr, "[ERROR]   ", flags),
	}
}

// SetLevel 调整全局日志级别
func SetLevel(level int) {
	if level < LevelTrace {
		level = LevelTrace
	}
	if level > LevelError {
		level = LevelError
	}
	mu.Lock()
	logLevel = level
	mu.Unlock()
}

// ParseLevel 把配置里的字符串转换成级别，无法识别时返回 LevelInfo
func ParseLevel(s string) int {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	case "verbose":
		return LevelVerbose
	case "warn", "warning":
		return LevelWarning
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// SetNode 设置日志前缀中的节点标识
func SetNode(id string) {
	if len(id) > 7 {
		id = id[:7]
	}
	mu.Lock()
	nodeTag = id
	mu.Unlock()
}

func enabled(level int) (bool, string) {
	mu.RLock()
	defer mu.RUnlock()
	return logLevel <= level, nodeTag
}

func output(l *log.Logger, level int, format string, v ...interface{}) {
	ok, tag := enabled(level)
	if !ok {
		return
	}
	// calldepth=3: output -> Info/Debug/... -> 调用方
	_ = l.Output(3, tag+" "+fmt.Sprintf(format, v...))
}

// 包级别的日志方法
func Trace(format string, v ...interface{}) {
	output(logger.traceLogger, LevelTrace, format, v...)
}

func Debug(format string, v ...interface{}) {
	output(logger.debugLogger, LevelDebug, format, v...)
}

func Verbose(format string, v ...interface{}) {
	output(logger.verboseLogger, LevelVerbose, format, v...)
}

func Info(format string, v ...interface{}) {
	output(logger.infoLogger, LevelInfo, format, v...)
}

func Warn(format string, v ...interface{}) {
	output(logger.warnLogger, LevelWarning, format, v...)
}

func Error(format string, v ...interface{}) {
	output(logger.errorLogger, LevelError, format, v...)
}

// BadgerLogger 把 badger 内部日志转到本包（badger.Logger 接口）
type BadgerLogger struct{}

func (BadgerLogger) Errorf(format string, v ...interface{}) {
	output(logger.errorLogger, LevelError, "[badger] "+strings.TrimRight(format, "\n"), v...)
}

func (BadgerLogger) Warningf(format string, v ...interface{}) {
	output(logger.warnLogger, LevelWarning, "[badger] "+strings.TrimRight(format, "\n"), v...)
}

func (BadgerLogger) Infof(format string, v ...interface{}) {
	output(logger.verboseLogger, LevelVerbose, "[badger] "+strings.TrimRight(format, "\n"), v...)
}

func (BadgerLogger) Debugf(format string, v ...interface{}) {
	output(logger.traceLogger, LevelTrace, "[badger] "+strings.TrimRight(format, "\n"), v...)
}
