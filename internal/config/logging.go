package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel is a logging verbosity. Higher values log more.
type LogLevel int

// Log levels.
const (
	LogLevelOff LogLevel = iota
	LogLevelError
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

//nolint:gochecknoglobals // static level tables
var (
	levelNames = map[LogLevel]string{
		LogLevelOff:   "off",
		LogLevelError: "error",
		LogLevelWarn:  "warn",
		LogLevelInfo:  "info",
		LogLevelDebug: "debug",
	}
	levelAliases = map[string]LogLevel{
		"off": LogLevelOff, "none": LogLevelOff,
		"error": LogLevelError,
		"warn":  LogLevelWarn, "warning": LogLevelWarn,
		"info":  LogLevelInfo,
		"debug": LogLevelDebug,
	}
	zapLevels = map[LogLevel]zapcore.Level{
		LogLevelError: zapcore.ErrorLevel,
		LogLevelWarn:  zapcore.WarnLevel,
		LogLevelInfo:  zapcore.InfoLevel,
		LogLevelDebug: zapcore.DebugLevel,
	}
)

// ParseLogLevel parses a level name. Unknown names mean error.
func ParseLogLevel(s string) LogLevel {
	if l, ok := levelAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return l
	}
	return LogLevelError
}

// ValidLogLevel reports whether s names a known level.
func ValidLogLevel(s string) bool {
	_, ok := levelAliases[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "error"
}

// logSink is the output shared by a logger and its named children.
type logSink struct {
	mu     sync.Mutex
	file   *os.File
	closed bool
}

// Logger writes JSON lines through zap. Named children share the parent's
// output and level.
type Logger struct {
	level LogLevel
	sugar *zap.SugaredLogger
	sink  *logSink
}

// NewLogger opens filePath for appending. With LogLevelOff or an empty path
// the logger discards everything.
func NewLogger(level LogLevel, filePath string) (*Logger, error) {
	if level == LogLevelOff || filePath == "" {
		return &Logger{level: level, sink: &logSink{}}, nil
	}

	filePath = expandHome(filePath)
	if err := os.MkdirAll(filepath.Dir(filePath), 0o750); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // G304: path from config
	if err != nil {
		return nil, err
	}

	l := NewWriterLogger(level, f)
	l.sink.file = f
	return l, nil
}

// NewWriterLogger writes JSON lines to w.
func NewWriterLogger(level LogLevel, w io.Writer) *Logger {
	l := &Logger{level: level, sink: &logSink{}}
	if level == LogLevelOff || w == nil {
		return l
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(w), zapLevels[level])
	l.sugar = zap.New(core, zap.ErrorOutput(zapcore.AddSync(io.Discard))).Sugar()
	return l
}

// NullLogger discards everything.
func NullLogger() *Logger {
	return &Logger{level: LogLevelOff, sink: &logSink{}}
}

// Named returns a child whose lines carry "logger":component.
func (l *Logger) Named(component string) *Logger {
	c := *l
	if l.sugar != nil {
		c.sugar = l.sugar.Named(component)
	}
	return &c
}

// Level returns the configured level.
func (l *Logger) Level() LogLevel {
	return l.level
}

// Close flushes and closes the log file. Later log calls are dropped.
func (l *Logger) Close() error {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	if l.sink.closed {
		return nil
	}
	l.sink.closed = true
	if l.sugar != nil {
		_ = l.sugar.Sync()
	}
	if l.sink.file != nil {
		return l.sink.file.Close()
	}
	return nil
}

// Debug logs at debug level.
func (l *Logger) Debug(format string, args ...any) { l.log(LogLevelDebug, format, args...) }

// Info logs at info level.
func (l *Logger) Info(format string, args ...any) { l.log(LogLevelInfo, format, args...) }

// Warn logs at warn level.
func (l *Logger) Warn(format string, args ...any) { l.log(LogLevelWarn, format, args...) }

// Error logs at error level.
func (l *Logger) Error(format string, args ...any) { l.log(LogLevelError, format, args...) }

func (l *Logger) log(level LogLevel, format string, args ...any) {
	if l.sugar == nil || level > l.level {
		return
	}

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	if l.sink.closed {
		return
	}

	msg := fmt.Sprintf(format, args...)
	switch level {
	case LogLevelDebug:
		l.sugar.Debug(msg)
	case LogLevelInfo:
		l.sugar.Info(msg)
	case LogLevelWarn:
		l.sugar.Warn(msg)
	default:
		l.sugar.Error(msg)
	}
}
