package logger

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// maxLines caps the size of the on-disk log. Once crossed, the file is
// trimmed back down to the newest maxLines lines.
const maxLines = 5000

// Level is the logging severity.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config string to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToUpper(s) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger writes timestamped, level-gated lines to a file and keeps the
// file from growing without bound.
type Logger struct {
	mu    sync.Mutex
	file  *os.File
	lines int
	level Level
}

var (
	global *Logger

	// used before Init, so early failures still land somewhere visible
	fallback = &Logger{file: os.Stderr, level: LevelInfo}
)

// Init opens the global logger on the given file. Existing content is
// counted so rotation limits hold across restarts.
func Init(file *os.File, level Level) *Logger {
	l := &Logger{file: file, level: level}
	l.countExisting()
	global = l
	return l
}

// SetLevel changes the severity threshold.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// SetGlobalLevel changes the threshold on the global logger, if any.
func SetGlobalLevel(level Level) {
	if global != nil {
		global.SetLevel(level)
	}
}

func (l *Logger) enabled(level Level) bool {
	return level >= l.level
}

func (l *Logger) log(level Level, format string, v ...any) {
	if !l.enabled(level) {
		return
	}
	msg := fmt.Sprintf("%s [%s] %s\n",
		time.Now().Format("2006/01/02 15:04:05"), level, fmt.Sprintf(format, v...))
	l.Write([]byte(msg))
}

func (l *Logger) Debug(format string, v ...any) { l.log(LevelDebug, format, v...) }
func (l *Logger) Info(format string, v ...any)  { l.log(LevelInfo, format, v...) }
func (l *Logger) Warn(format string, v ...any)  { l.log(LevelWarn, format, v...) }
func (l *Logger) Error(format string, v ...any) { l.log(LevelError, format, v...) }

// Fatal logs at error level and exits.
func (l *Logger) Fatal(format string, v ...any) {
	l.log(LevelError, format, v...)
	os.Exit(1)
}

func active() *Logger {
	if global != nil {
		return global
	}
	return fallback
}

func Debug(format string, v ...any) { active().Debug(format, v...) }
func Info(format string, v ...any)  { active().Info(format, v...) }
func Warn(format string, v ...any)  { active().Warn(format, v...) }
func Error(format string, v ...any) { active().Error(format, v...) }
func Fatal(format string, v ...any) { active().Fatal(format, v...) }

var noop = func() {}

// Trace times an operation. Usage: defer logger.Trace("operation")().
// Returns a no-op closure when trace level is disabled.
func Trace(name string) func() {
	l := active()
	if !l.enabled(LevelTrace) {
		return noop
	}
	start := time.Now()
	return func() {
		l.log(LevelTrace, "%s: %v", name, time.Since(start))
	}
}

// Write implements io.Writer so the logger can back other log sinks.
func (l *Logger) Write(p []byte) (n int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, err = l.file.Write(p)
	if err != nil {
		return n, err
	}

	l.lines += strings.Count(string(p), "\n")
	if l.lines > maxLines {
		l.rotate()
	}
	return n, err
}

func (l *Logger) countExisting() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.file.Seek(0, 0)
	scanner := bufio.NewScanner(l.file)
	count := 0
	for scanner.Scan() {
		count++
	}
	l.lines = count
	l.file.Seek(0, 2)
}

// rotate trims the file in place, keeping the newest maxLines lines.
// Caller holds the mutex.
func (l *Logger) rotate() {
	l.file.Seek(0, 0)
	scanner := bufio.NewScanner(l.file)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}

	l.file.Truncate(0)
	l.file.Seek(0, 0)
	for _, line := range lines {
		l.file.WriteString(line + "\n")
	}
	l.lines = len(lines)
}

// Close closes the underlying file.
func (l *Logger) Close() error {
	return l.file.Close()
}
