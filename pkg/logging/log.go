package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level is the minimum severity written by the logger.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// ParseLevel maps a config string to a Level. Unknown values mean info.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	}
	return LevelInfo
}

var (
	logFile  *os.File
	out      io.Writer = os.Stderr
	minLevel           = LevelInfo
	logMutex sync.Mutex
)

// Init sends log lines to stderr and to a dated file under dir
// (dir/chreport_YYYYMMDD.log). An empty dir keeps stderr only.
func Init(dir string, level Level) error {
	logMutex.Lock()
	defer logMutex.Unlock()

	minLevel = level
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("chreport_%s.log", time.Now().Format("20060102")))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	if logFile != nil {
		_ = logFile.Close()
	}
	logFile = f
	out = io.MultiWriter(os.Stderr, f)
	return nil
}

// SetOutput replaces the destination, mostly for tests.
func SetOutput(w io.Writer, level Level) {
	logMutex.Lock()
	defer logMutex.Unlock()
	out = w
	minLevel = level
}

// Close flushes and closes the log file if one was opened.
func Close() {
	logMutex.Lock()
	defer logMutex.Unlock()
	if logFile != nil {
		_ = logFile.Sync()
		_ = logFile.Close()
		logFile = nil
	}
	out = os.Stderr
}

func log(level Level, msg string) {
	logMutex.Lock()
	defer logMutex.Unlock()
	if level < minLevel {
		return
	}
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(out, "%s [%s] %s\n", timestamp, level, msg)
	if logFile != nil {
		logFile.Sync()
	}
}

func LogDebug(format string, args ...interface{}) {
	log(LevelDebug, fmt.Sprintf(format, args...))
}

func LogInfo(format string, args ...interface{}) {
	log(LevelInfo, fmt.Sprintf(format, args...))
}

func LogWarn(format string, args ...interface{}) {
	log(LevelWarn, fmt.Sprintf(format, args...))
}

func LogError(format string, args ...interface{}) {
	log(LevelError, fmt.Sprintf(format, args...))
}
