package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu     sync.RWMutex
	level  = new(slog.LevelVar)
	logger = newLogger(os.Stderr)
)

func newLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// SetOutput redirects all log output to w.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = newLogger(w)
}

// SetLevel sets the minimum level that is written. Accepted names are
// debug, info, warn and error; anything else selects info.
func SetLevel(name string) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn", "warning":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
}

// mylog formats the message and hands it to the slog handler at lvl.
// Arguments are handled in the manner of [fmt.Printf].
func mylog(lvl slog.Level, format string, args ...interface{}) {
	mu.RLock()
	l := logger
	mu.RUnlock()
	l.Log(context.Background(), lvl, fmt.Sprintf(format, args...))
}

// Fatal logs at error level and exits the process.
// Arguments are handled in the manner of [fmt.Printf].
func Fatal(format string, args ...interface{}) {
	mylog(slog.LevelError, format, args...)
	os.Exit(1)
}

// Error logs at error level.
// Arguments are handled in the manner of [fmt.Printf].
func Error(format string, args ...interface{}) {
	mylog(slog.LevelError, format, args...)
}

// Warn logs at warn level.
// Arguments are handled in the manner of [fmt.Printf].
func Warn(format string, args ...interface{}) {
	mylog(slog.LevelWarn, format, args...)
}

// Info logs at info level.
// Arguments are handled in the manner of [fmt.Printf].
func Info(format string, args ...interface{}) {
	mylog(slog.LevelInfo, format, args...)
}

// Debug logs at debug level.
// Arguments are handled in the manner of [fmt.Printf].
func Debug(format string, args ...interface{}) {
	mylog(slog.LevelDebug, format, args...)
}

// Exception logs err at error level. A nil error is ignored.
func Exception(err error) {
	if err == nil {
		return
	}
	mylog(slog.LevelError, "%v", err)
}
