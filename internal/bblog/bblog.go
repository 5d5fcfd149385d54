// Package bblog is the process-wide log bridge: a set-once sink plus an
// atomic log-level cell (spec §9 "Process-wide log bridge"). Components
// log through the package-level logger rather than constructing their
// own, the way the teacher repo's CLI wires a single logger at startup.
package bblog

import (
	"io"
	"log"
	"os"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Level is an ordered verbosity level.
type Level int32

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
	default:
		return "UNKNOWN"
	}
}

var (
	level  atomic.Int32
	logger = log.New(os.Stderr, "bundlebase ", log.LstdFlags|log.Lmicroseconds)
)

func init() {
	level.Store(int32(LevelInfo))
}

// SetLevel installs the atomic level cell. Safe for concurrent use.
func SetLevel(l Level) { level.Store(int32(l)) }

// Enabled reports whether l would currently be logged.
func Enabled(l Level) bool { return int32(l) >= level.Load() }

// SetOutput redirects the sink. Passing a path installs a rotating
// lumberjack.Logger (100MB max size, 3 backups, 28-day retention);
// passing an empty path restores os.Stderr.
func SetOutput(path string) {
	var w io.Writer = os.Stderr
	if path != "" {
		w = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
	}
	logger.SetOutput(w)
}

func log_(l Level, format string, args ...interface{}) {
	if !Enabled(l) {
		return
	}
	logger.Printf("["+l.String()+"] "+format, args...)
}

func Debugf(format string, args ...interface{}) { log_(LevelDebug, format, args...) }
func Infof(format string, args ...interface{})  { log_(LevelInfo, format, args...) }
func Warnf(format string, args ...interface{})  { log_(LevelWarn, format, args...) }
func Errorf(format string, args ...interface{}) { log_(LevelError, format, args...) }
