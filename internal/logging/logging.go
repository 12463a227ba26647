package logging

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu      sync.RWMutex
	level   = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	current = newLogger("console")
)

// InitFromEnv sets the log level from LOG_LEVEL (debug|info|warn|error)
// and the encoding from LOG_FORMAT (json|console).
func InitFromEnv() {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "error":
		level.SetLevel(zapcore.ErrorLevel)
	case "warn":
		level.SetLevel(zapcore.WarnLevel)
	case "debug":
		level.SetLevel(zapcore.DebugLevel)
	default:
		level.SetLevel(zapcore.InfoLevel)
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT"))
	mu.Lock()
	current = newLogger(format)
	mu.Unlock()
}

func newLogger(format string) *zap.Logger {
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
	}
	var enc zapcore.Encoder
	if format == "json" {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level)
	return zap.New(core)
}

// L returns the process logger for structured fields.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

func Debugf(format string, args ...interface{}) {
	L().Sugar().Debugf(format, args...)
}

func Infof(format string, args ...interface{}) {
	L().Sugar().Infof(format, args...)
}

func Warnf(format string, args ...interface{}) {
	L().Sugar().Warnf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	L().Sugar().Errorf(format, args...)
}

func Fatalf(format string, args ...interface{}) {
	L().Sugar().Fatalf(format, args...)
}

// Sync flushes buffered entries; call before exit.
func Sync() {
	_ = L().Sync()
}
