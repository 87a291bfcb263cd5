package log

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var (
	mu      sync.RWMutex
	logger  *zap.SugaredLogger
	once    sync.Once
	atomLvl = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// initLogger builds the default JSON logger on stderr the first time any
// logging function is called.
func initLogger() {
	once.Do(func() {
		l, err := build("json")
		if err != nil {
			// zap only fails here on a broken encoder config; fall back to a
			// development logger so that nothing is silently dropped.
			l = zap.NewExample()
		}
		mu.Lock()
		logger = l.Sugar()
		mu.Unlock()
	})
}

func build(format string) (*zap.Logger, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	config := zap.NewProductionConfig()
	config.Level = atomLvl
	config.EncoderConfig = encoderConfig
	config.DisableStacktrace = true
	config.Sampling = nil
	switch format {
	case "console":
		config.Encoding = "console"
		config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	default:
		config.Encoding = "json"
	}
	return config.Build(zap.AddCallerSkip(1))
}

// Configure replaces the global logger. format is "json" (default) or
// "console"; level is one of debug, info, warn, error.
func Configure(level, format string) error {
	initLogger()
	if level != "" {
		if err := SetLevelString(level); err != nil {
			return err
		}
	}
	l, err := build(strings.ToLower(format))
	if err != nil {
		return err
	}
	mu.Lock()
	old := logger
	logger = l.Sugar()
	mu.Unlock()
	if old != nil {
		_ = old.Sync()
	}
	return nil
}

func SetLevel(l Level) {
	initLogger()
	switch l {
	case LevelDebug:
		atomLvl.SetLevel(zapcore.DebugLevel)
	case LevelWarn:
		atomLvl.SetLevel(zapcore.WarnLevel)
	case LevelError:
		atomLvl.SetLevel(zapcore.ErrorLevel)
	default:
		atomLvl.SetLevel(zapcore.InfoLevel)
	}
}

// SetLevelString parses a case-insensitive level name.
func SetLevelString(s string) error {
	switch Level(strings.ToUpper(strings.TrimSpace(s))) {
	case LevelDebug:
		SetLevel(LevelDebug)
	case LevelInfo, "":
		SetLevel(LevelInfo)
	case LevelWarn, "WARNING":
		SetLevel(LevelWarn)
	case LevelError:
		SetLevel(LevelError)
	default:
		return fmt.Errorf("log: unknown level %q", s)
	}
	return nil
}

// Sync flushes buffered entries; call it before exiting.
func Sync() {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		_ = l.Sync()
	}
}

func Debug(msg string, kv ...any) {
	current().Debugw(msg, kv...)
}

func Info(msg string, kv ...any) {
	current().Infow(msg, kv...)
}

func Warn(msg string, kv ...any) {
	current().Warnw(msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	// Prepend error into key-value list.
	extended := append([]any{"err", err}, kv...)
	current().Errorw(msg, extended...)
}

func current() *zap.SugaredLogger {
	initLogger()
	mu.RLock()
	defer mu.RUnlock()
	return logger
}
