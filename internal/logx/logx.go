// Package logx provides structured logging functionality
package logx

import (
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger to provide a consistent interface
type Logger struct {
	zap   *zap.Logger
	sugar *zap.SugaredLogger
	scope string
}

var (
	mu           sync.RWMutex
	globalLogger *Logger
	level        = zap.NewAtomicLevelAt(zap.InfoLevel)
)

func init() {
	if IsLocalDev(os.Getenv("APP_ENV")) {
		level.SetLevel(zap.DebugLevel)
	}
	globalLogger = build("text")
}

// IsLocalDev checks if the environment is local development
func IsLocalDev(appEnv string) bool {
	return appEnv == "local" || appEnv == "dev" || appEnv == "development"
}

func timeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006-01-02 15:04:05.000"))
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
		EncodeTime:     timeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

func build(format string) *Logger {
	config := zap.NewProductionConfig()
	config.Level = level
	config.Sampling = nil
	config.EncoderConfig = encoderConfig()

	if strings.ToLower(format) == "json" {
		config.Encoding = "json"
		config.EncoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	} else {
		config.Encoding = "console"
	}

	zapLogger, err := config.Build()
	if err != nil {
		panic(err)
	}
	return &Logger{zap: zapLogger, sugar: zapLogger.Sugar()}
}

// Init reconfigures the global logger. Scoped loggers obtained earlier keep
// following the shared level but keep their original encoder.
func Init(lvl, format string) {
	level.SetLevel(parseLevel(lvl))
	l := build(format)
	mu.Lock()
	globalLogger = l
	mu.Unlock()
}

// L returns the global sugar logger instance that supports key-value logging
func L() *zap.SugaredLogger {
	return Global().sugar
}

// Global returns the global logger instance
func Global() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return globalLogger
}

// GetScope returns a named child of the global logger.
func GetScope(name string) *Logger {
	base := Global()
	z := base.zap.Named(name)
	return &Logger{zap: z, sugar: z.Sugar(), scope: name}
}

// Nop returns a logger that discards everything. Handy in tests.
func Nop() *Logger {
	z := zap.NewNop()
	return &Logger{zap: z, sugar: z.Sugar()}
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Scope reports the name the logger was created with.
func (l *Logger) Scope() string { return l.scope }

// Sync flushes any buffered log entries
func (l *Logger) Sync() error {
	if l.zap == nil {
		return nil
	}
	return l.zap.Sync()
}

// Sugar returns the sugar logger for key-value style logging
func (l *Logger) Sugar() *zap.SugaredLogger { return l.sugar }

// Zap returns the underlying zap logger
func (l *Logger) Zap() *zap.Logger { return l.zap }

// With returns a child logger carrying the given fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	z := l.zap.With(fields...)
	return &Logger{zap: z, sugar: z.Sugar(), scope: l.scope}
}

// Debug logs a debug message with structured fields
func (l *Logger) Debug(msg string, fields ...zap.Field) { l.zap.Debug(msg, fields...) }

// Info logs an info message with structured fields
func (l *Logger) Info(msg string, fields ...zap.Field) { l.zap.Info(msg, fields...) }

// Warn logs a warning message with structured fields
func (l *Logger) Warn(msg string, fields ...zap.Field) { l.zap.Warn(msg, fields...) }

// Error logs an error message with structured fields
func (l *Logger) Error(msg string, fields ...zap.Field) { l.zap.Error(msg, fields...) }
