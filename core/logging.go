package core

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type loggerKey struct{}

var (
	mu     sync.RWMutex
	logger = zap.NewNop().Sugar()
)

// InitLogger configures the process logger. format is "json" or "console".
func InitLogger(level, format string) error {
	var cfg zap.Config
	if strings.EqualFold(format, "json") {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	l, err := cfg.Build()
	if err != nil {
		return err
	}
	SetLogger(l.Sugar())
	return nil
}

func SetLogger(l *zap.SugaredLogger) {
	mu.Lock()
	logger = l
	mu.Unlock()
}

func base() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// WithDefaultLogger attaches a logger tagged with reqId to the context.
func WithDefaultLogger(parent context.Context, reqId string) context.Context {
	return context.WithValue(parent, loggerKey{}, base().With("req_id", reqId))
}

// Logger returns the context logger or the process logger.
func Logger(ctx context.Context) *zap.SugaredLogger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*zap.SugaredLogger); ok {
			return l
		}
	}
	return base()
}

func Infof(ctx context.Context, tpl string, args ...any) {
	Logger(ctx).Infof(tpl, args...)
}

func Warnf(ctx context.Context, tpl string, args ...any) {
	Logger(ctx).Warnf(tpl, args...)
}

func Errorf(ctx context.Context, tpl string, args ...any) {
	Logger(ctx).Errorf(tpl, args...)
}

func Debugf(ctx context.Context, tpl string, args ...any) {
	Logger(ctx).Debugf(tpl, args...)
}

func Sync() {
	_ = base().Sync()
}
