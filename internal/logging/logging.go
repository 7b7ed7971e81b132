package logging

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

var logger = zap.NewNop()

func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger = l
}

type loggingCtxKey int

const (
	logKey = loggingCtxKey(iota)
)

func FromContextS(ctx context.Context) *zap.SugaredLogger {
	return FromContext(ctx).Sugar()
}

func FromContext(ctx context.Context) *zap.Logger {
	v := ctx.Value(logKey)
	if v == nil {
		return logger
	}
	if vlog, ok := v.(*zap.Logger); ok {
		return vlog
	} else {
		return logger
	}
}

func NewContextS(ctx context.Context, fields ...interface{}) (nctx context.Context) {
	nctx, _ = NewContextSL(ctx, fields...)
	return
}

func NewContextSL(ctx context.Context, fields ...interface{}) (nctx context.Context, slog *zap.SugaredLogger) {
	slog = FromContextS(ctx).With(fields...)
	nctx = context.WithValue(ctx, logKey, slog.Desugar())
	return
}

const (
	ModeProduction = "prod"
	ModeDebug      = "debug"
)

// Build creates the root logger for mode. Empty mode is treated as debug.
// logFilePath, when set, is added as an extra output next to stderr.
func Build(mode, logFilePath string) (l *zap.Logger, debug bool, err error) {
	var cfg zap.Config
	switch mode {
	case ModeProduction:
		cfg = zap.NewProductionConfig()
	case ModeDebug, "":
		debug = true
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, false, fmt.Errorf("unknown mode %q: only %q, %q or empty are allowed", mode, ModeProduction, ModeDebug)
	}
	if logFilePath != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, logFilePath)
	}
	l, err = cfg.Build()
	if err != nil {
		return nil, false, fmt.Errorf("failed to build logger: %w", err)
	}
	return l, debug, nil
}
