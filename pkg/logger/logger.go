package logger

import (
	"context"

	"go.uber.org/zap"

	"mailpilot/pkg/trace"
)

// NewLogger builds the production JSON logger. Debug output is enabled when
// debug is true.
func NewLogger(debug bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return l
}

// WithTrace 从 context 中提取 trace_id / job_id 并添加到 logger
func WithTrace(ctx context.Context, logger *zap.Logger) *zap.Logger {
	var fields []zap.Field
	if traceID := trace.FromContext(ctx); traceID != "" {
		fields = append(fields, zap.String("trace_id", traceID))
	}
	if jobID := trace.JobIDFromContext(ctx); jobID != "" {
		fields = append(fields, zap.String("job_id", jobID))
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}
