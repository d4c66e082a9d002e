// Package observer defines logging and metrics hooks for sandbox execution.
package observer

import (
	"context"

	"go.uber.org/zap"

	"codearena/pkg/utils/logger"
)

// MetricsRecorder records sandbox metrics.
type MetricsRecorder interface {
	ObserveCompile(ctx context.Context, languageID string, ok bool, timeMs int64, memoryKB int64)
	ObserveRun(ctx context.Context, languageID string, termination string, timeMs int64, memoryBytes int64)
}

// NoopMetricsRecorder drops every observation.
type NoopMetricsRecorder struct{}

func (NoopMetricsRecorder) ObserveCompile(context.Context, string, bool, int64, int64) {}

func (NoopMetricsRecorder) ObserveRun(context.Context, string, string, int64, int64) {}

// LogRecorder writes observations to the structured log at debug level.
type LogRecorder struct{}

func (LogRecorder) ObserveCompile(ctx context.Context, languageID string, ok bool, timeMs int64, memoryKB int64) {
	logger.Debug(ctx, "build stage finished",
		zap.String("language", languageID),
		zap.Bool("ok", ok),
		zap.Int64("time_ms", timeMs),
		zap.Int64("memory_kb", memoryKB),
	)
}

func (LogRecorder) ObserveRun(ctx context.Context, languageID string, termination string, timeMs int64, memoryBytes int64) {
	logger.Debug(ctx, "sandbox run finished",
		zap.String("language", languageID),
		zap.String("termination", termination),
		zap.Int64("time_ms", timeMs),
		zap.Int64("memory_bytes", memoryBytes),
	)
}
