// Package observability provides logging, metrics, and tracing.
package observability

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger to provide specialized logging methods.
type Logger struct {
	*slog.Logger
}

// GlobalLogger is the default logger instance for the application.
var GlobalLogger *Logger

func init() {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	GlobalLogger = &Logger{Logger: slog.New(handler)}
}

// LogContextKey is a type for context keys used by the logging package.
type LogContextKey string

// CorrelationID is the context key for the per-operation correlation ID.
const CorrelationID LogContextKey = "correlation_id"

// LoggingConfig defines which types of automated logging are enabled.
type LoggingConfig struct {
	EnableCorrelationID bool
	EnableStoreLogging  bool
	EnableStreamLogging bool
}

// Config holds the current logging configuration.
var Config = LoggingConfig{
	EnableCorrelationID: true,
	EnableStoreLogging:  true,
	EnableStreamLogging: true,
}

// WithCorrelationID returns a new context with the given correlation ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationID, id)
}

// ExtractCorrelationID retrieves the correlation ID from the context.
func ExtractCorrelationID(ctx context.Context) string {
	if id := ctx.Value(CorrelationID); id != nil {
		return id.(string)
	}
	return ""
}

// StoreLogger provides structured logging for document store operations.
type StoreLogger struct {
	collection string
	logger     *Logger
}

// NewStoreLogger creates a new StoreLogger for the given collection.
func NewStoreLogger(collection string) *StoreLogger {
	return &StoreLogger{
		collection: collection,
		logger:     GlobalLogger,
	}
}

// LogWrite logs a document write (create or replace).
func (l *StoreLogger) LogWrite(ctx context.Context, fields map[string]interface{}) {
	if !Config.EnableStoreLogging {
		return
	}
	l.log(ctx, "store write", "write", fields)
}

// LogDelete logs a document delete.
func (l *StoreLogger) LogDelete(ctx context.Context, fields map[string]interface{}) {
	if !Config.EnableStoreLogging {
		return
	}
	l.log(ctx, "store delete", "delete", fields)
}

// LogTransaction logs a committed multi-document transaction.
func (l *StoreLogger) LogTransaction(ctx context.Context, fields map[string]interface{}) {
	if !Config.EnableStoreLogging {
		return
	}
	l.log(ctx, "store transaction", "transaction", fields)
}

// LogError logs a failed store operation.
func (l *StoreLogger) LogError(ctx context.Context, err error, operation string) {
	if !Config.EnableStoreLogging {
		return
	}
	l.logger.ErrorContext(ctx, "store error",
		slog.String("collection", l.collection),
		slog.String("operation", operation),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
		slog.String("error", err.Error()),
	)
}

func (l *StoreLogger) log(ctx context.Context, msg, operation string, fields map[string]interface{}) {
	attrs := []any{
		slog.String("collection", l.collection),
		slog.String("operation", operation),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.logger.InfoContext(ctx, msg, attrs...)
}

// StreamLogger provides structured logging for subscription streams.
type StreamLogger struct {
	component string
	logger    *Logger
}

// NewStreamLogger creates a new StreamLogger for the given component.
func NewStreamLogger(component string) *StreamLogger {
	return &StreamLogger{
		component: component,
		logger:    GlobalLogger,
	}
}

// LogOpen logs the opening of a subscription stream.
func (l *StreamLogger) LogOpen(ctx context.Context, collection string, fields map[string]interface{}) {
	if !Config.EnableStreamLogging {
		return
	}
	attrs := []any{
		slog.String("component", l.component),
		slog.String("collection", collection),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.logger.InfoContext(ctx, "stream opened", attrs...)
}

// LogClose logs the closing of a subscription stream.
func (l *StreamLogger) LogClose(ctx context.Context, collection string, reason string) {
	if !Config.EnableStreamLogging {
		return
	}
	l.logger.InfoContext(ctx, "stream closed",
		slog.String("component", l.component),
		slog.String("collection", collection),
		slog.String("reason", reason),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	)
}

// LogError logs a stream transport error.
func (l *StreamLogger) LogError(ctx context.Context, collection string, err error) {
	if !Config.EnableStreamLogging {
		return
	}
	l.logger.ErrorContext(ctx, "stream error",
		slog.String("component", l.component),
		slog.String("collection", collection),
		slog.String("error", err.Error()),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	)
}

// StructuredLogger provides a general-purpose structured logger.
type StructuredLogger struct{}

// NewStructuredLogger creates a new StructuredLogger instance.
func NewStructuredLogger() *StructuredLogger {
	return &StructuredLogger{}
}

// LogServiceCall logs a service method call.
func (l *StructuredLogger) LogServiceCall(ctx context.Context, service, method string, fields map[string]interface{}) {
	attrs := []any{
		slog.String("service", service),
		slog.String("method", method),
		slog.String("type", "service_call"),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	GlobalLogger.InfoContext(ctx, "service call", attrs...)
}
