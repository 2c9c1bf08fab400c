package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pickflow/separation/internal/config"
	"go.opentelemetry.io/otel/trace"
)

// LogLevel represents the severity level of a log entry
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogEntry represents a structured log entry
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     LogLevel               `json:"level"`
	Message   string                 `json:"message"`
	Service   string                 `json:"service"`
	TraceID   string                 `json:"trace_id,omitempty"`
	SpanID    string                 `json:"span_id,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// Logger provides structured logging with OpenTelemetry integration
type Logger struct {
	serviceName string
	logLevel    LogLevel
	format      string
}

// NewLogger creates a new structured logger
func NewLogger(cfg config.ObservabilityConfig) *Logger {
	return &Logger{
		serviceName: cfg.ServiceName,
		logLevel:    LogLevel(cfg.LogLevel),
		format:      cfg.LogFormat,
	}
}

// Debug logs a debug message
func (l *Logger) Debug(ctx context.Context, message string, fields ...map[string]interface{}) {
	if l.shouldLog(LogLevelDebug) {
		l.log(ctx, LogLevelDebug, message, nil, fields...)
	}
}

// Info logs an info message
func (l *Logger) Info(ctx context.Context, message string, fields ...map[string]interface{}) {
	if l.shouldLog(LogLevelInfo) {
		l.log(ctx, LogLevelInfo, message, nil, fields...)
	}
}

// Warn logs a warning message
func (l *Logger) Warn(ctx context.Context, message string, fields ...map[string]interface{}) {
	if l.shouldLog(LogLevelWarn) {
		l.log(ctx, LogLevelWarn, message, nil, fields...)
	}
}

// Error logs an error message
func (l *Logger) Error(ctx context.Context, message string, err error, fields ...map[string]interface{}) {
	if l.shouldLog(LogLevelError) {
		l.log(ctx, LogLevelError, message, err, fields...)
	}
}

// log is the internal logging method
func (l *Logger) log(ctx context.Context, level LogLevel, message string, err error, fields ...map[string]interface{}) {
	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level,
		Message:   message,
		Service:   l.serviceName,
	}

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		entry.TraceID = span.SpanContext().TraceID().String()
		entry.SpanID = span.SpanContext().SpanID().String()
	}

	if err != nil {
		entry.Error = err.Error()
	}

	if len(fields) > 0 {
		entry.Fields = make(map[string]interface{})
		for _, fieldMap := range fields {
			for k, v := range fieldMap {
				entry.Fields[k] = v
			}
		}
	}

	l.output(entry)
}

// output writes the log entry to stdout
func (l *Logger) output(entry LogEntry) {
	if l.format == "json" {
		if data, err := json.Marshal(entry); err == nil {
			fmt.Fprintln(os.Stdout, string(data))
		} else {
			log.Printf("failed to marshal log entry: %v", err)
		}
	} else {
		fmt.Printf("[%s] %s %s: %s\n", entry.Timestamp, entry.Level, entry.Service, entry.Message)
	}
}

// shouldLog determines if a message should be logged based on the configured level
func (l *Logger) shouldLog(level LogLevel) bool {
	levels := map[LogLevel]int{
		LogLevelDebug: 0,
		LogLevelInfo:  1,
		LogLevelWarn:  2,
		LogLevelError: 3,
	}

	configuredLevel, exists := levels[l.logLevel]
	if !exists {
		configuredLevel = levels[LogLevelInfo]
	}

	messageLevel, exists := levels[level]
	if !exists {
		return false
	}

	return messageLevel >= configuredLevel
}

// OrderAuditLogger records the order-mutation trail the orchestrator (M)
// produces: who created, changed, or completed which order, down to the
// item and product code a facet change touched. It replaces a
// generic-purpose audit/security/performance logger trio with the single
// audit surface this service's domain actually needs.
type OrderAuditLogger struct {
	logger *Logger
}

// NewOrderAuditLogger wraps logger with the order-audit field conventions.
func NewOrderAuditLogger(logger *Logger) *OrderAuditLogger {
	return &OrderAuditLogger{logger: logger}
}

// LogOrderCreated records a new order entering the system.
func (al *OrderAuditLogger) LogOrderCreated(ctx context.Context, orderID int64, orderNumber string, itemCount int) {
	al.logger.Info(ctx, "order created", map[string]interface{}{
		"component":    "audit",
		"action":       "order_created",
		"order_id":     orderID,
		"order_number": orderNumber,
		"item_count":   itemCount,
	})
}

// LogItemTransition records one item facet flipping true under a batch
// apply, identified down to its product code.
func (al *OrderAuditLogger) LogItemTransition(ctx context.Context, orderID, itemID, actorID int64, productCode, facet string) {
	al.logger.Info(ctx, "order item transition", map[string]interface{}{
		"component":    "audit",
		"action":       facet,
		"order_id":     orderID,
		"item_id":      itemID,
		"product_code": productCode,
		"actor_id":     actorID,
	})
}

// LogOrderCompleted records an order reaching COMPLETED, noting whether
// the last facet crossed the threshold naturally or an operator forced it
// via the manual-completion override.
func (al *OrderAuditLogger) LogOrderCompleted(ctx context.Context, orderID, actorID int64, manual bool) {
	al.logger.Info(ctx, "order completed", map[string]interface{}{
		"component": "audit",
		"action":    "order_completed",
		"order_id":  orderID,
		"actor_id":  actorID,
		"manual":    manual,
	})
}
