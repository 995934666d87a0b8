package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for structured logging across artificer.
const (
	// Identity and context
	FieldRequestID = "request_id"
	FieldUser      = "user"

	// Components
	FieldComponent = "component"
	FieldBuilder   = "builder"
	FieldDetector  = "detector"

	// Operations
	FieldOperation = "operation"
	FieldPath      = "path"
	FieldQuery     = "query"

	// Timing
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError     = "error"
	FieldErrorCode = "error_code"

	// Counts and sizes
	FieldCount      = "count"
	FieldSize       = "size"
	FieldTotalCount = "total_count"

	// Artifacts
	FieldArtifactUUID  = "artifact_uuid"
	FieldArtifactType  = "artifact_type"
	FieldArtifactModel = "artifact_model"
	FieldRelationship  = "relationship"
	FieldDerivedCount  = "derived_count"
	FieldOntology      = "ontology"
)

type contextKey string

const (
	requestIDKey contextKey = "logger_request_id"
	userKey      contextKey = "logger_user"
)

// WithRequestID adds a request ID to the context for logging
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithUser adds the acting user to the context for logging
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the acting user recorded in ctx, if any.
func UserFromContext(ctx context.Context) string {
	if u, ok := ctx.Value(userKey).(string); ok {
		return u
	}
	return ""
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if requestID, ok := ctx.Value(requestIDKey).(string); ok && requestID != "" {
		fields = append(fields, FieldRequestID, requestID)
	}
	if user, ok := ctx.Value(userKey).(string); ok && user != "" {
		fields = append(fields, FieldUser, user)
	}

	return fields
}

// LoggerFromContext returns a logger with fields extracted from context.
func LoggerFromContext(ctx context.Context) *zap.SugaredLogger {
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return Logger
	}
	return Logger.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	pool := derive.NewPool(pipeline, cfg, logger.ComponentLogger("derive"))
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
