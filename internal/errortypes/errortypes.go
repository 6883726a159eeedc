// Package errortypes provides the typed application errors used across the
// summarization service.
package errortypes

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
)

// ErrorType classifies an AppError.
type ErrorType string

// Error types
const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeDatabase   ErrorType = "database"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeExternal   ErrorType = "external"
	ErrorTypeCanceled   ErrorType = "canceled"
	ErrorTypeInternal   ErrorType = "internal"
)

// AppError wraps an underlying error with a type, a message and fields.
type AppError struct {
	Err       error
	Type      ErrorType
	Message   string
	StackInfo string
	Fields    map[string]any
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Err.Error()
}

// Unwrap supports errors.Is and errors.As
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithField attaches a field to the error and returns it.
func (e *AppError) WithField(key string, value any) *AppError {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = value
	return e
}

func captureStack() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var builder strings.Builder
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "testing/") && !strings.Contains(frame.File, "/go/src/") {
			fmt.Fprintf(&builder, "%s:%d %s\n", frame.File, frame.Line, frame.Function)
		}
		if !more {
			break
		}
	}
	return builder.String()
}

func newAppError(errType ErrorType, err error, message string) *AppError {
	if err == nil {
		err = errors.New("unknown error")
	}

	return &AppError{
		Err:       err,
		Type:      errType,
		Message:   message,
		StackInfo: captureStack(),
		Fields:    make(map[string]any),
	}
}

// ValidationError creates a new validation error
func ValidationError(err error, message string) *AppError {
	return newAppError(ErrorTypeValidation, err, message)
}

// ConfigError creates a new configuration error
func ConfigError(err error, message string) *AppError {
	return newAppError(ErrorTypeConfig, err, message)
}

// DatabaseError creates a new database error
func DatabaseError(err error, message string) *AppError {
	return newAppError(ErrorTypeDatabase, err, message)
}

// NetworkError creates a new network error
func NetworkError(err error, message string) *AppError {
	return newAppError(ErrorTypeNetwork, err, message)
}

// ExternalError creates an error raised by the model runtime or another
// external system.
func ExternalError(err error, message string) *AppError {
	return newAppError(ErrorTypeExternal, err, message)
}

// CanceledError creates an error for work abandoned because its context ended.
func CanceledError(err error, message string) *AppError {
	return newAppError(ErrorTypeCanceled, err, message)
}

// InternalError creates a new internal error
func InternalError(err error, message string) *AppError {
	return newAppError(ErrorTypeInternal, err, message)
}

// LogError logs err on logger, or on slog.Default when logger is nil.
// AppErrors are logged with their type, stack and fields.
func LogError(logger *slog.Logger, err error) {
	if logger == nil {
		logger = slog.Default()
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		args := []any{
			"type", string(appErr.Type),
			"original_error", appErr.Err.Error(),
		}
		if appErr.StackInfo != "" {
			args = append(args, "stack", appErr.StackInfo)
		}
		for k, v := range appErr.Fields {
			args = append(args, k, v)
		}
		logger.Error(appErr.Message, args...)
		return
	}

	logger.Error(err.Error(), "error", err)
}

// TypeOf returns the type of the outermost AppError in err's chain, or the
// empty string when there is none.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return TypeOf(err) == ErrorTypeValidation
}

// IsConfigError checks if an error is a configuration error
func IsConfigError(err error) bool {
	return TypeOf(err) == ErrorTypeConfig
}

// IsNetworkError checks if an error is a network error
func IsNetworkError(err error) bool {
	return TypeOf(err) == ErrorTypeNetwork
}

// IsExternalError checks if an error came from an external system
func IsExternalError(err error) bool {
	return TypeOf(err) == ErrorTypeExternal
}
