package helpers

import (
	"context"
	"fmt"
	"time"

	"stock-cache/src/logger"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type StockCacheError struct {
	Message string
	Cause   error
}

func (e *StockCacheError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *StockCacheError) Unwrap() error {
	return e.Cause
}

// Distinct error types for errors.As checks
type ConfigurationError struct{ StockCacheError }
type NetworkError struct{ StockCacheError }
type DataSourceError struct{ StockCacheError }
type DatabaseError struct{ StockCacheError }
type ValidationError struct{ StockCacheError }
type DecodeError struct{ StockCacheError }

func NewConfigurationError(msg string, cause error) *ConfigurationError {
	return &ConfigurationError{StockCacheError{Message: msg, Cause: cause}}
}

func NewNetworkError(msg string, cause error) *NetworkError {
	return &NetworkError{StockCacheError{Message: msg, Cause: cause}}
}

func NewDataSourceError(msg string, cause error) *DataSourceError {
	return &DataSourceError{StockCacheError{Message: msg, Cause: cause}}
}

func NewDatabaseError(msg string, cause error) *DatabaseError {
	return &DatabaseError{StockCacheError{Message: msg, Cause: cause}}
}

func NewValidationError(msg string, cause error) *ValidationError {
	return &ValidationError{StockCacheError{Message: msg, Cause: cause}}
}

func NewDecodeError(msg string, cause error) *DecodeError {
	return &DecodeError{StockCacheError{Message: msg, Cause: cause}}
}

// -----------------------------------------------------------------------------
// Retry Logic
// -----------------------------------------------------------------------------

// RetryWithBackoff runs fn up to maxRetries+1 times, doubling the delay after
// each failure. It stops early when ctx is done.
func RetryWithBackoff[T any](ctx context.Context, log *logger.Logger, operation string, maxRetries int, baseDelay time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		res, err := fn()
		if err == nil {
			return res, nil
		}

		lastErr = err
		if attempt == maxRetries {
			break
		}

		delay := baseDelay * (1 << attempt)
		if log != nil {
			log.Warning("Attempt %d/%d failed for %s: %v. Retrying in %v", attempt+1, maxRetries+1, operation, err, delay)
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}

	return zero, lastErr
}
