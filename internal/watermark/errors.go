package watermark

import (
	"errors"
	"fmt"
)

// ErrWatermarkNotFound reports an update against a (table, symbol) pair
// that was never initialized. Surfaced per-symbol in the UpdateSummary
// so onboarding bugs are caught early without losing the batch.
var ErrWatermarkNotFound = errors.New("watermark not found")

// ConfigurationError reports invalid caller input: bad selection
// options or malformed outcomes. Fatal; the caller must fix the
// configuration, not retry.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

func configErrorf(format string, args ...interface{}) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// IsConfigurationError reports whether err is a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// StorageError wraps a failed persistence round-trip. Propagated
// unchanged; retry policy belongs to the storage client or the driver.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageError(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// IsStorageError reports whether err is a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
