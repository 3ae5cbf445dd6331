package domain

import (
	"errors"

	"liquidity_go/pkg/safe"
)

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkError represents a failed call to the chain node or the venue
type NetworkError struct {
	Op        string // Operation that failed (e.g., "custody", "venue", "dial")
	Err       error  // Underlying error
	Retriable bool   // Whether this error is retriable
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new retriable network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
}

// NewFatalNetworkError creates a non-retriable network error
func NewFatalNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: false}
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// StorageError wraps a failure of the persistence layer.
// errors.Is(err, ErrStorageAccess) holds for every StorageError.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorageAccess
}

// NewStorageError wraps err unless it is nil or already a StorageError.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

var (
	// ErrUnknownAsset is returned when no precision is registered for an asset. Not retriable.
	ErrUnknownAsset = errors.New("unknown asset")

	// ErrAssetMismatch is returned when a balance list is not aligned with the pool asset list.
	ErrAssetMismatch = errors.New("asset list mismatch")

	// ErrDivisionByZero is returned for a precommit with a zero quote amount.
	ErrDivisionByZero = safe.ErrDivisionByZero

	// ErrArithmeticOverflow is returned when a decimal result is out of range.
	ErrArithmeticOverflow = safe.ErrOverflow

	// ErrArithmeticUnderflow is returned when a decimal result would be negative.
	ErrArithmeticUnderflow = safe.ErrUnderflow

	// ErrStorageAccess matches every persistence failure.
	ErrStorageAccess = errors.New("storage access failure")

	// ErrNotInitialized is returned when pool state is accessed before Init.
	ErrNotInitialized = errors.New("pool state not initialized")

	// ErrLayoutChanged is returned when Init is called again with a different buffer capacity.
	ErrLayoutChanged = errors.New("observation buffer layout changed")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")
)
