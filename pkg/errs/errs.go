// Package errs holds the error kinds an archive run can fail with. Every
// kind is fatal: the run stops and the error is returned to the caller.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration      = errors.New("configuration error")
	ErrExport             = errors.New("export error")
	ErrValidationMismatch = errors.New("validation mismatch")
)

// ConfigurationError is returned for missing files, malformed table entries,
// unresolvable partition columns and an empty table set. It is always
// raised before anything is mutated.
type ConfigurationError struct {
	Msg string
	Err error
}

func Configf(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrConfiguration, e.Msg, e.Err)
	}

	return fmt.Sprintf("%s: %s", ErrConfiguration, e.Msg)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// ExportError is returned when a partition could not be written to the
// object store.
type ExportError struct {
	Table     string
	Partition string
	Err       error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("%s: export failed for %s %s: %v", ErrExport, e.Table, e.Partition, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

func (e *ExportError) Is(target error) bool { return target == ErrExport }

// ValidationMismatchError is returned when the exported files do not hold
// the same number of rows as the source partition.
type ValidationMismatchError struct {
	Table       string
	Partition   string
	SourceCount int64
	DestCount   int64
}

func (e *ValidationMismatchError) Error() string {
	return fmt.Sprintf("%s: rowcount mismatch for %s %s: src=%d dst=%d",
		ErrValidationMismatch, e.Table, e.Partition, e.SourceCount, e.DestCount)
}

func (e *ValidationMismatchError) Is(target error) bool { return target == ErrValidationMismatch }
