// Package errors defines the error taxonomy of the analysis pipeline.
//
// Only ArgumentError signals a programmer mistake and aborts an operation.
// All other types describe recoverable conditions: they are collected as
// warnings, logged and counted, and never stop a multi-scenario batch.
package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	// ErrNoData marks a statistic that has no valid sample to work on.
	ErrNoData = stderrors.New("no data")

	// ErrNoTrainingData indicates that selection by training performance was
	// requested for runs without a train trajectory.
	ErrNoTrainingData = stderrors.New("cannot sample runs without training performance")
)

// MissingArtifactError represents an expected file that was not found.
type MissingArtifactError struct {
	Path    string
	Pattern string
}

func (e *MissingArtifactError) Error() string {
	if e.Pattern != "" {
		return fmt.Sprintf("missing artifact: no %s in %s", e.Pattern, e.Path)
	}
	return fmt.Sprintf("missing artifact: %s", e.Path)
}

// NewMissingArtifactError creates a new missing artifact error.
func NewMissingArtifactError(path, pattern string) *MissingArtifactError {
	return &MissingArtifactError{Path: path, Pattern: pattern}
}

// MalformedRecordError represents a line or row that could not be parsed.
type MalformedRecordError struct {
	Path  string
	Line  int
	Cause error
}

func (e *MalformedRecordError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("malformed record at %s:%d: %v", e.Path, e.Line, e.Cause)
	}
	return fmt.Sprintf("malformed record at %s:%d", e.Path, e.Line)
}

func (e *MalformedRecordError) Unwrap() error {
	return e.Cause
}

// NewMalformedRecordError creates a new malformed record error.
func NewMalformedRecordError(path string, line int, cause error) *MalformedRecordError {
	return &MalformedRecordError{Path: path, Line: line, Cause: cause}
}

// InvariantViolationError represents a trajectory that breaks an ordering
// invariant. The offending record is kept.
type InvariantViolationError struct {
	Path    string
	Line    int
	Message string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant violation at %s:%d: %s", e.Path, e.Line, e.Message)
}

// NewInvariantViolationError creates a new invariant violation error.
func NewInvariantViolationError(path string, line int, message string) *InvariantViolationError {
	return &InvariantViolationError{Path: path, Line: line, Message: message}
}

// ConfigurationMismatchError represents incumbent ids without a known
// configuration.
type ConfigurationMismatchError struct {
	Path string
	IDs  []int
}

func (e *ConfigurationMismatchError) Error() string {
	return fmt.Sprintf("configuration mismatch in %s: no configuration for incumbent ids %v", e.Path, e.IDs)
}

// NewConfigurationMismatchError creates a new configuration mismatch error.
func NewConfigurationMismatchError(path string, ids []int) *ConfigurationMismatchError {
	return &ConfigurationMismatchError{Path: path, IDs: ids}
}

// InsufficientDataError represents a statistic that could not be computed.
type InsufficientDataError struct {
	Scenario     string
	Configurator string
	Statistic    string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s of %s on %s", e.Statistic, e.Configurator, e.Scenario)
}

func (e *InsufficientDataError) Unwrap() error {
	return ErrNoData
}

// NewInsufficientDataError creates a new insufficient data error.
func NewInsufficientDataError(scenario, configurator, statistic string) *InsufficientDataError {
	return &InsufficientDataError{Scenario: scenario, Configurator: configurator, Statistic: statistic}
}

// ArgumentError represents invalid arguments passed by the caller.
type ArgumentError struct {
	Op      string
	Message string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%s: invalid argument: %s", e.Op, e.Message)
}

// NewArgumentError creates a new argument error.
func NewArgumentError(op, message string) *ArgumentError {
	return &ArgumentError{Op: op, Message: message}
}

// IsRecoverable reports whether err belongs to the recoverable part of the
// taxonomy.
func IsRecoverable(err error) bool {
	var (
		missing   *MissingArtifactError
		malformed *MalformedRecordError
		invariant *InvariantViolationError
		mismatch  *ConfigurationMismatchError
		noData    *InsufficientDataError
	)
	return stderrors.As(err, &missing) ||
		stderrors.As(err, &malformed) ||
		stderrors.As(err, &invariant) ||
		stderrors.As(err, &mismatch) ||
		stderrors.As(err, &noData) ||
		stderrors.Is(err, ErrNoData) ||
		stderrors.Is(err, ErrNoTrainingData)
}
