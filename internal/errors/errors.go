// Package errors defines the stable error code system for dockstrap.
package errors

import (
	"errors"
	"fmt"
	"io"
	"sort"
)

// Code is a stable error code string.
type Code string

// Error codes. Stable public contract; scripts may match on them.
const (
	EUsage    Code = "E_USAGE"
	EInternal Code = "E_INTERNAL"

	// Configuration
	EConfigInvalid      Code = "E_CONFIG_INVALID"
	EConfigInconsistent Code = "E_CONFIG_INCONSISTENT"

	// Preflight
	EToolMissing       Code = "E_TOOL_MISSING"
	EDockerUnavailable Code = "E_DOCKER_UNAVAILABLE"
	ELocked            Code = "E_LOCKED"

	// Environment provisioning
	EEnvCreateFailed         Code = "E_ENV_CREATE_FAILED"
	EEnvActivationMissing    Code = "E_ENV_ACTIVATION_MISSING"
	EDependencyInstallFailed Code = "E_DEPENDENCY_INSTALL_FAILED"
	EFreezeFailed            Code = "E_FREEZE_FAILED"

	// Project materialisation
	EGeneratorFailed     Code = "E_GENERATOR_FAILED"
	ESettingsNotFound    Code = "E_SETTINGS_NOT_FOUND"
	ESettingsPatchFailed Code = "E_SETTINGS_PATCH_FAILED"

	// Artifact persistence
	EPersistFailed Code = "E_PERSIST_FAILED"

	// Runtime launch
	EComposeUpFailed Code = "E_COMPOSE_UP_FAILED"
	EMigrateFailed   Code = "E_MIGRATE_FAILED"
	ESuperuserFailed Code = "E_SUPERUSER_FAILED"
	EInputAborted    Code = "E_INPUT_ABORTED"
)

// BootError is the standard error type for dockstrap errors.
type BootError struct {
	Code    Code
	Msg     string
	Cause   error
	Details map[string]string // optional structured context
}

// Error returns the stable error format: "CODE: message".
func (e *BootError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *BootError) Unwrap() error {
	return e.Cause
}

// New creates a new BootError with the given code and message.
func New(code Code, msg string) error {
	return &BootError{Code: code, Msg: msg}
}

// NewWithDetails creates a new BootError with code, message, and details.
// Details map is copied (nil if empty).
func NewWithDetails(code Code, msg string, details map[string]string) error {
	return &BootError{Code: code, Msg: msg, Details: copyDetails(details)}
}

// Wrap creates a new BootError wrapping an underlying error.
func Wrap(code Code, msg string, err error) error {
	return &BootError{Code: code, Msg: msg, Cause: err}
}

// WrapWithDetails creates a new BootError wrapping an underlying error with details.
// Details map is copied (nil if empty).
func WrapWithDetails(code Code, msg string, err error, details map[string]string) error {
	return &BootError{Code: code, Msg: msg, Cause: err, Details: copyDetails(details)}
}

// GetCode extracts the error code from an error, or empty string if not a BootError.
func GetCode(err error) Code {
	var be *BootError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

// AsBootError returns (*BootError, true) if err is or wraps a BootError.
func AsBootError(err error) (*BootError, bool) {
	var be *BootError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

func copyDetails(details map[string]string) map[string]string {
	if len(details) == 0 {
		return nil
	}
	cp := make(map[string]string, len(details))
	for k, v := range details {
		cp[k] = v
	}
	return cp
}

// ExitCode returns the process exit code for an error.
// Returns 0 if err is nil, 2 for E_USAGE, 1 for all other errors.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if GetCode(err) == EUsage {
		return 2
	}
	return 1
}

// Print writes the error to w in the stable stderr format:
//
//	error_code: <CODE>
//	<message>
//	<key>: <value>   (one line per detail, sorted by key)
func Print(w io.Writer, err error) {
	if err == nil {
		return
	}
	var be *BootError
	if !errors.As(err, &be) {
		fmt.Fprintln(w, err.Error())
		return
	}
	fmt.Fprintf(w, "error_code: %s\n", be.Code)
	fmt.Fprintln(w, be.Msg)

	keys := make([]string, 0, len(be.Details))
	for k := range be.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s: %s\n", k, be.Details[k])
	}
}
