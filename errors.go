package sequence

import (
	stderrors "errors"
	"strings"

	"github.com/goliatone/go-errors"
)

const (
	ErrCodeInvalidLicense = "INVALID_LICENSE"
	ErrCodeExecution      = "EXECUTION_ERROR"
	ErrCodeRouting        = "ROUTING_ERROR"
	ErrCodeCancellation   = "CANCELLATION_ERROR"
	ErrCodeRegistration   = "REGISTRATION_ERROR"
	ErrCodeSequenceState  = "SEQUENCE_STATE"
)

var (
	ErrInvalidLicense = errors.New("invalid action license", errors.CategoryAuthz).
				WithTextCode(ErrCodeInvalidLicense)
	ErrExecution = errors.New("action execution failed", errors.CategoryHandler).
			WithTextCode(ErrCodeExecution)
	ErrRouting = errors.New("action routing failed", errors.CategoryRouting).
			WithTextCode(ErrCodeRouting)
	ErrCancellation = errors.New("action canceled", errors.CategoryExternal).
			WithTextCode(ErrCodeCancellation)
	ErrRegistration = errors.New("operation registration failed", errors.CategoryValidation).
			WithTextCode(ErrCodeRegistration)
	ErrSequenceState = errors.New("invalid sequence state", errors.CategoryConflict).
				WithTextCode(ErrCodeSequenceState)
)

// InvalidLicenseError reports an authorization failure on an action.
func InvalidLicenseError(reason string, metadata map[string]any) *errors.Error {
	return cloneError(ErrInvalidLicense, reason, nil, metadata)
}

// ExecutionError reports missing metadata, an unregistered operation or an
// operation failure.
func ExecutionError(reason string, source error, metadata map[string]any) *errors.Error {
	return cloneError(ErrExecution, reason, source, metadata)
}

// RoutingError reports a failure to move an action between queues.
func RoutingError(reason string, source error, metadata map[string]any) *errors.Error {
	return cloneError(ErrRouting, reason, source, metadata)
}

// CancellationError reports an execution interrupted by its context.
func CancellationError(reason string, source error, metadata map[string]any) *errors.Error {
	return cloneError(ErrCancellation, reason, source, metadata)
}

// RegistrationError reports a plan registration ordering violation.
func RegistrationError(reason string, metadata map[string]any) *errors.Error {
	return cloneError(ErrRegistration, reason, nil, metadata)
}

func cloneError(base *errors.Error, message string, source error, metadata map[string]any) *errors.Error {
	err := base.Clone()
	if text := strings.TrimSpace(message); text != "" {
		err.Message = text
	}
	if source != nil {
		err.Source = source
	}
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

// ErrorCode returns the text code of the first go-errors value in the chain.
func ErrorCode(err error) string {
	var ge *errors.Error
	if stderrors.As(err, &ge) {
		return ge.TextCode
	}
	return ""
}

func IsInvalidLicense(err error) bool { return ErrorCode(err) == ErrCodeInvalidLicense }
func IsExecution(err error) bool      { return ErrorCode(err) == ErrCodeExecution }
func IsRouting(err error) bool        { return ErrorCode(err) == ErrCodeRouting }
func IsCancellation(err error) bool   { return ErrorCode(err) == ErrCodeCancellation }
func IsRegistration(err error) bool   { return ErrorCode(err) == ErrCodeRegistration }
