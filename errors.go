package cohort

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeInvalidParameter ErrorType = "invalid_parameter"
	ErrorTypePatch            ErrorType = "patch"
	ErrorTypeUnauthorized     ErrorType = "unauthorized"
	ErrorTypeLogic            ErrorType = "logic"
	ErrorTypeTransport        ErrorType = "transport"
	ErrorTypeNotFound         ErrorType = "not_found"
	ErrorTypeConflict         ErrorType = "conflict"
)

// CohortError is the unified error type for the repository core. Every error
// carries a stable code plus the system/user action text that feeds the audit
// sink.
type CohortError struct {
	Type         ErrorType      `json:"type"`
	Code         string         `json:"code"`
	Message      string         `json:"message"`
	SystemAction string         `json:"systemAction,omitempty"`
	UserAction   string         `json:"userAction,omitempty"`
	Retryable    bool           `json:"retryable,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	Cause        error          `json:"-"`
}

func (e *CohortError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %s", e.Type, e.Code, e.Message, e.Cause.Error())
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

func (e *CohortError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a single detail to the error
func (e *CohortError) WithDetail(key string, value any) *CohortError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithDetails adds details to the error
func (e *CohortError) WithDetails(details map[string]any) *CohortError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithCause adds a cause to the error
func (e *CohortError) WithCause(cause error) *CohortError {
	e.Cause = cause
	return e
}

// Error codes for the repository core
const (
	// TypeDef registry and patch engine errors
	ErrCodeNullTypeDefPatch          = "NULL_TYPEDEF_PATCH"
	ErrCodeNullTypeDef               = "NULL_TYPEDEF"
	ErrCodeInvalidPatchVersion       = "INVALID_PATCH_VERSION"
	ErrCodeIncompatiblePatchVersion  = "INCOMPATIBLE_PATCH_VERSION"
	ErrCodeIncompatibleAttributeType = "INCOMPATIBLE_ATTRIBUTE_TYPE"
	ErrCodeTypeDefNotFound           = "TYPEDEF_NOT_FOUND"
	ErrCodeTypeDefAlreadyExists      = "TYPEDEF_ALREADY_EXISTS"
	ErrCodeTypeDefVersionConflict    = "TYPEDEF_VERSION_CONFLICT"
	ErrCodeInvalidTypeDef            = "INVALID_TYPEDEF"

	// Property helper errors
	ErrCodeHelperLogicError = "HELPER_LOGIC_ERROR"

	// Security errors
	ErrCodeUnauthorizedAccess = "UNAUTHORIZED_ACCESS"
	ErrCodeNoSecurityOracle   = "NO_SECURITY_ORACLE"

	// Event transport errors
	ErrCodeEventSendFailed    = "EVENT_SEND_FAILED"
	ErrCodeTopicUnavailable   = "TOPIC_UNAVAILABLE"
	ErrCodeConnectionClosed   = "CONNECTION_CLOSED"
	ErrCodeEventDecodeFailed  = "EVENT_DECODE_FAILED"
	ErrCodeEventUnknownType   = "EVENT_UNKNOWN_TYPE"
	ErrCodeConnectionRecycled = "CONNECTION_RECYCLED"

	// Registry storage errors
	ErrCodeArchiveLoadFailed = "ARCHIVE_LOAD_FAILED"
	ErrCodeStoreQueryFailed  = "STORE_QUERY_FAILED"
)

// NewInvalidParameterError creates an error for null or malformed input.
// These errors are always surfaced and never retried.
func NewInvalidParameterError(code, message string) *CohortError {
	return &CohortError{
		Type:         ErrorTypeInvalidParameter,
		Code:         code,
		Message:      message,
		SystemAction: "The request is rejected with no change to the repository.",
		UserAction:   "Correct the caller so that it supplies a valid parameter.",
	}
}

// NewPatchError creates an error for a well-formed but semantically
// incompatible TypeDef patch. The caller may fetch missing versions and retry.
func NewPatchError(code, message string) *CohortError {
	return &CohortError{
		Type:         ErrorTypePatch,
		Code:         code,
		Message:      message,
		SystemAction: "The patch is rejected and the stored TypeDef is unchanged.",
		UserAction:   "Verify the patch against the current TypeDef version and resubmit.",
	}
}

// NewUnauthorizedError creates a security oracle denial error carrying the
// identifying context required by the audit sink.
func NewUnauthorizedError(userID, targetGUID, targetTypeName string) *CohortError {
	return &CohortError{
		Type:         ErrorTypeUnauthorized,
		Code:         ErrCodeUnauthorizedAccess,
		Message:      fmt.Sprintf("user %q is not authorized to access %s (%s)", userID, targetGUID, targetTypeName),
		SystemAction: "The request is rejected and the denial is audited.",
		UserAction:   "Request access from the repository owner if this operation is required.",
		Details: map[string]any{
			"userId":         userID,
			"targetGUID":     targetGUID,
			"targetTypeName": targetTypeName,
		},
	}
}

// NewHelperLogicError creates an error for an internal invariant violation.
// This indicates a bug in the engine or its caller, not a user error.
func NewHelperLogicError(sourceName, localMethod, callingMethod string) *CohortError {
	return &CohortError{
		Type:         ErrorTypeLogic,
		Code:         ErrCodeHelperLogicError,
		Message:      fmt.Sprintf("%s detected an invalid property category combination in %s (called from %s)", sourceName, localMethod, callingMethod),
		SystemAction: "The operation is abandoned.",
		UserAction:   "Raise an issue against the repository core; this is an internal defect.",
	}
}

// NewTransientTransportError creates a retryable broker failure. The transport
// retries these up to its bound before escalating.
func NewTransientTransportError(code, message string, cause error) *CohortError {
	return &CohortError{
		Type:         ErrorTypeTransport,
		Code:         code,
		Message:      message,
		Retryable:    true,
		Cause:        cause,
		SystemAction: "The event publisher retries the send up to its retry bound.",
		UserAction:   "Check the event broker if the error persists.",
	}
}

// NewFatalTransportError creates a non-retryable broker failure. The transport
// recycles its client handle and never retries these.
func NewFatalTransportError(code, message string, cause error) *CohortError {
	return &CohortError{
		Type:         ErrorTypeTransport,
		Code:         code,
		Message:      message,
		Cause:        cause,
		SystemAction: "The event publisher recycles its broker connection.",
		UserAction:   "Check the event broker configuration and restart the topic worker.",
	}
}

// NewTypeDefNotFoundError creates a typedef lookup failure
func NewTypeDefNotFoundError(guid string) *CohortError {
	return &CohortError{
		Type:         ErrorTypeNotFound,
		Code:         ErrCodeTypeDefNotFound,
		Message:      fmt.Sprintf("typedef %q is not known to this repository", guid),
		SystemAction: "The request is rejected.",
		UserAction:   "Verify the TypeDef GUID, or fetch the TypeDef from another cohort member.",
	}
}

// NewTypeDefAlreadyExistsError creates a duplicate typedef registration error
func NewTypeDefAlreadyExistsError(guid, name string) *CohortError {
	return &CohortError{
		Type:         ErrorTypeConflict,
		Code:         ErrCodeTypeDefAlreadyExists,
		Message:      fmt.Sprintf("typedef %q (%s) is already registered", name, guid),
		SystemAction: "The registration is ignored; the stored TypeDef is unchanged.",
		UserAction:   "Use a TypeDefPatch to evolve an existing TypeDef.",
	}
}

// ============================================================================
// Error checking utilities
// ============================================================================

func asCohortError(err error) (*CohortError, bool) {
	var ce *CohortError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// IsInvalidParameterError checks if an error reports null or malformed input
func IsInvalidParameterError(err error) bool {
	if ce, ok := asCohortError(err); ok {
		return ce.Type == ErrorTypeInvalidParameter
	}
	return false
}

// IsPatchError checks if an error reports an incompatible TypeDef patch
func IsPatchError(err error) bool {
	if ce, ok := asCohortError(err); ok {
		return ce.Type == ErrorTypePatch
	}
	return false
}

// IsUnauthorizedError checks if an error reports a security oracle denial
func IsUnauthorizedError(err error) bool {
	if ce, ok := asCohortError(err); ok {
		return ce.Type == ErrorTypeUnauthorized
	}
	return false
}

// IsLogicError checks if an error reports an internal invariant violation
func IsLogicError(err error) bool {
	if ce, ok := asCohortError(err); ok {
		return ce.Type == ErrorTypeLogic
	}
	return false
}

// IsNotFoundError checks if an error reports a missing typedef or instance
func IsNotFoundError(err error) bool {
	if ce, ok := asCohortError(err); ok {
		return ce.Type == ErrorTypeNotFound
	}
	return false
}

// IsConflictError checks if an error reports a duplicate registration
func IsConflictError(err error) bool {
	if ce, ok := asCohortError(err); ok {
		return ce.Type == ErrorTypeConflict
	}
	return false
}

// IsRetryableTransportError checks the whole cause chain for a transient
// broker failure. Anything else, including non-transport errors, is treated
// as non-retryable.
func IsRetryableTransportError(err error) bool {
	for err != nil {
		if ce, ok := err.(*CohortError); ok && ce.Type == ErrorTypeTransport && ce.Retryable {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// IsTransportError checks if an error originated in the event transport
func IsTransportError(err error) bool {
	if ce, ok := asCohortError(err); ok {
		return ce.Type == ErrorTypeTransport
	}
	return false
}
