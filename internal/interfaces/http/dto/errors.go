package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
	// ErrCodeNotConfigured is used when an optional capability is switched off
	ErrCodeNotConfigured = "ERR_NOT_CONFIGURED"
)

// Validation error codes
const (
	ErrCodeValidation      = "ERR_VALIDATION"
	ErrCodeInvalidFile     = "ERR_INVALID_FILE"
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
)

// Authentication error codes
const (
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	ErrCodeForbidden    = "ERR_FORBIDDEN"
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"
	ErrCodeTokenInvalid = "ERR_TOKEN_INVALID"
)

// Resource error codes
const (
	ErrCodeNotFound            = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists       = "ERR_ALREADY_EXISTS"
	ErrCodeConflict            = "ERR_CONFLICT"
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
)

// Business rule error codes
const (
	// ErrCodeInvalidState is used when an operation is invalid for current state
	ErrCodeInvalidState = "ERR_INVALID_STATE"
	// ErrCodeBusinessRule is used for generic business rule violations
	ErrCodeBusinessRule = "ERR_BUSINESS_RULE"
	// ErrCodeInsufficientBalance is used when the postage balance is too low
	ErrCodeInsufficientBalance = "ERR_INSUFFICIENT_BALANCE"
	// ErrCodeDataIntegrity is used when stored data contradicts itself
	ErrCodeDataIntegrity = "ERR_DATA_INTEGRITY"
)

// Campaign error codes
const (
	ErrCodeNotEditable        = "ERR_CAMPAIGN_NOT_EDITABLE"
	ErrCodeNotSendable        = "ERR_CAMPAIGN_NOT_SENDABLE"
	ErrCodeInvalidTransition  = "ERR_INVALID_TRANSITION"
	ErrCodeInvalidSchedule    = "ERR_INVALID_SCHEDULE"
	ErrCodeInvalidAddress     = "ERR_INVALID_ADDRESS"
	ErrCodeInvalidArtwork     = "ERR_INVALID_ARTWORK"
	ErrCodeArtworkMissing     = "ERR_ARTWORK_MISSING"
	ErrCodeArtworkUnreachable = "ERR_ARTWORK_UNAVAILABLE"
	ErrCodeAlreadyCharged     = "ERR_ALREADY_CHARGED"
)

// Input error codes
const (
	ErrCodeBadRequest   = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	ErrCodeInvalidJSON  = "ERR_INVALID_JSON"
)

// Rate limiting error codes
const (
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:       http.StatusInternalServerError,
	ErrCodeInternal:      http.StatusInternalServerError,
	ErrCodeNotConfigured: http.StatusNotImplemented,

	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeInvalidFile:     http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,

	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,
	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeTokenInvalid: http.StatusUnauthorized,

	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeConflict:            http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,

	// Business rule errors -> 422 Unprocessable Entity
	ErrCodeInvalidState:        http.StatusUnprocessableEntity,
	ErrCodeBusinessRule:        http.StatusUnprocessableEntity,
	ErrCodeInsufficientBalance: http.StatusUnprocessableEntity,
	ErrCodeDataIntegrity:       http.StatusInternalServerError,

	// Campaign lifecycle: state conflicts are 409, unmet preconditions 422
	ErrCodeNotEditable:        http.StatusConflict,
	ErrCodeInvalidTransition:  http.StatusConflict,
	ErrCodeAlreadyCharged:     http.StatusConflict,
	ErrCodeNotSendable:        http.StatusUnprocessableEntity,
	ErrCodeArtworkMissing:     http.StatusUnprocessableEntity,
	ErrCodeArtworkUnreachable: http.StatusUnprocessableEntity,
	ErrCodeInvalidSchedule:    http.StatusBadRequest,
	ErrCodeInvalidAddress:     http.StatusBadRequest,
	ErrCodeInvalidArtwork:     http.StatusBadRequest,

	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeInvalidInput: http.StatusBadRequest,
	ErrCodeInvalidJSON:  http.StatusBadRequest,

	ErrCodeRateLimited: http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain error codes to API error codes
var DomainErrorCodeMapping = map[string]string{
	"NOT_FOUND":              ErrCodeNotFound,
	"ALREADY_EXISTS":         ErrCodeAlreadyExists,
	"INVALID_INPUT":          ErrCodeInvalidInput,
	"INVALID_STATE":          ErrCodeInvalidState,
	"UNAUTHORIZED":           ErrCodeUnauthorized,
	"FORBIDDEN":              ErrCodeForbidden,
	"CONCURRENCY_CONFLICT":   ErrCodeConcurrencyConflict,
	"OPTIMISTIC_LOCK_FAILED": ErrCodeConcurrencyConflict,
	"INSUFFICIENT_BALANCE":   ErrCodeInsufficientBalance,
	"DATA_INTEGRITY":         ErrCodeDataIntegrity,
	"ROLLUP_INVARIANT":       ErrCodeDataIntegrity,
	"INVALID_FILE":           ErrCodeInvalidFile,

	"NOT_EDITABLE":        ErrCodeNotEditable,
	"NOT_SENDABLE":        ErrCodeNotSendable,
	"INVALID_TRANSITION":  ErrCodeInvalidTransition,
	"INVALID_SCHEDULE":    ErrCodeInvalidSchedule,
	"INVALID_ADDRESS":     ErrCodeInvalidAddress,
	"INVALID_ARTWORK":     ErrCodeInvalidArtwork,
	"ARTWORK_MISSING":     ErrCodeArtworkMissing,
	"ARTWORK_UNAVAILABLE": ErrCodeArtworkUnreachable,
	"ALREADY_CHARGED":     ErrCodeAlreadyCharged,

	"INVALID_NAME":       ErrCodeInvalidInput,
	"INVALID_EMAIL":      ErrCodeInvalidInput,
	"INVALID_AMOUNT":     ErrCodeInvalidInput,
	"INVALID_MAIL_CLASS": ErrCodeInvalidInput,
	"INVALID_MAIL_SIZE":  ErrCodeInvalidInput,
	"INVALID_CAMPAIGN":   ErrCodeInvalidInput,
	"INVALID_TENANT":     ErrCodeInvalidInput,

	"PROOFS_UNAVAILABLE":  ErrCodeNotConfigured,
	"UPLOADS_UNAVAILABLE": ErrCodeNotConfigured,
	"RENDERER_DISABLED":   ErrCodeNotConfigured,
}

// NormalizeErrorCode converts a domain error code to the API format.
// Codes already in the API format or unknown are returned as-is.
func NormalizeErrorCode(code string) string {
	if newCode, ok := DomainErrorCodeMapping[code]; ok {
		return newCode
	}
	return code
}
