package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal        ErrorCode = "COMMON_001"
	ErrCodeBadRequest      ErrorCode = "COMMON_002"
	ErrCodeNotFound        ErrorCode = "COMMON_005"
	ErrCodeConflict        ErrorCode = "COMMON_006"
	ErrCodeTimeout         ErrorCode = "COMMON_009"
	ErrCodeValidation      ErrorCode = "COMMON_010"
	ErrCodeSerialization   ErrorCode = "COMMON_011"
	ErrCodeDatabaseError   ErrorCode = "COMMON_012"
	ErrCodeCacheError      ErrorCode = "COMMON_013"
	ErrCodeExternalService ErrorCode = "COMMON_014"
	ErrCodeStorageError    ErrorCode = "COMMON_017"
	ErrCodeMessagingError  ErrorCode = "COMMON_018"
)

const (
	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeNotFound     = ErrCodeNotFound
	CodeOK           = ErrorCode("OK")
	CodeUnknown      = ErrorCode("UNKNOWN")
)

// Docking pipeline error codes
const (
	ErrCodeConversionFailed    ErrorCode = "DOCK_001"
	ErrCodeDockingFailed       ErrorCode = "DOCK_002"
	ErrCodeScoreParseFailed    ErrorCode = "DOCK_003"
	ErrCodeReportInvalid       ErrorCode = "DOCK_004"
	ErrCodeInsufficientResults ErrorCode = "DOCK_005"
	ErrCodeComplexBuildFailed  ErrorCode = "DOCK_006"
	ErrCodeCommandFailed       ErrorCode = "DOCK_007"
	ErrCodeWorkspace           ErrorCode = "DOCK_008"
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:        http.StatusInternalServerError,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeNotFound:        http.StatusNotFound,
	ErrCodeConflict:        http.StatusConflict,
	ErrCodeTimeout:         http.StatusGatewayTimeout,
	ErrCodeValidation:      http.StatusUnprocessableEntity,
	ErrCodeSerialization:   http.StatusInternalServerError,
	ErrCodeDatabaseError:   http.StatusInternalServerError,
	ErrCodeCacheError:      http.StatusInternalServerError,
	ErrCodeExternalService: http.StatusBadGateway,
	ErrCodeStorageError:    http.StatusInternalServerError,
	ErrCodeMessagingError:  http.StatusInternalServerError,

	ErrCodeConversionFailed:    http.StatusInternalServerError,
	ErrCodeDockingFailed:       http.StatusInternalServerError,
	ErrCodeScoreParseFailed:    http.StatusUnprocessableEntity,
	ErrCodeReportInvalid:       http.StatusUnprocessableEntity,
	ErrCodeInsufficientResults: http.StatusNotFound,
	ErrCodeComplexBuildFailed:  http.StatusInternalServerError,
	ErrCodeCommandFailed:       http.StatusBadGateway,
	ErrCodeWorkspace:           http.StatusInternalServerError,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:        "internal error",
	ErrCodeBadRequest:      "bad request",
	ErrCodeNotFound:        "resource not found",
	ErrCodeConflict:        "resource conflict",
	ErrCodeTimeout:         "operation timed out",
	ErrCodeValidation:      "validation failed",
	ErrCodeSerialization:   "serialization failed",
	ErrCodeDatabaseError:   "database error",
	ErrCodeCacheError:      "cache error",
	ErrCodeExternalService: "external service error",
	ErrCodeStorageError:    "object storage error",
	ErrCodeMessagingError:  "messaging error",

	ErrCodeConversionFailed:    "ligand conversion failed",
	ErrCodeDockingFailed:       "docking failed",
	ErrCodeScoreParseFailed:    "failed to parse docking score",
	ErrCodeReportInvalid:       "invalid ranked report",
	ErrCodeInsufficientResults: "not enough ranked results",
	ErrCodeComplexBuildFailed:  "complex assembly failed",
	ErrCodeCommandFailed:       "external command failed",
	ErrCodeWorkspace:           "workspace operation failed",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
