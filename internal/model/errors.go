package model

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common cases.
// Use errors.Is() to check against these.
var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrForbidden      = errors.New("forbidden")
	ErrConflict       = errors.New("conflict")
	ErrNotConfigured  = errors.New("not configured")
	ErrUpstreamError  = errors.New("upstream error")
	ErrBatchAborted   = errors.New("batch aborted")
)

// Error codes surfaced to callers. Lower snake case matches the codes the
// admin screens already switch on.
const (
	CodeInvalidRequest   = "invalid_request"
	CodeInvalidType      = "invalid_type"
	CodeInvalidOrder     = "invalid_order"
	CodeInvalidProduct   = "invalid_product"
	CodeInvalidItem      = "invalid_item"
	CodeForbidden        = "forbidden"
	CodeAlreadyOrdered   = "already_ordered"
	CodeProcessingLocked = "processing_locked"
	CodeJobRunning       = "job_running"
	CodeNotConfigured    = "not_configured"
	CodeSOAPFault        = "soap_fault"
	CodeTransport        = "curl_error"
	CodeHTTP             = "http_error"
	CodeXMLParse         = "xml_parse_error"
	CodeInvalidResponse  = "invalid_response"
	CodeAPIConfiguration = "api_configuration_error"
	CodeAPIFailure       = "api_failure"
	CodeInternal         = "internal_error"
)

// APIError represents a structured error for API responses.
// Implements error interface and supports unwrapping.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"` // HTTP status, not serialized
	Err        error  `json:"-"` // Wrapped error, not serialized
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Code returns the APIError code found in err's chain, or "" if none.
func Code(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// IsUpstream reports whether err came from talking to the distributor.
// Those errors are counted per item and never abort a sweep on their own.
func IsUpstream(err error) bool {
	return errors.Is(err, ErrUpstreamError)
}

// NewValidationError creates a 400 error for invalid input.
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:       CodeInvalidRequest,
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		StatusCode: 400,
		Err:        ErrInvalidRequest,
	}
}

// NewInvalidTypeError rejects a product type other than wheel or tire.
func NewInvalidTypeError(kind string) *APIError {
	return &APIError{
		Code:       CodeInvalidType,
		Message:    fmt.Sprintf("product type must be wheel or tire, got %q", kind),
		StatusCode: 400,
		Err:        ErrInvalidRequest,
	}
}

// NewInvalidOrderError reports a missing order.
func NewInvalidOrderError() *APIError {
	return &APIError{Code: CodeInvalidOrder, Message: "Order not found", StatusCode: 400, Err: ErrNotFound}
}

// NewInvalidProductError reports a missing or mismatched product.
func NewInvalidProductError(reason string) *APIError {
	return &APIError{Code: CodeInvalidProduct, Message: reason, StatusCode: 400, Err: ErrNotFound}
}

// NewInvalidItemError reports a missing or foreign order line.
func NewInvalidItemError(reason string) *APIError {
	return &APIError{Code: CodeInvalidItem, Message: reason, StatusCode: 400, Err: ErrNotFound}
}

// NewForbiddenError creates a 403 error for rejected admin credentials.
func NewForbiddenError(reason string) *APIError {
	return &APIError{
		Code:       CodeForbidden,
		Message:    reason,
		StatusCode: 403,
		Err:        ErrForbidden,
	}
}

// NewAlreadyOrderedError is returned when the line already carries an ATD order id.
func NewAlreadyOrderedError(externalID string) *APIError {
	return &APIError{
		Code:       CodeAlreadyOrdered,
		Message:    "Item already ordered with ATD ID: " + externalID,
		StatusCode: 409,
		Err:        ErrConflict,
	}
}

// NewProcessingLockedError is returned when another placement holds the line.
func NewProcessingLockedError() *APIError {
	return &APIError{
		Code:       CodeProcessingLocked,
		Message:    "Order placement already in progress",
		StatusCode: 409,
		Err:        ErrConflict,
	}
}

// NewJobRunningError is returned when a full inventory sync is already in flight.
func NewJobRunningError(job string) *APIError {
	return &APIError{
		Code:       CodeJobRunning,
		Message:    fmt.Sprintf("%s is already running", job),
		StatusCode: 409,
		Err:        ErrConflict,
	}
}

// NewNotConfiguredError names the credentials that are missing.
func NewNotConfiguredError(missing []string) *APIError {
	return &APIError{
		Code:       CodeNotConfigured,
		Message:    "API credentials not configured: " + strings.Join(missing, ", "),
		StatusCode: 502,
		Err:        ErrNotConfigured,
	}
}

// NewSOAPFaultError carries the faultstring returned by the distributor.
func NewSOAPFaultError(fault string) *APIError {
	return &APIError{
		Code:       CodeSOAPFault,
		Message:    fault,
		StatusCode: 502,
		Err:        ErrUpstreamError,
	}
}

// NewTransportError creates a 502 error for connection-level failures.
func NewTransportError(err error) *APIError {
	return &APIError{
		Code:       CodeTransport,
		Message:    err.Error(),
		StatusCode: 502,
		Err:        fmt.Errorf("%w: %v", ErrUpstreamError, err),
	}
}

// NewHTTPError creates a 502 error for non-fault HTTP failures.
func NewHTTPError(status int) *APIError {
	return &APIError{
		Code:       CodeHTTP,
		Message:    fmt.Sprintf("HTTP %d", status),
		StatusCode: 502,
		Err:        ErrUpstreamError,
	}
}

// NewXMLParseError creates a 502 error for unparsable response bodies.
func NewXMLParseError(err error) *APIError {
	return &APIError{
		Code:       CodeXMLParse,
		Message:    "Failed to parse XML response",
		StatusCode: 502,
		Err:        fmt.Errorf("%w: %v", ErrUpstreamError, err),
	}
}

// NewInvalidResponseError reports a response missing an expected node.
func NewInvalidResponseError(reason string) *APIError {
	return &APIError{
		Code:       CodeInvalidResponse,
		Message:    reason,
		StatusCode: 502,
		Err:        ErrUpstreamError,
	}
}

// NewAPIConfigurationError aborts a batch whose first lookups all failed.
func NewAPIConfigurationError() *APIError {
	return &APIError{
		Code:       CodeAPIConfiguration,
		Message:    "Multiple API failures detected. Please check your API credentials and configuration.",
		StatusCode: 500,
		Err:        ErrBatchAborted,
	}
}

// NewAPIFailureError reports a batch in which every lookup failed.
func NewAPIFailureError(errorCount int) *APIError {
	return &APIError{
		Code:       CodeAPIFailure,
		Message:    fmt.Sprintf("All API requests failed (%d errors). Please check your API credentials.", errorCount),
		StatusCode: 500,
		Err:        ErrBatchAborted,
	}
}

// NewInternalError creates a 500 error for unexpected failures.
func NewInternalError(err error) *APIError {
	return &APIError{
		Code:       CodeInternal,
		Message:    "an internal error occurred",
		StatusCode: 500,
		Err:        err,
	}
}
