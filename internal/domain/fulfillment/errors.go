package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorCause is the plain-language category of a failed vendor call
type ErrorCause string

const (
	CauseAddressUndeliverable ErrorCause = "address_undeliverable"
	CauseInvalidAddress       ErrorCause = "invalid_address"
	CauseLengthExceeded       ErrorCause = "length_exceeded"
	CauseRateLimited          ErrorCause = "rate_limited"
	CauseTimeout              ErrorCause = "timeout"
	CauseVendorUnavailable    ErrorCause = "vendor_unavailable"
	CauseUnauthorized         ErrorCause = "unauthorized"
	CauseUnrecognized         ErrorCause = "unrecognized"
)

// UserMessage returns the message stored on the recipient and shown to users
func (c ErrorCause) UserMessage() string {
	switch c {
	case CauseAddressUndeliverable:
		return "The postal service reports this address as undeliverable."
	case CauseInvalidAddress:
		return "The address is invalid or incomplete. Check the street, city, state and ZIP."
	case CauseLengthExceeded:
		return "A name or address line is too long for the postcard."
	case CauseRateLimited:
		return "The mail vendor is rate limiting requests. Reset the recipient to retry later."
	case CauseTimeout:
		return "The mail vendor did not respond in time. Reset the recipient to retry."
	case CauseVendorUnavailable:
		return "The mail vendor is temporarily unavailable. Reset the recipient to retry."
	case CauseUnauthorized:
		return "The mail vendor rejected our credentials. Contact support."
	}
	return "The mail vendor rejected this postcard for an unrecognized reason."
}

// VendorError is a rejection returned by the vendor API
type VendorError struct {
	StatusCode int
	Code       string
	Message    string
}

// Error implements the error interface
func (e *VendorError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("vendor error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("vendor error %d: %s", e.StatusCode, e.Message)
}

var vendorCodeCauses = map[string]ErrorCause{
	"address_undeliverable":        CauseAddressUndeliverable,
	"undeliverable_address":        CauseAddressUndeliverable,
	"failed_deliverability":        CauseAddressUndeliverable,
	"invalid_address":              CauseInvalidAddress,
	"address_invalid":              CauseInvalidAddress,
	"invalid_zip":                  CauseInvalidAddress,
	"invalid_state":                CauseInvalidAddress,
	"length_exceeded":              CauseLengthExceeded,
	"address_length_exceeds_limit": CauseLengthExceeded,
	"rate_limit_exceeded":          CauseRateLimited,
	"unauthorized":                 CauseUnauthorized,
	"unauthenticated":              CauseUnauthorized,
}

// Classify maps an error from a vendor call to an ErrorCause. Typed vendor
// codes are checked first, then HTTP status, then transport conditions.
func Classify(err error) ErrorCause {
	if err == nil {
		return ""
	}

	var ve *VendorError
	if errors.As(err, &ve) {
		if cause, ok := vendorCodeCauses[strings.ToLower(ve.Code)]; ok {
			return cause
		}
		switch {
		case ve.StatusCode == 401 || ve.StatusCode == 403:
			return CauseUnauthorized
		case ve.StatusCode == 429:
			return CauseRateLimited
		case ve.StatusCode == 408 || ve.StatusCode == 504:
			return CauseTimeout
		case ve.StatusCode >= 500:
			return CauseVendorUnavailable
		}
		return CauseUnrecognized
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CauseTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CauseTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return CauseVendorUnavailable
	}
	return CauseUnrecognized
}

// UserMessageFor classifies err and returns its user-facing message
func UserMessageFor(err error) string {
	return Classify(err).UserMessage()
}
