package provider

import "fmt"

// AuthenticationError is terminal and never retried.
type AuthenticationError struct {
	Provider string
	Message  string
	Details  map[string]any
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Provider, e.Message)
}

// RateLimitError is terminal from the retry loop's perspective.
// RetryAfter carries the vendor's hint in seconds, 0 when absent.
type RateLimitError struct {
	Provider   string
	Message    string
	RetryAfter int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Provider, e.Message)
}

// GenerationError covers request failures. Transient marks the causes
// the retry policy may resend (5xx, connection-level failures).
type GenerationError struct {
	Provider  string
	Message   string
	Transient bool
	Details   map[string]any
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Provider, e.Message)
}

// TimeoutError is retried up to the policy.
type TimeoutError struct {
	Provider string
	Message  string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Provider, e.Message)
}

// VendorError is the normalized {code, message} pair extracted from a
// vendor error payload.
type VendorError struct {
	Code    string
	Message string
}

// NormalizeVendorError probes the two error shapes the vendor has
// shipped: a flat {message, code|status} object and the nested
// {ResponseMetadata: {Error: {Code, Message}}} envelope. The second
// return is false when neither shape matches.
func NormalizeVendorError(payload map[string]any) (VendorError, bool) {
	if msg, ok := payload["message"].(string); ok {
		code := ""
		if c, ok := payload["code"]; ok {
			code = fmt.Sprint(c)
		} else if s, ok := payload["status"]; ok {
			code = fmt.Sprint(s)
		}
		return VendorError{Code: code, Message: msg}, true
	}

	meta, ok := payload["ResponseMetadata"].(map[string]any)
	if !ok {
		return VendorError{}, false
	}
	errObj, ok := meta["Error"].(map[string]any)
	if !ok {
		return VendorError{}, false
	}
	ve := VendorError{}
	if c, ok := errObj["Code"].(string); ok {
		ve.Code = c
	}
	if m, ok := errObj["Message"].(string); ok {
		ve.Message = m
	}
	return ve, ve.Code != "" || ve.Message != ""
}

// RequestIDFromPayload pulls the vendor-assigned request id out of a
// response payload when present.
func RequestIDFromPayload(payload map[string]any) string {
	meta, ok := payload["ResponseMetadata"].(map[string]any)
	if !ok {
		return ""
	}
	id, _ := meta["RequestId"].(string)
	return id
}
