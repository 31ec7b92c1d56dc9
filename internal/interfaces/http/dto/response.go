package dto

// Response is the envelope of every JSON API response
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
}

// ErrorInfo describes a failed request
type ErrorInfo struct {
	Code              string   `json:"code"`
	Message           string   `json:"message"`
	RequestID         string   `json:"request_id,omitempty"`
	RetryAfterSeconds *int     `json:"retry_after_seconds,omitempty"`
	Retryable         bool     `json:"retryable,omitempty"`
	Details           []string `json:"details,omitempty"`
}

// Meta carries request bookkeeping
type Meta struct {
	RequestID  string `json:"request_id,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

// NewSuccessResponse creates a success response
func NewSuccessResponse(data any) Response {
	return Response{Success: true, Data: data}
}

// NewErrorResponse creates an error response
func NewErrorResponse(code, message string) Response {
	return Response{Success: false, Error: &ErrorInfo{Code: code, Message: message}}
}

// NewErrorResponseFromInfo wraps a resolved error with the request ID
func NewErrorResponseFromInfo(info ErrorInfo, requestID string) Response {
	info.RequestID = requestID
	return Response{Success: false, Error: &info}
}
