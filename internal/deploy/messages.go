package deploy

import "time"

// Response error codes.
const (
	ErrCodeInvalidDocument  = "invalid_document"
	ErrCodeValidationFailed = "validation_failed"
	ErrCodeInternal         = "internal_error"
)

// ResponseMessage reports the outcome of a build request.
// Topic: icetray/response/build/{name}
type ResponseMessage struct {
	Name       string         `json:"name"`
	Timestamp  time.Time      `json:"timestamp"`
	Success    bool           `json:"success"`
	ReadCount  int            `json:"read_count,omitempty"`
	WriteCount int            `json:"write_count,omitempty"`
	TargetFile string         `json:"target_file,omitempty"`
	Error      *ResponseError `json:"error,omitempty"`
}

// ResponseError describes why a build request failed.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
