package models

import "fmt"

// Error codes recorded into EvidenceRecord.Errors and used internally.
const (
	ErrCodeNavigation     = "NAVIGATION_FAILED"
	ErrCodeExtraction     = "EXTRACTION_FAILED"
	ErrCodeStructuredData = "STRUCTURED_DATA_PARSE"
	ErrCodeBatchItem      = "BATCH_ITEM_FAILED"
	ErrCodeBrowserCrash   = "BROWSER_CRASH"
	ErrCodeTimeout        = "CAPTURE_TIMEOUT"
	ErrCodeInvalidInput   = "INVALID_INPUT"
)

// CaptureError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type CaptureError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *CaptureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// NewCaptureError creates a new CaptureError.
func NewCaptureError(code, message string, err error) *CaptureError {
	return &CaptureError{Code: code, Message: message, Err: err}
}

// Record appends the error to a record in "CODE: message" form. The wrapped
// cause is inlined so the record stays legible without a log file.
func (e *CaptureError) Record(r *EvidenceRecord) {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	r.AddError(e.Code, msg)
}
