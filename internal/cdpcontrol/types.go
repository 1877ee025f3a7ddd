package cdpcontrol

import "fmt"

const (
	CodeValidation      = "VALIDATION"
	CodeTabNotFound     = "TAB_NOT_FOUND"
	CodeSessionNotFound = "SESSION_NOT_FOUND"
	CodeImportFormat    = "IMPORT_FORMAT"
	CodeSwitchFailed    = "SWITCH_FAILED"
	CodeInjectFailed    = "INJECT_FAILED"
	CodeClearFailed     = "CLEAR_FAILED"
	CodeStoreFailure    = "STORE_FAILURE"
	CodeEvalFailure     = "EVAL_FAILURE"
	CodeEvalTimeout     = "EVAL_TIMEOUT"
	CodeCDPUnavailable  = "CDP_UNAVAILABLE"
)

// CodedError is a typed error used for stable API mapping.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

func newError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// NewError builds a CodedError for callers outside this package.
func NewError(code, msg string, cause error) error {
	return newError(code, msg, cause)
}

// TabInfo describes a page target. StoreID is the browser context that owns
// the tab's cookies.
type TabInfo struct {
	TabID   string `json:"tab_id"`
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	StoreID string `json:"store_id,omitempty"`
}
