package captcha

import (
	"errors"
	"fmt"
)

// ErrNotFound means the challenge element or the target input is not on the page.
// It is an expected outcome while the page is still loading.
var ErrNotFound = errors.New("captcha source or input not found")

// ErrInvalidRequest is returned when a recognition request is rejected locally,
// before anything is sent over the wire.
var ErrInvalidRequest = errors.New("invalid recognition request")

// ExtractionReason classifies why image bytes could not be obtained.
type ExtractionReason string

const (
	ReasonEmptySource ExtractionReason = "empty-source"
	ReasonFetch       ExtractionReason = "fetch-error"
	ReasonEncode      ExtractionReason = "encode-error"
)

// ExtractionError reports a failure to obtain image bytes from the located source.
type ExtractionError struct {
	Reason ExtractionReason
	// Status is the HTTP status of the image fetch, 0 when no response was received.
	Status int
	Err    error
}

func (e *ExtractionError) Error() string {
	msg := "extraction failed: " + string(e.Reason)
	if e.Reason == ReasonFetch {
		msg = fmt.Sprintf("%s[%d]", msg, e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// RecognitionReason classifies a failed call to the recognition service.
type RecognitionReason string

const (
	ReasonTransport RecognitionReason = "transport-error"
	ReasonTimeout   RecognitionReason = "timeout"
	ReasonBadStatus RecognitionReason = "bad-status"
	ReasonEmptyBody RecognitionReason = "empty-body"
)

// RecognitionError reports a failed call to the recognition service.
type RecognitionError struct {
	Reason RecognitionReason
	// Status is set for bad-status failures.
	Status int
	Err    error
}

func (e *RecognitionError) Error() string {
	msg := "recognition failed: " + string(e.Reason)
	if e.Reason == ReasonBadStatus {
		msg = fmt.Sprintf("%s[%d]", msg, e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RecognitionError) Unwrap() error { return e.Err }

// ValidationError means the recognized text failed the acceptance rule.
type ValidationError struct {
	Text string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("recognized text %q rejected", e.Text)
}

// Reason returns a short, log-friendly classification for any attempt failure.
func Reason(err error) string {
	var (
		extErr *ExtractionError
		recErr *RecognitionError
		valErr *ValidationError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not-found"
	case errors.As(err, &extErr):
		return string(extErr.Reason)
	case errors.As(err, &recErr):
		return string(recErr.Reason)
	case errors.As(err, &valErr):
		return "validation-rejected"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid-request"
	default:
		return "page-error"
	}
}
