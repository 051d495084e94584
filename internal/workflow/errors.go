package workflow

import (
	"context"
	"errors"

	"github.com/404FinnNotFound/TiktokBot123/internal/download"
	"github.com/404FinnNotFound/TiktokBot123/internal/pipeline"
)

// Static errors for the workflow.
var (
	// ErrInvalidInput is returned when a message is not an accepted TikTok URL.
	ErrInvalidInput = errors.New("invalid input")
	// ErrSizeExceeded is returned when the final video is over the upload limit.
	ErrSizeExceeded = errors.New("video exceeds upload limit")
	// ErrDeliveryFailed is returned when the video cannot be uploaded.
	ErrDeliveryFailed = errors.New("delivery failed")
)

// kinds are the errors whose message is safe to show to users, most specific first.
var kinds = []error{
	download.ErrTimedOut,
	download.ErrDownloadFailed,
	pipeline.ErrProbeFailed,
	pipeline.ErrTransformFailed,
	ErrSizeExceeded,
	ErrDeliveryFailed,
	ErrInvalidInput,
}

// errorKind returns a short user-safe description of err.
func errorKind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k.Error()
		}
	}
	return "internal error"
}

// userMessage maps a failure to the reply the user sees.
func userMessage(err error) string {
	switch {
	case errors.Is(err, download.ErrTimedOut):
		return timedOutText
	case errors.Is(err, context.DeadlineExceeded):
		return processingTimedOutText
	case errors.Is(err, ErrSizeExceeded):
		return tooLargeText
	default:
		return errorPrefix + errorKind(err)
	}
}
