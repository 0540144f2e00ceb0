package services

import (
	"errors"
	"fmt"
	"strings"

	"loom/internal/queue"
)

// Sentinel markers classifying stage failures. The workflow manager routes
// items to review or failed based on which marker wraps the error.
var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// Wrap tags err with marker and a "stage: operation: message" detail string.
// A nil marker degrades to ErrTransient so classification never panics on a
// missing tag.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := failureDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureStatus picks the queue status for a failed stage. Errors an operator
// has to fix (bad input, bad config, missing resources) park in review;
// everything else is failed and eligible for retry.
func FailureStatus(err error) queue.Status {
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrConfiguration) || errors.Is(err, ErrNotFound) {
		return queue.StatusReview
	}
	return queue.StatusFailed
}

func failureDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{stage, operation, message} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
