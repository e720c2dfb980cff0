package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrToolUnavailable marks environment failures (binary missing,
	// permission denied at spawn). Fatal for the whole batch.
	ErrToolUnavailable = errors.New("external tool unavailable")
	// ErrValidation marks rejected user input (segment bounds, settings).
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks unusable output or tool configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrTimeout marks a job that exceeded its configured runtime limit.
	ErrTimeout = errors.New("timeout")
	// ErrProcess marks a per-job runtime failure (nonzero exit, missing
	// or empty output). Never aborts sibling jobs.
	ErrProcess = errors.New("process error")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrProcess
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsBatchFatal reports whether an error must abort the entire batch rather
// than just the job that produced it.
func IsBatchFatal(err error) bool {
	return errors.Is(err, ErrToolUnavailable)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
