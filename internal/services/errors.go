package services

import "fmt"

// Custom errors. Entitlement errors are raised before any expensive work and
// always surfaced; DetectionError and GenerationError are only fatal when
// they hit the baseline call (per-iteration failures are absorbed by the
// humanizer loop).

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }

type ConflictError struct{ Message string }

func (e *ConflictError) Error() string { return e.Message }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

type UnauthorizedError struct{ Message string }

func (e *UnauthorizedError) Error() string { return e.Message }

type ForbiddenError struct{ Message string }

func (e *ForbiddenError) Error() string { return e.Message }

// RateLimitError marks a breached daily ceiling. Message overrides the
// default wording for non-daily limits like the verification resend cooldown.
type RateLimitError struct {
	Limit   int
	Message string
}

func (e *RateLimitError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("daily limit of %d requests reached, try again tomorrow", e.Limit)
}

// InsufficientCreditsError marks a breached weekly credit ceiling. Remaining
// lets the UI show how much headroom the plan still has.
type InsufficientCreditsError struct {
	Requested int
	Remaining int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: %d requested, %d remaining this week", e.Requested, e.Remaining)
}

type DocumentTooLongError struct {
	Length int
	Max    int
}

func (e *DocumentTooLongError) Error() string {
	return fmt.Sprintf("document is %d characters, plan limit is %d", e.Length, e.Max)
}

// DetectionError carries the detector's HTTP status and body. Status 0
// means the request never got a response.
type DetectionError struct {
	Status int
	Body   string
}

func (e *DetectionError) Error() string {
	if e.Status == 0 {
		return "detection service unreachable: " + e.Body
	}
	return fmt.Sprintf("detection service returned status %d: %s", e.Status, e.Body)
}

// GenerationError marks a failed or unparseable LLM rewrite response.
type GenerationError struct {
	Reason string
}

func (e *GenerationError) Error() string {
	return "rewrite generation failed: " + e.Reason
}
