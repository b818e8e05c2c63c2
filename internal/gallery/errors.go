package gallery

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the scraper.
var (
	ErrNavigation           = errors.New("navigation failed")
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrJobTerminal          = errors.New("job is in a terminal state")
	ErrJobNotFound          = errors.New("job not found")
	ErrRateLimited          = errors.New("rate limited")
	ErrJobCanceled          = errors.New("job canceled")
	ErrQueueClosed          = errors.New("queue closed")
)

// NavigationError reports a navigation that exhausted its retries.
type NavigationError struct {
	URL      string
	Profile  Profile
	Attempts int
	Err      error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigate %s (%s) failed after %d attempts: %v", e.URL, e.Profile, e.Attempts, e.Err)
}

// Unwrap exposes both the sentinel and the last underlying cause.
func (e *NavigationError) Unwrap() []error {
	return []error{ErrNavigation, e.Err}
}

func invalidConfig(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, reason)
}
