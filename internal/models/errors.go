// Package models defines typed errors for better error handling and context.
package models

import (
	"errors"
	"fmt"
)

// Pool lifecycle errors. Queued waiters are rejected with one of these
// rather than left hanging; callers treat the browser errors as
// retryable and the shutdown error as terminal.
var (
	ErrPoolClosed          = errors.New("page pool is shutting down")
	ErrBrowserRetired      = errors.New("browser retired")
	ErrBrowserCrashed      = errors.New("browser crashed")
	ErrNoBrowserExecutable = errors.New("no chromium executable found")
)

// CaptchaBlockError indicates the site served a CAPTCHA or block page
// instead of results
type CaptchaBlockError struct {
	URL string
	Err error
}

func (e *CaptchaBlockError) Error() string {
	return fmt.Sprintf("blocked by anti-bot challenge at %s: %v", e.URL, e.Err)
}

func (e *CaptchaBlockError) Unwrap() error { return e.Err }

// NavigationError represents a failed page load or element wait
type NavigationError struct {
	Step string
	URL  string
	Err  error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation failed at %s for %s: %v", e.Step, e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// ExtractionError represents a failure while pulling structured fields
// out of the rendered page
type ExtractionError struct {
	Step string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed at %s: %v", e.Step, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// IsBrowserGone reports whether err means the shared browser process
// went away underneath the caller (retired or crashed). The whole
// scrape attempt should be retried; the next pool acquisition
// relaunches transparently.
func IsBrowserGone(err error) bool {
	return errors.Is(err, ErrBrowserRetired) || errors.Is(err, ErrBrowserCrashed)
}
