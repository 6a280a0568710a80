package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tripcost-scraper/internal/models"
)

// retryOptions parameterizes the shared retry loop used identically by
// both scrapers.
type retryOptions struct {
	MaxRetries      int
	BaseDelay       time.Duration
	CaptchaCooldown time.Duration
}

// withRetry runs attempt up to 1+MaxRetries times with exponential
// backoff between attempts. A CAPTCHA-classified failure adds an
// extended cooldown before the next attempt, to avoid compounding the
// site's rate limiting. Configuration errors and pool shutdown are
// terminal. The last underlying error is propagated once attempts are
// exhausted.
func withRetry(ctx context.Context, log zerolog.Logger, opts retryOptions, attempt func(context.Context) error) error {
	var lastErr error

	for try := 0; try <= opts.MaxRetries; try++ {
		if try > 0 {
			delay := opts.BaseDelay << (try - 1)
			if models.IsBrowserGone(lastErr) {
				// Retirement and crash are pool lifecycle events, not
				// site pushback; relaunch without backoff.
				delay = 0
			}
			var captchaErr *models.CaptchaBlockError
			if errors.As(lastErr, &captchaErr) {
				log.Warn().
					Dur("cooldown", opts.CaptchaCooldown).
					Msg("block page detected, cooling down before retry")
				delay += opts.CaptchaCooldown
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = attempt(ctx)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, models.ErrPoolClosed) ||
			errors.Is(lastErr, models.ErrNoBrowserExecutable) ||
			errors.Is(lastErr, context.Canceled) {
			return lastErr
		}
		log.Warn().
			Err(lastErr).
			Int("attempt", try+1).
			Int("max_attempts", opts.MaxRetries+1).
			Msg("scrape attempt failed")
	}

	return fmt.Errorf("all %d attempts failed: %w", opts.MaxRetries+1, lastErr)
}
