package gmail

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/googleapi"

	"github.com/teemow/venuedesk/internal/instrumentation"
	"github.com/teemow/venuedesk/internal/logging"
)

// RetryPolicy bounds retries of read calls.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy retries up to four times starting at 500ms, capped
// at 30s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    5,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
	}
}

// IsTransient reports whether err is worth retrying: HTTP 429, a 5xx, or a
// 403 carrying a rate-limit reason.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500 {
			return true
		}
		if gerr.Code == http.StatusForbidden {
			for _, item := range gerr.Errors {
				if item.Reason == "rateLimitExceeded" || item.Reason == "userRateLimitExceeded" {
					return true
				}
			}
		}
		return false
	}
	s := err.Error()
	return strings.Contains(s, "rateLimitExceeded") || strings.Contains(s, "userRateLimitExceeded")
}

func (c *Client) withRetry(ctx context.Context, op string, fn func() error) (err error) {
	ctx, span := instrumentation.StartExternalSpan(ctx, instrumentation.ServiceGmail, op)
	defer func() { instrumentation.EndSpan(span, err) }()

	attempts := max(c.retry.MaxAttempts, 1)
	backoff := c.retry.InitialBackoff

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if serr := c.sleep(ctx, backoff); serr != nil {
				return serr
			}
			backoff *= 2
			if backoff > c.retry.MaxBackoff {
				backoff = c.retry.MaxBackoff
			}
		}

		err = fn()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		c.logger.Warn("gmail call rate limited, backing off",
			logging.Operation("gmail."+op),
			slog.Int("attempt", attempt+1),
			logging.Err(err))
	}
	return &TransientError{Op: op, Err: err}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
