package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrRangeTooLarge marks a log query the node refused because the block
// range holds too many results. The same query fails again on retry; the
// caller has to narrow the range.
var ErrRangeTooLarge = errors.New("log range too large")

// Substrings providers use when rejecting an eth_getLogs range.
var rangeTooLargeHints = []string{
	"query returned more than",
	"too many results",
	"block range is too large",
	"block range too large",
	"exceed maximum block range",
	"response size exceeded",
	"limit exceeded",
}

func classifyLogsError(err error) error {
	if err == nil || errors.Is(err, ErrRangeTooLarge) {
		return err
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range rangeTooLargeHints {
		if strings.Contains(msg, hint) {
			return fmt.Errorf("%w: %w", ErrRangeTooLarge, err)
		}
	}
	return err
}

// withRetry calls fn until it succeeds, doubling the delay between attempts.
// ErrRangeTooLarge is returned at once.
func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries || errors.Is(err, ErrRangeTooLarge) {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}
