package pipeline

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"resume-critique/internal/shared/storage/object"
	"resume-critique/internal/shared/telemetry"
	"resume-critique/internal/shared/util"
)

// Guard wraps one external call with a per-attempt deadline and at most one retry.
type Guard struct {
	Name        string
	Timeout     time.Duration
	Retries     int
	Backoff     time.Duration
	ShouldRetry func(error) bool
}

// Do runs fn, retrying once after Backoff when the error looks transient.
func (g Guard) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	retries := g.Retries
	if retries < 0 {
		retries = 0
	}
	if retries > 1 {
		retries = 1
	}
	shouldRetry := g.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = ShouldRetry
	}

	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			telemetry.Info("call.retry", map[string]any{
				"guard":      g.Name,
				"op":         op,
				"attempt":    attempt,
				"request_id": RequestIDFromContext(ctx),
				"error":      util.SanitizeError(err),
			})
			timer := time.NewTimer(g.Backoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
		err = g.once(ctx, fn)
		if err == nil || ctx.Err() != nil || !shouldRetry(err) {
			return err
		}
	}
	return err
}

func (g Guard) once(ctx context.Context, fn func(ctx context.Context) error) error {
	if g.Timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, g.Timeout)
	defer cancel()
	return fn(callCtx)
}

// ShouldRetry reports whether err looks like a transient network or server failure.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, object.ErrNotFound) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "http status 5") || strings.Contains(msg, "server_error") {
		return true
	}
	if strings.Contains(msg, "timeout") {
		return true
	}
	if strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection closed") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "eof") {
		return true
	}
	return false
}
