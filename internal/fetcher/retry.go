package fetcher

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"net"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Backoff bounds for transport retries.
var (
	initialBackoff = 500 * time.Millisecond
	maxBackoff     = 10 * time.Second
)

// transientError marks a failure that is safe to retry (429, 5xx).
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// isTransient reports whether err is worth another attempt: an explicit
// transientError, a network timeout, or a connection reset/refused.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	// eris flattens external errors into messages, so fall back to text.
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"connection refused",
		"i/o timeout",
		"tls handshake timeout",
		"server closed idle connection",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func isTransientStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	}
	return false
}

// retry runs fn up to attempts times, sleeping with jittered exponential
// backoff between transient failures. Non-transient errors and context
// cancellation return immediately.
func retry(ctx context.Context, attempts int, fn func(ctx context.Context) error) error {
	var err error
	for attempt := range attempts {
		if err = fn(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil || !isTransient(err) || attempt == attempts-1 {
			return err
		}

		delay := backoff(attempt)
		zap.L().Warn("fetcher: transient failure, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}

func backoff(attempt int) time.Duration {
	d := float64(initialBackoff) * math.Pow(2, float64(attempt))
	d = math.Min(d, float64(maxBackoff))
	// ±25% jitter.
	d += (rand.Float64()*2 - 1) * d * 0.25
	return time.Duration(d)
}
