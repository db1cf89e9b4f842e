package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config configures exponential backoff.
type Config struct {
	MaxRetries int           `json:"max_retries" koanf:"max_retries"`
	BaseDelay  time.Duration `json:"base_delay" koanf:"base_delay"`
	MaxDelay   time.Duration `json:"max_delay" koanf:"max_delay"`
	Multiplier float64       `json:"multiplier" koanf:"multiplier"`
	Jitter     bool          `json:"jitter" koanf:"jitter"`
}

// Result describes how an operation fared across attempts.
type Result struct {
	Attempts      int
	TotalDuration time.Duration
	LastError     error
	Success       bool
	RetryReasons  []string
}

func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// Permanent wraps err so Do stops retrying immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Do runs op until it succeeds, returns a permanent error, the retry budget
// is spent, or ctx is done. op names the operation in logs.
func Do(ctx context.Context, cfg Config, name string, op func(ctx context.Context) error) Result {
	start := time.Now()
	result := Result{RetryReasons: make([]string, 0)}

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result.Attempts = attempt + 1
		err := op(ctx)
		if err == nil {
			result.Success = true
			result.LastError = nil
			result.TotalDuration = time.Since(start)
			if attempt > 0 {
				log.Debug().Str("op", name).Int("attempts", result.Attempts).
					Dur("elapsed", result.TotalDuration).Msg("operation succeeded after retry")
			}
			return result
		}

		result.LastError = err
		result.RetryReasons = append(result.RetryReasons, err.Error())

		var perm *permanentError
		if errors.As(err, &perm) {
			result.LastError = perm.err
			break
		}
		if ctx.Err() != nil {
			result.LastError = ctx.Err()
			break
		}
		if attempt >= cfg.MaxRetries {
			break
		}

		delay := calculateDelay(cfg, attempt)
		log.Warn().Err(err).Str("op", name).
			Int("attempt", attempt+1).Int("max_attempts", cfg.MaxRetries+1).
			Dur("backoff", delay).Msg("operation failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(start)
			return result
		case <-timer.C:
		}
	}

	result.TotalDuration = time.Since(start)
	log.Error().Err(result.LastError).Str("op", name).Int("attempts", result.Attempts).
		Dur("elapsed", result.TotalDuration).Msg("operation failed")
	return result
}

// calculateDelay is BaseDelay * Multiplier^attempt, capped at MaxDelay, with
// up to 10% jitter either way.
func calculateDelay(cfg Config, attempt int) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(attempt))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		jitterRange := delay * 0.1
		delay += (rand.Float64() - 0.5) * 2 * jitterRange
		if delay < 0 {
			delay = float64(cfg.BaseDelay)
		}
	}
	return time.Duration(delay)
}

var retryableFragments = []string{
	"connection refused",
	"connection reset",
	"timeout",
	"temporary failure",
	"service unavailable",
	"too many requests",
	"429",
	"502",
	"503",
	"504",
	"no such host",
	"broken pipe",
	"deadlock detected",
	"could not serialize access",
}

// IsRetryable reports whether err looks transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, frag := range retryableFragments {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}
