// Package retry runs an operation a bounded number of times with a fixed
// delay between attempts. Operations report an explicit status rather than
// signalling "try again" through an empty value.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pders01/fxdigest/internal/debuglog"
)

// Defaults for the retry section of the configuration. A Policy with a zero
// Delay does not wait between attempts.
const (
	DefaultMaxAttempts = 3
	DefaultDelay       = 5 * time.Second
)

// ErrExhausted is returned when every attempt came back Empty.
var ErrExhausted = errors.New("retry: attempts exhausted")

type Status int

const (
	// Success carries a usable value, even if that value is an empty slice.
	Success Status = iota
	// Empty means nothing usable came back yet; the attempt is repeated.
	Empty
	// Fatal stops immediately.
	Fatal
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case Empty:
		return "empty"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

type Result[T any] struct {
	Value  T
	Status Status
	// Err is the cause of an Empty or Fatal result. Optional for Empty.
	Err error
}

func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v, Status: Success}
}

func Retryable[T any](err error) Result[T] {
	return Result[T]{Status: Empty, Err: err}
}

func Stop[T any](err error) Result[T] {
	return Result[T]{Status: Fatal, Err: err}
}

// Policy bounds a retried operation.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	// Name labels progress notices and metrics.
	Name string
	// OnRetry is called after every failed attempt that will be retried.
	OnRetry func(name string, attempt int, err error)
	// After is swapped in tests to avoid real sleeps.
	After func(time.Duration) <-chan time.Time
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	if p.Name == "" {
		p.Name = "operation"
	}
	if p.After == nil {
		p.After = time.After
	}
	return p
}

// Do invokes op until it succeeds, fails fatally or MaxAttempts is reached.
// No delay follows the final attempt.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context, attempt int) Result[T]) (T, error) {
	p = p.withDefaults()

	var zero T
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		res := op(ctx, attempt)
		switch res.Status {
		case Success:
			return res.Value, nil
		case Fatal:
			if res.Err == nil {
				return zero, fmt.Errorf("%s: fatal result", p.Name)
			}
			return zero, res.Err
		}

		lastErr = res.Err
		log := debuglog.WithFields(map[string]any{
			"op":      p.Name,
			"attempt": attempt,
			"max":     p.MaxAttempts,
		})
		if attempt == p.MaxAttempts {
			log.Warnf("attempt %d/%d failed, giving up: %v", attempt, p.MaxAttempts, describe(res.Err))
			break
		}

		log.Warnf("attempt %d/%d failed, retrying in %s: %v", attempt, p.MaxAttempts, p.Delay, describe(res.Err))
		if p.OnRetry != nil {
			p.OnRetry(p.Name, attempt, res.Err)
		}

		if p.Delay > 0 {
			select {
			case <-p.After(p.Delay):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}
	}

	if lastErr != nil {
		return zero, fmt.Errorf("%s: %w after %d attempts: %w", p.Name, ErrExhausted, p.MaxAttempts, lastErr)
	}
	return zero, fmt.Errorf("%s: %w after %d attempts", p.Name, ErrExhausted, p.MaxAttempts)
}

func describe(err error) string {
	if err == nil {
		return "no data"
	}
	return err.Error()
}
