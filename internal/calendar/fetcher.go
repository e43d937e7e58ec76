package calendar

import (
	"context"
	"errors"
	"time"

	"github.com/pders01/fxdigest/internal/debuglog"
	"github.com/pders01/fxdigest/internal/metrics"
	"github.com/pders01/fxdigest/internal/retry"
)

var errNoEvents = errors.New("calendar returned no events")

// Fetcher retries a Provider. An empty window is treated like a failure
// and retried; when attempts run out the window is reported empty.
type Fetcher struct {
	provider Provider
	policy   retry.Policy
	metrics  *metrics.Recorder
}

func NewFetcher(provider Provider, policy retry.Policy, m *metrics.Recorder) *Fetcher {
	policy.Name = "calendar"
	if policy.OnRetry == nil {
		policy.OnRetry = m.RetryHook
	}
	return &Fetcher{provider: provider, policy: policy, metrics: m}
}

func (f *Fetcher) Events(ctx context.Context, from, to time.Time) ([]Event, error) {
	fromStr, toStr := from.Format(DateLayout), to.Format(DateLayout)

	events, err := retry.Do(ctx, f.policy, func(ctx context.Context, attempt int) retry.Result[[]Event] {
		events, err := f.provider.Events(ctx, fromStr, toStr)
		switch {
		case errors.Is(err, ErrInvalidRange):
			return retry.Stop[[]Event](err)
		case err != nil:
			if ctx.Err() != nil {
				return retry.Stop[[]Event](ctx.Err())
			}
			return retry.Retryable[[]Event](err)
		case len(events) == 0:
			return retry.Retryable[[]Event](errNoEvents)
		}
		return retry.Ok(events)
	})

	if errors.Is(err, retry.ErrExhausted) {
		debuglog.Warnf("no calendar events for %s to %s: %v", fromStr, toStr, err)
		return []Event{}, nil
	}
	if err != nil {
		return nil, err
	}

	f.metrics.CalendarEvents(len(events))
	return events, nil
}
