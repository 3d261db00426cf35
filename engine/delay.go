package engine

import (
	"context"
	"time"

	"nextedit/types"
)

// DelayGovernor owns all non-I/O suspension in the pipeline. Nothing else
// is allowed to sleep. Both waits are skipped entirely under simulation,
// and debounce is skipped when the attempt is itself a retry.
type DelayGovernor struct {
	opts *types.Options
	now  func() time.Time
}

// NewDelayGovernor creates a governor for the given options.
func NewDelayGovernor(opts *types.Options) *DelayGovernor {
	return &DelayGovernor{opts: opts, now: time.Now}
}

// Debounce waits out the configured debounce interval.
func (g *DelayGovernor) Debounce(ctx context.Context, retry types.RetryState) error {
	if g.opts.Simulation || retry.IsRetry() {
		return nil
	}
	return g.wait(ctx, time.Duration(g.opts.DebounceMs)*time.Millisecond)
}

// ArtificialDelay waits out the configured artificial delay, reduced by the
// time the user has already been idle. A user who stopped typing a while
// ago has effectively served the delay.
func (g *DelayGovernor) ArtificialDelay(ctx context.Context, lastTypedAt time.Time) error {
	if g.opts.Simulation {
		return nil
	}
	delay := time.Duration(g.opts.ArtificialDelayMs) * time.Millisecond
	if !lastTypedAt.IsZero() {
		delay -= g.now().Sub(lastTypedAt)
	}
	if delay <= 0 {
		return nil
	}
	return g.wait(ctx, delay)
}

func (g *DelayGovernor) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
