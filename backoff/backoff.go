// note: (snt)
// the backoff process is available at 'https://github.com/cenkalti/backoff' for reference.
// not enough processing to include in the package, so it's lightweight.

// Package backoff retries whole operations for callers. The wmi package
// never retries on its own.
package backoff

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

const Stop time.Duration = -1

type BackOff interface {
	NextBackOff() time.Duration

	// Reset to initial state.
	Reset()
}

func WithMaxRetries(b BackOff, max uint64) BackOff {
	return &backOffTries{delegate: b, maxTries: max}
}

type backOffTries struct {
	delegate BackOff
	maxTries uint64
	numTries uint64
}

func (b *backOffTries) NextBackOff() time.Duration {
	if b.maxTries <= b.numTries {
		return Stop
	}
	b.numTries++
	return b.delegate.NextBackOff()
}

func (b *backOffTries) Reset() {
	b.numTries = 0
	b.delegate.Reset()
}

type ExponentialBackOff struct {
	InitialInterval     time.Duration
	RandomizationFactor float64
	Multiplier          float64
	MaxInterval         time.Duration
	// After MaxElapsedTime the ExponentialBackOff returns Stop.
	// It never stops if MaxElapsedTime == 0.
	MaxElapsedTime time.Duration

	now             func() time.Time
	currentInterval time.Duration
	startTime       time.Time
}

const (
	DefaultInitialInterval     = 500 * time.Millisecond
	DefaultRandomizationFactor = 0.5
	DefaultMultiplier          = 1.5
	DefaultMaxInterval         = 10 * time.Second
	DefaultMaxElapsedTime      = 2 * time.Minute
)

type ExponentialBackOffOpts func(*ExponentialBackOff)

func WithInitialInterval(d time.Duration) ExponentialBackOffOpts {
	return func(b *ExponentialBackOff) { b.InitialInterval = d }
}

func WithRandomizationFactor(f float64) ExponentialBackOffOpts {
	return func(b *ExponentialBackOff) { b.RandomizationFactor = f }
}

func WithMaxElapsedTime(d time.Duration) ExponentialBackOffOpts {
	return func(b *ExponentialBackOff) { b.MaxElapsedTime = d }
}

func NewExponentialBackOff(opts ...ExponentialBackOffOpts) *ExponentialBackOff {
	b := &ExponentialBackOff{
		InitialInterval:     DefaultInitialInterval,
		RandomizationFactor: DefaultRandomizationFactor,
		Multiplier:          DefaultMultiplier,
		MaxInterval:         DefaultMaxInterval,
		MaxElapsedTime:      DefaultMaxElapsedTime,
		now:                 time.Now,
	}
	for _, fn := range opts {
		fn(b)
	}
	b.Reset()
	return b
}

// Returns a random value from the following interval:
//
//	[currentInterval - randomizationFactor * currentInterval, currentInterval + randomizationFactor * currentInterval].
func randomInterval(randomizationFactor, random float64, currentInterval time.Duration) time.Duration {
	if randomizationFactor == 0 {
		return currentInterval
	}
	delta := randomizationFactor * float64(currentInterval)
	minInterval := float64(currentInterval) - delta
	maxInterval := float64(currentInterval) + delta
	return time.Duration(minInterval + (random * (maxInterval - minInterval + 1)))
}

func (b *ExponentialBackOff) NextBackOff() time.Duration {
	elapsed := b.now().Sub(b.startTime)
	next := randomInterval(b.RandomizationFactor, rand.Float64(), b.currentInterval)

	// Check for overflow, if overflow is detected set the current interval to the max interval.
	if float64(b.currentInterval) >= float64(b.MaxInterval)/b.Multiplier {
		b.currentInterval = b.MaxInterval
	} else {
		b.currentInterval = time.Duration(float64(b.currentInterval) * b.Multiplier)
	}

	if b.MaxElapsedTime != 0 && elapsed+next > b.MaxElapsedTime {
		return Stop
	}
	return next
}

func (b *ExponentialBackOff) Reset() {
	b.currentInterval = b.InitialInterval
	b.startTime = b.now()
}

// Notify receives an operation error and the delay before the next try.
// It is not called once the policy stops.
type Notify func(error, time.Duration)

// Retry runs o until it succeeds, returns a *PermanentError, the policy
// stops or ctx is done. o always runs at least once; a failed attempt
// under a done ctx returns ctx.Err().
func Retry[T any](ctx context.Context, o func() (T, error), b BackOff, notify Notify) (T, error) {
	var (
		res T
		err error
	)

	b.Reset()
	for {
		res, err = o()
		if err == nil {
			return res, nil
		}

		var permanent *PermanentError
		if errors.As(err, &permanent) {
			return res, permanent.Err
		}

		// a cancelled caller wins over the policy's own verdict
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}

		next := b.NextBackOff()
		if next == Stop {
			return res, err
		}

		if notify != nil {
			notify(err, next)
		}

		t := time.NewTimer(next)
		select {
		case <-ctx.Done():
			t.Stop()
			return res, ctx.Err()
		case <-t.C:
		}
	}
}

type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps the given err in a *PermanentError.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{
		Err: err,
	}
}
