package core

import (
	"context"
	"math"
	"time"

	retry "github.com/avast/retry-go"
)

var (
	rtyAttNum = uint(5)
	rtyAtt    = retry.Attempts(rtyAttNum)
	rtyDel    = retry.Delay(time.Millisecond * 400)
	rtyErr    = retry.LastErrorOnly(true)
)

// RetryPolicy is a bounded exponential backoff for the send path.
type RetryPolicy struct {
	MaxAttempts       uint          `yaml:"max_attempts" json:"max_attempts" mapstructure:"max_attempts"`
	Delay             time.Duration `yaml:"delay" json:"delay" mapstructure:"delay"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier" json:"backoff_multiplier" mapstructure:"backoff_multiplier"`
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		Delay:             2 * time.Second,
		BackoffMultiplier: 2,
	}
}

// DelayFor returns the wait before retry n (zero-based): Delay * BackoffMultiplier^n.
func (p RetryPolicy) DelayFor(n uint) time.Duration {
	mult := p.BackoffMultiplier
	if mult <= 0 {
		mult = 1
	}
	return time.Duration(float64(p.Delay) * math.Pow(mult, float64(n)))
}

// Do calls fn until it succeeds, returns an error that is not transient, or
// MaxAttempts calls have been made. onRetry, if set, is invoked before each
// retry with the delay that is about to be waited.
func (p RetryPolicy) Do(ctx context.Context, fn func() error, onRetry func(n uint, delay time.Duration, err error)) error {
	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	return retry.Do(
		fn,
		retry.Attempts(attempts),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return p.DelayFor(n)
		}),
		retry.RetryIf(IsTransient),
		retry.Context(ctx),
		rtyErr,
		retry.OnRetry(func(n uint, err error) {
			// retry-go also reports the final failed attempt
			if n+1 >= attempts || onRetry == nil {
				return
			}
			onRetry(n, p.DelayFor(n), err)
		}),
	)
}
