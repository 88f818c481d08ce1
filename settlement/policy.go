package settlement

import (
	"errors"
	"time"
)

// PollPolicy spaces status queries: Interval for the first FastPolls polls,
// then doubling up to MaxInterval.
type PollPolicy struct {
	Interval    time.Duration `yaml:"interval"`
	FastPolls   int           `yaml:"fast_polls"`
	MaxInterval time.Duration `yaml:"max_interval"`
}

func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		Interval:    time.Second,
		FastPolls:   5,
		MaxInterval: 8 * time.Second,
	}
}

func (p PollPolicy) Validate() error {
	if p.Interval <= 0 {
		return errors.New("poll interval must be positive")
	}
	if p.FastPolls < 0 {
		return errors.New("fast polls cannot be negative")
	}
	if p.MaxInterval < p.Interval {
		return errors.New("max poll interval must be at least the poll interval")
	}
	return nil
}

// Delay returns the wait before poll n (0-based).
func (p PollPolicy) Delay(n int) time.Duration {
	if n < p.FastPolls {
		return p.Interval
	}
	delay := p.Interval
	for i := p.FastPolls; i <= n; i++ {
		delay *= 2
		if delay >= p.MaxInterval {
			return p.MaxInterval
		}
	}
	return delay
}
