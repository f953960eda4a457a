package dispatch

import "time"

const (
	DefaultTickOffset  uint32 = 10
	MinTickOffset      uint32 = 5
	MaxTickOffset      uint32 = 120
	DefaultMaxAttempts        = 3
	DefaultRetryDelay         = 2 * time.Second
	MinRetryDelay             = 10 * time.Millisecond
)

// BackoffConfig defines retry delay behavior. The default is a fixed delay.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines queue defaults and transfer guardrails.
type Config struct {
	DefaultTickOffset uint32
	MinTickOffset     uint32
	MaxTickOffset     uint32
	MaxAttempts       int
	Retry             BackoffConfig

	// AttemptTimeout bounds one tick fetch, sign and submit round. Zero disables it.
	AttemptTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		DefaultTickOffset: DefaultTickOffset,
		MinTickOffset:     MinTickOffset,
		MaxTickOffset:     MaxTickOffset,
		MaxAttempts:       DefaultMaxAttempts,
		AttemptTimeout:    30 * time.Second,
		Retry: BackoffConfig{
			InitialDelay: DefaultRetryDelay,
			Multiplier:   1.0,
			MaxDelay:     DefaultRetryDelay,
			Jitter:       false,
		},
	}
}

// normalized fills unset fields from DefaultConfig and clamps negative or
// too small values to usable ones.
func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.DefaultTickOffset == 0 {
		c.DefaultTickOffset = d.DefaultTickOffset
	}
	if c.MinTickOffset == 0 {
		c.MinTickOffset = d.MinTickOffset
	}
	if c.MaxTickOffset == 0 {
		c.MaxTickOffset = d.MaxTickOffset
	}
	switch {
	case c.MaxAttempts == 0:
		c.MaxAttempts = d.MaxAttempts
	case c.MaxAttempts < 0:
		c.MaxAttempts = 1
	}
	switch {
	case c.Retry.InitialDelay == 0:
		c.Retry.InitialDelay = d.Retry.InitialDelay
		if c.Retry.MaxDelay == 0 {
			c.Retry.MaxDelay = d.Retry.MaxDelay
		}
	case c.Retry.InitialDelay < MinRetryDelay:
		c.Retry.InitialDelay = MinRetryDelay
	}
	return c
}
