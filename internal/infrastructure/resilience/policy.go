package resilience

import "time"

// RetryPolicy bounds the retry loop. The wait doubles from Base on every
// attempt and never exceeds Cap.
type RetryPolicy struct {
	Attempts int
	Base     time.Duration
	Cap      time.Duration
}

// BreakerPolicy tunes the per-operation circuit breaker. Disabled skips the
// breaker entirely and leaves only the retry loop, which tests use to probe
// retry behavior in isolation.
type BreakerPolicy struct {
	Disabled      bool
	MinSamples    uint32
	FailureRatio  float64
	Cooldown      time.Duration
	ProbeRequests uint32
}

type Config struct {
	Retry   RetryPolicy
	Breaker BreakerPolicy
}

// DefaultConfig is tuned for the two upstreams this service calls through the
// executor: ollama generate/embed requests that already run for seconds, and
// the short per-pair reranker scoring requests. Three attempts with a 250ms
// base ride out a transient 5xx or a model reload without stretching
// user-facing latency much, and five samples at a 0.6 failure ratio open the
// breaker fast enough that queries degrade to vector order instead of
// stacking up behind a dead upstream. A single half-open probe is enough to
// detect recovery because every operation maps to one backend.
func DefaultConfig() Config {
	return Config{
		Retry: RetryPolicy{
			Attempts: 3,
			Base:     250 * time.Millisecond,
			Cap:      2 * time.Second,
		},
		Breaker: BreakerPolicy{
			MinSamples:    5,
			FailureRatio:  0.6,
			Cooldown:      20 * time.Second,
			ProbeRequests: 1,
		},
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Retry.Attempts <= 0 {
		c.Retry.Attempts = def.Retry.Attempts
	}
	if c.Retry.Base <= 0 {
		c.Retry.Base = def.Retry.Base
	}
	if c.Retry.Cap < c.Retry.Base {
		c.Retry.Cap = c.Retry.Base
	}
	if c.Breaker.MinSamples == 0 {
		c.Breaker.MinSamples = def.Breaker.MinSamples
	}
	if c.Breaker.FailureRatio <= 0 || c.Breaker.FailureRatio > 1 {
		c.Breaker.FailureRatio = def.Breaker.FailureRatio
	}
	if c.Breaker.Cooldown <= 0 {
		c.Breaker.Cooldown = def.Breaker.Cooldown
	}
	if c.Breaker.ProbeRequests == 0 {
		c.Breaker.ProbeRequests = def.Breaker.ProbeRequests
	}
	return c
}
