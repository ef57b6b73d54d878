package notify

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// BackoffConfig configures exponential backoff after failed webhook sends.
type BackoffConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0.0 to 1.0
}

// DefaultBackoffConfig matches Discord's webhook rate limits.
var DefaultBackoffConfig = BackoffConfig{
	InitialDelay: 1 * time.Second,
	MaxDelay:     5 * time.Minute,
	Multiplier:   2.0,
	JitterFactor: 0.2,
}

// Backoff calculates exponential backoff with jitter.
// It owns its RNG so tests can seed it.
type Backoff struct {
	cfg BackoffConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// NewBackoff creates a Backoff with a random seed.
func NewBackoff(cfg BackoffConfig) *Backoff {
	return NewBackoffWithSeed(cfg, rand.Uint64())
}

// NewBackoffWithSeed creates a deterministic Backoff.
func NewBackoffWithSeed(cfg BackoffConfig, seed uint64) *Backoff {
	return &Backoff{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Delay returns the delay for the given attempt number (0-indexed).
func (b *Backoff) Delay(attempt int) time.Duration {
	attempt = max(attempt, 0)

	delay := float64(b.cfg.InitialDelay) * math.Pow(b.cfg.Multiplier, float64(attempt))
	delay = min(delay, float64(b.cfg.MaxDelay))

	// jitter in [-JitterFactor, +JitterFactor] * delay
	if b.cfg.JitterFactor > 0 {
		b.mu.Lock()
		jitter := delay * b.cfg.JitterFactor * (b.rng.Float64()*2 - 1)
		b.mu.Unlock()
		delay += jitter
	}

	return time.Duration(max(delay, 0))
}
