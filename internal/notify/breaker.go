package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerTimeout is how long an open breaker rejects sends before probing.
const BreakerTimeout = 2 * time.Minute

var errRetryable = errors.New("retryable send failure")

type sendOutcome struct {
	result     SendResult
	retryAfter time.Duration
}

// BreakerSender wraps a Sender with a circuit breaker so a failing webhook
// is not hammered while Discord is down. Only retryable failures count
// against the breaker; fatal results disable the notifier instead.
type BreakerSender struct {
	next    Sender
	cb      *gobreaker.CircuitBreaker[sendOutcome]
	timeout time.Duration
	logger  *slog.Logger
}

// BreakerOption configures a BreakerSender.
type BreakerOption func(*gobreaker.Settings)

// WithBreakerTimeout overrides the open-state duration.
func WithBreakerTimeout(d time.Duration) BreakerOption {
	return func(s *gobreaker.Settings) { s.Timeout = d }
}

// WithTripAfter sets the number of consecutive failures that opens the breaker.
func WithTripAfter(failures uint32) BreakerOption {
	return func(s *gobreaker.Settings) {
		s.ReadyToTrip = func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		}
	}
}

// NewBreakerSender wraps next. The breaker opens after 5 consecutive
// retryable failures.
func NewBreakerSender(next Sender, logger *slog.Logger, opts ...BreakerOption) *BreakerSender {
	if logger == nil {
		logger = slog.Default()
	}
	settings := gobreaker.Settings{
		Name:        "discord-webhook",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     BreakerTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}
	for _, opt := range opts {
		opt(&settings)
	}
	return &BreakerSender{
		next:    next,
		cb:      gobreaker.NewCircuitBreaker[sendOutcome](settings),
		timeout: settings.Timeout,
		logger:  logger,
	}
}

// Send implements Sender. A rejected send reports SendRetryable with the
// breaker timeout as the retry delay.
func (b *BreakerSender) Send(ctx context.Context, payload DiscordPayload) (SendResult, time.Duration) {
	out, err := b.cb.Execute(func() (sendOutcome, error) {
		result, retryAfter := b.next.Send(ctx, payload)
		out := sendOutcome{result: result, retryAfter: retryAfter}
		if result == SendRetryable {
			return out, errRetryable
		}
		return out, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.logger.Debug("circuit breaker rejected send", "error", err)
		return SendRetryable, b.timeout
	}
	return out.result, out.retryAfter
}

// State returns the breaker state.
func (b *BreakerSender) State() gobreaker.State {
	return b.cb.State()
}
