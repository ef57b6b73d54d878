package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/graaaaa/mclog-companion/internal/event"
)

// FilterConfig determines which records trigger notifications.
type FilterConfig struct {
	OnBan    bool
	OnMute   bool
	OnReport bool
}

// Recorder receives delivery outcomes.
type Recorder interface {
	Sent(sink string)
	Dropped(sink string)
}

type nopRecorder struct{}

func (nopRecorder) Sent(string)    {}
func (nopRecorder) Dropped(string) {}

const sinkDiscord = "discord"

// NotifierStatus represents the current status of the notifier.
type NotifierStatus struct {
	Disabled       bool
	DisabledReason string
	DisabledAt     time.Time
}

// DefaultMaxQueueSize is the default maximum number of records to keep in queue.
const DefaultMaxQueueSize = 100

// Notifier batches and sends Discord notifications for new punishments and
// reports. It runs a dedicated goroutine for processing records.
type Notifier struct {
	sender       Sender
	afterFunc    AfterFunc
	batchDelay   time.Duration
	filter       FilterConfig
	logger       *slog.Logger
	recorder     Recorder
	maxQueueSize int

	recordCh chan event.Record
	flushCh  chan struct{}
	stopCh   chan struct{}
	doneCh   chan struct{}

	// internal state (protected by mu)
	mu          sync.Mutex
	queue       []event.Record
	timerHandle TimerHandle
	status      NotifierStatus

	// backoff state
	backoff        *Backoff
	now            func() time.Time
	backoffAttempt int
	backoffUntil   time.Time

	// Stop() protection
	stopOnce sync.Once
}

// NotifierOption configures a Notifier.
type NotifierOption func(*Notifier)

// WithAfterFunc sets the timer function (for testing).
func WithAfterFunc(af AfterFunc) NotifierOption {
	return func(n *Notifier) { n.afterFunc = af }
}

// WithBackoff sets the retry backoff calculator.
func WithBackoff(b *Backoff) NotifierOption {
	return func(n *Notifier) { n.backoff = b }
}

// WithNow sets the time source used for backoff bookkeeping.
func WithNow(now func() time.Time) NotifierOption {
	return func(n *Notifier) { n.now = now }
}

// WithNotifierLogger sets the logger.
func WithNotifierLogger(logger *slog.Logger) NotifierOption {
	return func(n *Notifier) { n.logger = logger }
}

// WithNotifierRecorder sets the delivery recorder.
func WithNotifierRecorder(r Recorder) NotifierOption {
	return func(n *Notifier) {
		if r != nil {
			n.recorder = r
		}
	}
}

// WithMaxQueueSize sets the maximum queue size.
func WithMaxQueueSize(size int) NotifierOption {
	return func(n *Notifier) {
		if size > 0 {
			n.maxQueueSize = size
		}
	}
}

// NewNotifier creates a new Notifier.
// Call Run() or Serve() to start processing records.
func NewNotifier(sender Sender, batchDelaySec int, filter FilterConfig, opts ...NotifierOption) *Notifier {
	if batchDelaySec <= 0 {
		batchDelaySec = 3 // default
	}

	n := &Notifier{
		sender:       sender,
		afterFunc:    DefaultAfterFunc,
		backoff:      NewBackoff(DefaultBackoffConfig),
		now:          time.Now,
		batchDelay:   time.Duration(batchDelaySec) * time.Second,
		filter:       filter,
		logger:       slog.Default(),
		recorder:     nopRecorder{},
		maxQueueSize: DefaultMaxQueueSize,
		recordCh:     make(chan event.Record, 64),
		flushCh:      make(chan struct{}, 1),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
		queue:        make([]event.Record, 0, 16),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Serve runs the loop until ctx is cancelled or Stop is called.
func (n *Notifier) Serve(ctx context.Context) error {
	n.Run(ctx)
	return ctx.Err()
}

// Run starts the notification processing loop.
// Blocks until Stop is called or ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) {
	defer close(n.doneCh)

	for {
		select {
		case rec := <-n.recordCh:
			n.handleRecord(rec)

		case <-n.flushCh:
			n.flush(ctx)

		case <-n.stopCh:
			// Best-effort flush on stop
			n.flush(ctx)
			return

		case <-ctx.Done():
			// Best-effort flush on context cancel
			n.flush(context.WithoutCancel(ctx))
			return
		}
	}
}

// Enqueue adds a newly inserted record to the notification queue.
// Records are filtered based on configuration.
// Safe to call from any goroutine.
// Non-blocking: if the channel is full, the record is dropped.
func (n *Notifier) Enqueue(rec event.Record) {
	if rec == nil {
		return
	}

	n.mu.Lock()
	disabled := n.status.Disabled
	n.mu.Unlock()
	if disabled {
		return
	}

	if !n.shouldNotify(rec) {
		return
	}

	select {
	case n.recordCh <- rec:
	default:
		n.recorder.Dropped(sinkDiscord)
		n.logger.Warn("notification queue full, record dropped",
			"kind", rec.Kind(),
		)
	}
}

func (n *Notifier) shouldNotify(rec event.Record) bool {
	switch r := rec.(type) {
	case *event.Punishment:
		if r.Type == event.PunishmentMute {
			return n.filter.OnMute
		}
		return n.filter.OnBan
	case *event.Report:
		return n.filter.OnReport
	default:
		return false
	}
}

func (n *Notifier) handleRecord(rec event.Record) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.queue = append(n.queue, rec)

	// Enforce queue size limit (drop oldest records)
	if len(n.queue) > n.maxQueueSize {
		dropped := len(n.queue) - n.maxQueueSize
		n.queue = n.queue[dropped:]
		for range dropped {
			n.recorder.Dropped(sinkDiscord)
		}
		n.logger.Warn("queue overflow, dropped old records", "dropped", dropped)
	}

	// Start batch timer if not already running
	if n.timerHandle == nil {
		n.timerHandle = n.afterFunc(n.batchDelay, n.triggerFlush)
	}
}

func (n *Notifier) triggerFlush() {
	// Non-blocking send to flush channel
	select {
	case n.flushCh <- struct{}{}:
	default:
	}
}

func (n *Notifier) flush(ctx context.Context) {
	n.mu.Lock()
	// The timer that triggered this flush is spent; any other pending one
	// is superseded by the decision below.
	if n.timerHandle != nil {
		n.timerHandle.Stop()
		n.timerHandle = nil
	}
	if len(n.queue) == 0 {
		n.mu.Unlock()
		return
	}

	// Keep records queued during backoff and flush when it ends
	now := n.now()
	if now.Before(n.backoffUntil) {
		remaining := n.backoffUntil.Sub(now)
		n.logger.Debug("in backoff period, keeping records in queue",
			"queue_size", len(n.queue),
			"backoff_until", n.backoffUntil,
			"remaining", remaining,
		)
		n.timerHandle = n.afterFunc(remaining, n.triggerFlush)
		n.mu.Unlock()
		return
	}

	// Take ownership of queue
	records := n.queue
	n.queue = make([]event.Record, 0, 16)
	n.mu.Unlock()

	sent := 0
	for _, payload := range BuildPayloads(records) {
		result, retryAfter := n.sender.Send(ctx, payload)
		n.handleSendResult(result, retryAfter)

		switch result {
		case SendOK:
			sent += len(payload.Embeds)
			for range payload.Embeds {
				n.recorder.Sent(sinkDiscord)
			}
			continue
		case SendRetryable:
			n.requeue(unsentRecords(records, sent))
		case SendFatal:
			for range unsentRecords(records, sent) {
				n.recorder.Dropped(sinkDiscord)
			}
		}
		return
	}
}

// requeue puts undelivered records back at the front of the queue and
// schedules a flush for the end of the backoff period.
func (n *Notifier) requeue(records []event.Record) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.queue = append(records, n.queue...)
	if len(n.queue) > n.maxQueueSize {
		dropped := len(n.queue) - n.maxQueueSize
		n.queue = n.queue[dropped:]
		for range dropped {
			n.recorder.Dropped(sinkDiscord)
		}
	}
	if n.timerHandle == nil {
		n.timerHandle = n.afterFunc(n.backoffUntil.Sub(n.now()), n.triggerFlush)
	}
}

func (n *Notifier) handleSendResult(result SendResult, retryAfter time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch result {
	case SendOK:
		n.backoffAttempt = 0
		n.backoffUntil = time.Time{}

	case SendRetryable:
		delay := retryAfter
		if delay == 0 {
			delay = n.backoff.Delay(n.backoffAttempt)
		}
		n.backoffAttempt++
		n.backoffUntil = n.now().Add(delay)
		n.logger.Warn("Discord send failed, backing off",
			"attempt", n.backoffAttempt,
			"backoff_until", n.backoffUntil,
		)

	case SendFatal:
		// Stop trying (e.g., invalid webhook URL)
		n.status.Disabled = true
		n.status.DisabledReason = "fatal error (invalid webhook or authentication failed)"
		n.status.DisabledAt = n.now()
		n.logger.Error("Discord send fatal error, notifications disabled")
	}
}

// Stop stops the notifier gracefully.
// Waits for the run loop to finish or until ctx is cancelled.
// Safe to call multiple times.
func (n *Notifier) Stop(ctx context.Context) error {
	n.stopOnce.Do(func() {
		close(n.stopCh)
	})

	select {
	case <-n.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the current notifier status.
// Safe for concurrent use.
func (n *Notifier) Status() NotifierStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.status
}

// QueueLength returns the current queue length.
// Safe for concurrent use.
func (n *Notifier) QueueLength() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.queue)
}
