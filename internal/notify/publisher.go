package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/graaaaa/mclog-companion/internal/event"
)

const sinkRedis = "redis"

// PublishRecorder receives publisher outcomes.
type PublishRecorder interface {
	Published(table string)
	Dropped(sink string)
}

type nopPublishRecorder struct{}

func (nopPublishRecorder) Published(string) {}
func (nopPublishRecorder) Dropped(string)   {}

// Envelope is the JSON message published for every inserted record.
type Envelope struct {
	Kind   string       `json:"kind"`
	Record event.Record `json:"record"`
}

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// Publisher fans inserted records out to a Redis pub/sub channel so other
// processes can follow the stream. Publishing happens on the Serve
// goroutine; Enqueue never blocks the ingester.
type Publisher struct {
	client   *redis.Client
	channel  string
	timeout  time.Duration
	logger   *slog.Logger
	recorder PublishRecorder

	recordCh chan event.Record
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithPublisherLogger sets the logger.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) { p.logger = logger }
}

// WithPublisherRecorder sets the outcome recorder.
func WithPublisherRecorder(r PublishRecorder) PublisherOption {
	return func(p *Publisher) {
		if r != nil {
			p.recorder = r
		}
	}
}

// WithPublishTimeout bounds each PUBLISH call.
func WithPublishTimeout(d time.Duration) PublisherOption {
	return func(p *Publisher) { p.timeout = d }
}

// NewPublisher connects to Redis and verifies the connection with PING.
func NewPublisher(ctx context.Context, opts RedisOptions, popts ...PublisherOption) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", opts.Addr, err)
	}

	p := &Publisher{
		client:   client,
		channel:  opts.Channel,
		timeout:  5 * time.Second,
		logger:   slog.Default(),
		recorder: nopPublishRecorder{},
		recordCh: make(chan event.Record, 256),
	}
	for _, opt := range popts {
		opt(p)
	}
	return p, nil
}

// Enqueue schedules rec for publishing. Drops the record if the buffer is full.
func (p *Publisher) Enqueue(rec event.Record) {
	if rec == nil {
		return
	}
	select {
	case p.recordCh <- rec:
	default:
		p.recorder.Dropped(sinkRedis)
		p.logger.Warn("publish buffer full, record dropped", "kind", rec.Kind())
	}
}

// Serve publishes queued records until ctx is cancelled.
func (p *Publisher) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec := <-p.recordCh:
			if err := p.Publish(ctx, rec); err != nil {
				p.recorder.Dropped(sinkRedis)
				p.logger.Warn("redis publish failed",
					"kind", rec.Kind(),
					"channel", p.channel,
					"error", err,
				)
			}
		}
	}
}

// Publish sends one record to the channel synchronously.
func (p *Publisher) Publish(ctx context.Context, rec event.Record) error {
	data, err := json.Marshal(Envelope{Kind: rec.Kind(), Record: rec})
	if err != nil {
		return fmt.Errorf("marshal %s record: %w", rec.Kind(), err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	p.recorder.Published(rec.Kind())
	return nil
}

// Close closes the Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}
