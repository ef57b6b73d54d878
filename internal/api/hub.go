// Package api serves the read-only player query API, the live record feed
// and Prometheus metrics over HTTP.
package api

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/graaaaa/mclog-companion/internal/event"
)

const (
	defaultSubscriberBufferSize = 16
	defaultBroadcastBufferSize  = 64
)

// Subscriber represents an SSE client connection.
type Subscriber struct {
	records chan event.Record
	done    chan struct{}
}

// Records returns the channel for receiving newly inserted records.
func (s *Subscriber) Records() <-chan event.Record {
	return s.records
}

// Done returns a channel that is closed when the subscriber is unsubscribed.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// Hub fans inserted records out to SSE subscribers.
// One goroutine owns the subscriber set; everything else talks to it over
// channels.
type Hub struct {
	register   chan *Subscriber
	unregister chan *Subscriber
	broadcast  chan event.Record
	stop       chan struct{}
	stopped    chan struct{}
	stopOnce   sync.Once

	subscriberBufferSize int
	logger               *slog.Logger
	clients              prometheus.Gauge
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubSubscriberBufferSize sets the buffer size for subscriber channels.
func WithHubSubscriberBufferSize(size int) HubOption {
	return func(h *Hub) {
		if size > 0 {
			h.subscriberBufferSize = size
		}
	}
}

// WithHubLogger sets the logger for the Hub.
func WithHubLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithHubClientGauge reports the subscriber count to g.
func WithHubClientGauge(g prometheus.Gauge) HubOption {
	return func(h *Hub) { h.clients = g }
}

// NewHub creates a new SSE hub.
// Call Run() or Serve() to start the hub's event loop.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		register:             make(chan *Subscriber),
		unregister:           make(chan *Subscriber),
		broadcast:            make(chan event.Record, defaultBroadcastBufferSize),
		stop:                 make(chan struct{}),
		stopped:              make(chan struct{}),
		subscriberBufferSize: defaultSubscriberBufferSize,
		logger:               slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Serve runs the hub until ctx is cancelled.
func (h *Hub) Serve(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			h.Stop()
		case <-h.stopped:
		}
	}()
	h.Run()
	return ctx.Err()
}

// Run starts the hub's event loop.
// This method blocks until Stop() is called.
func (h *Hub) Run() {
	clients := make(map[*Subscriber]struct{})
	defer close(h.stopped)

	setCount := func() {
		if h.clients != nil {
			h.clients.Set(float64(len(clients)))
		}
	}

	for {
		select {
		case sub := <-h.register:
			clients[sub] = struct{}{}
			setCount()
			h.logger.Debug("subscriber registered", "count", len(clients))

		case sub := <-h.unregister:
			if _, ok := clients[sub]; ok {
				delete(clients, sub)
				setCount()
				close(sub.done)
				close(sub.records)
				h.logger.Debug("subscriber unregistered", "count", len(clients))
			}

		case rec := <-h.broadcast:
			for sub := range clients {
				select {
				case sub.records <- rec:
				default:
					h.logger.Warn("subscriber channel full, record dropped",
						"kind", rec.Kind(),
					)
				}
			}

		case <-h.stop:
			for sub := range clients {
				close(sub.done)
				close(sub.records)
			}
			clear(clients)
			setCount()
			return
		}
	}
}

// Stop stops the hub's event loop and blocks until it has exited.
// Safe to call multiple times.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
	<-h.stopped
}

// Subscribe creates a new subscriber.
// The caller must call Unsubscribe when done.
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{
		records: make(chan event.Record, h.subscriberBufferSize),
		done:    make(chan struct{}),
	}

	select {
	case h.register <- sub:
		return sub
	case <-h.stopped:
		close(sub.done)
		close(sub.records)
		return sub
	}
}

// Unsubscribe removes a subscriber.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}

	select {
	case h.unregister <- sub:
	case <-h.stopped:
	}
}

// Publish queues rec for every subscriber.
// Non-blocking: if the broadcast channel is full, the record is dropped.
func (h *Hub) Publish(rec event.Record) {
	if rec == nil {
		return
	}

	select {
	case h.broadcast <- rec:
	case <-h.stopped:
	default:
		h.logger.Warn("broadcast channel full, record dropped",
			"kind", rec.Kind(),
		)
	}
}
