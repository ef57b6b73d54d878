// Package supervisor runs the companion's long-lived services under a
// suture supervisor tree so a crashed component restarts on its own.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig holds restart and shutdown tuning.
type TreeConfig struct {
	// FailureThreshold is the number of failures before entering backoff.
	FailureThreshold float64
	// FailureDecay is the rate, in seconds, at which failures decay.
	FailureDecay float64
	// FailureBackoff is the wait once the threshold is exceeded.
	FailureBackoff time.Duration
	// ShutdownTimeout bounds how long each service gets to stop.
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig matches suture's own defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree groups services into two layers:
//   - pipeline: the ingester and the maintenance scheduler, which write
//   - delivery: the stream hub, notifier, publisher and HTTP API, which read
//     or fan out
//
// A crash loop in delivery never stalls ingestion.
type Tree struct {
	root     *suture.Supervisor
	pipeline *suture.Supervisor
	delivery *suture.Supervisor
	config   TreeConfig
}

// New builds an empty tree. Zero config fields take defaults.
func New(logger *slog.Logger, config TreeConfig) *Tree {
	def := DefaultTreeConfig()
	if config.FailureThreshold == 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = def.FailureDecay
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = def.FailureBackoff
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = def.ShutdownTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	spec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}
	rootSpec := spec
	rootSpec.EventHook = (&sutureslog.Handler{Logger: logger}).MustHook()

	t := &Tree{
		root:     suture.New("mclog", rootSpec),
		pipeline: suture.New("pipeline", spec),
		delivery: suture.New("delivery", spec),
		config:   config,
	}
	t.root.Add(t.pipeline)
	t.root.Add(t.delivery)
	return t
}

// AddPipeline adds a service that writes to storage.
func (t *Tree) AddPipeline(svc suture.Service) suture.ServiceToken {
	return t.pipeline.Add(svc)
}

// AddDelivery adds a service that serves or forwards records.
func (t *Tree) AddDelivery(svc suture.Service) suture.ServiceToken {
	return t.delivery.Add(svc)
}

// Serve runs the tree until ctx is cancelled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// UnstoppedServiceReport lists services that missed the shutdown timeout.
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}

// Named gives a Serve func a name for supervisor logs.
type Named struct {
	Name string
	Run  func(ctx context.Context) error
}

// Serve implements suture.Service.
func (n Named) Serve(ctx context.Context) error { return n.Run(ctx) }

// String implements fmt.Stringer; suture uses it in events.
func (n Named) String() string { return n.Name }
