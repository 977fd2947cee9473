package syncer

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/identitylab/fedsync/pkg/config"
	"github.com/identitylab/fedsync/pkg/events"
	"github.com/identitylab/fedsync/pkg/identity"
	"github.com/identitylab/fedsync/pkg/observability"
	"github.com/identitylab/fedsync/pkg/queue"
	"github.com/identitylab/fedsync/pkg/store"
)

// Attribute names the engine persists on source refs.
const (
	attrPriority             = "priority"
	attrSnapshot             = "storedAttributes"
	attrLastSyncTimestamp    = "lastSynchronizationTimestamp"
	attrLastSyncState        = "lastSynchronizationState"
	attrLastSuccessTimestamp = "lastSuccessSynchronizationTimestamp"
)

// Config tunes the synchronization pool.
type Config struct {
	// Concurrency is the target number of long-lived workers.
	Concurrency int
	// JobTimeout retires a worker that has been processing one candidate
	// for longer than this. Retiring signals cancellation once and revokes
	// pool membership; it does not preempt the in-flight job.
	JobTimeout time.Duration
}

// Options carries the collaborators of the engine. Queue and Store are
// required; the rest default to no-ops or fresh instances.
type Options struct {
	Queue     *queue.Queue
	Store     store.Store
	Sources   config.SourcesProvider
	Logger    *logrus.Logger
	Metrics   *observability.Metrics
	Publisher events.Publisher
}

// Service is the synchronization engine. One Service is created at startup
// and passed to every component that needs it; there is no ambient global
// state.
type Service struct {
	cfg       Config
	queue     *queue.Queue
	store     store.Store
	defs      *identity.DefinitionRegistry
	sources   config.SourcesProvider
	log       *logrus.Logger
	metrics   *observability.Metrics
	publisher events.Publisher

	supervisor supervisor
}

// New creates the engine.
func New(cfg Config, opts Options) (*Service, error) {
	if opts.Queue == nil {
		return nil, fmt.Errorf("queue is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be positive, got %d", cfg.Concurrency)
	}
	if cfg.JobTimeout <= 0 {
		return nil, fmt.Errorf("job timeout must be positive, got %v", cfg.JobTimeout)
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.Sources == nil {
		opts.Sources = config.Static{Sources: &config.Sources{}}
	}

	defs, err := identity.NewDefinitionRegistry(opts.Store)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:       cfg,
		queue:     opts.Queue,
		store:     opts.Store,
		defs:      defs,
		sources:   opts.Sources,
		log:       opts.Logger,
		metrics:   opts.Metrics,
		publisher: opts.Publisher,
	}
	return s, nil
}

// Enqueue offers a candidate for synchronization. A candidate equal to one
// already waiting or running is silently dropped; the return value reports
// whether it was accepted.
func (s *Service) Enqueue(c *identity.Candidate) bool {
	accepted := s.queue.EnqueueIfAbsent(c)
	if accepted {
		s.log.WithField("candidate", c.Key()).Debug("candidate enqueued")
	} else {
		s.log.WithField("candidate", c.Key()).Debug("candidate already in flight, enqueue dropped")
	}
	s.updateQueueGauges()
	return accepted
}

// WaitingJobs exposes the queue's waiting count.
func (s *Service) WaitingJobs() int { return s.queue.WaitingJobs() }

// RunningJobs exposes the queue's running count.
func (s *Service) RunningJobs() int { return s.queue.RunningJobs() }

func (s *Service) updateQueueGauges() {
	if s.metrics == nil {
		return
	}
	s.metrics.WaitingJobs.Set(float64(s.queue.WaitingJobs()))
	s.metrics.RunningJobs.Set(float64(s.queue.RunningJobs()))
}
