package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// supervisor owns the worker set. Workers are goroutines; the supervised
// set is the bookkeeping view of them, pruned and topped up by Reconcile.
type supervisor struct {
	mu      sync.Mutex
	workers []*workerHandle
	stopped bool
}

// Reconcile brings the worker set back to the configured concurrency:
// finished workers are dropped, workers stuck on one job past the timeout
// are cancelled and dropped, and fresh workers are started to fill the gap.
// Called once at startup and then on a schedule.
func (s *Service) Reconcile() {
	s.supervisor.mu.Lock()
	defer s.supervisor.mu.Unlock()
	if s.supervisor.stopped {
		return
	}

	now := time.Now()
	var removed, timedOut int
	kept := s.supervisor.workers[:0]
	for _, h := range s.supervisor.workers {
		select {
		case <-h.done:
			removed++
			continue
		default:
		}
		if started := h.startedAt.Load(); started != 0 && now.Sub(time.Unix(0, started)) > s.cfg.JobTimeout {
			// One cancellation signal, then the worker is on its own; the
			// replacement starts immediately.
			h.cancel()
			timedOut++
			s.log.WithField("worker", h.id).Warn("worker exceeded job timeout, retired")
			continue
		}
		kept = append(kept, h)
	}
	s.supervisor.workers = kept

	created := 0
	for len(s.supervisor.workers) < s.cfg.Concurrency {
		s.supervisor.workers = append(s.supervisor.workers, s.startWorker())
		created++
	}

	if s.metrics != nil {
		s.metrics.LiveWorkers.Set(float64(len(s.supervisor.workers)))
	}
	s.updateQueueGauges()
	s.log.WithFields(logrus.Fields{
		"created":  created,
		"finished": removed,
		"timedOut": timedOut,
		"live":     len(s.supervisor.workers),
		"waiting":  s.queue.WaitingJobs(),
		"running":  s.queue.RunningJobs(),
	}).Debug("worker pool reconciled")
}

func (s *Service) startWorker() *workerHandle {
	ctx, cancel := context.WithCancel(context.Background())
	h := &workerHandle{
		id:     uuid.NewString()[:8],
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.runWorker(ctx, h)
	return h
}

// Workers returns the current size of the supervised set.
func (s *Service) Workers() int {
	s.supervisor.mu.Lock()
	defer s.supervisor.mu.Unlock()
	return len(s.supervisor.workers)
}

// Stop cancels every worker and waits for all of them to exit. The service
// must not be reconciled afterwards.
func (s *Service) Stop() {
	s.supervisor.mu.Lock()
	s.supervisor.stopped = true
	workers := s.supervisor.workers
	s.supervisor.workers = nil
	s.supervisor.mu.Unlock()

	for _, h := range workers {
		h.cancel()
	}
	for _, h := range workers {
		<-h.done
	}
	if s.metrics != nil {
		s.metrics.LiveWorkers.Set(0)
	}
	s.log.Info("worker pool stopped")
}
