package syncer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileTopsUpWorkerPool(t *testing.T) {
	svc, _ := newTestService(t, nil)
	defer svc.Stop()

	svc.Reconcile()
	assert.Equal(t, svc.cfg.Concurrency, svc.Workers())

	svc.Reconcile()
	assert.Equal(t, svc.cfg.Concurrency, svc.Workers(), "reconcile is idempotent on a healthy pool")
}

func TestReconcileRetiresTimedOutWorkers(t *testing.T) {
	svc, _ := newTestService(t, nil)
	defer svc.Stop()
	svc.Reconcile()

	svc.supervisor.mu.Lock()
	stuck := svc.supervisor.workers[0]
	// Pretend the worker has been chewing on one candidate for too long.
	stuck.startedAt.Store(time.Now().Add(-2 * svc.cfg.JobTimeout).UnixNano())
	svc.supervisor.mu.Unlock()

	svc.Reconcile()
	assert.Equal(t, svc.cfg.Concurrency, svc.Workers(), "a replacement takes the retired worker's place")

	select {
	case <-stuck.done:
		// Cancelled while idle in Take, so the goroutine exits promptly.
	case <-time.After(2 * time.Second):
		t.Fatal("retired worker did not exit after cancellation")
	}

	svc.supervisor.mu.Lock()
	for _, h := range svc.supervisor.workers {
		assert.NotSame(t, stuck, h, "the retired handle must leave the supervised set")
	}
	svc.supervisor.mu.Unlock()
}

func TestStopDrainsThePool(t *testing.T) {
	svc, _ := newTestService(t, nil)
	svc.Reconcile()
	require.Equal(t, svc.cfg.Concurrency, svc.Workers())

	svc.Stop()
	assert.Equal(t, 0, svc.Workers())

	svc.Reconcile()
	assert.Equal(t, 0, svc.Workers(), "a stopped service never restarts workers")
}
