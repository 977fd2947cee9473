package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/identitylab/fedsync/pkg/identity"
)

func candidate(source, login string) *identity.Candidate {
	return &identity.Candidate{
		ID: source + "/" + login,
		PrimaryRef: &identity.SourceRef{
			Source: identity.Source{Name: source, Type: identity.SourceTypeIdP},
			Login:  login,
		},
	}
}

func TestEnqueueIfAbsentDeduplicates(t *testing.T) {
	q := New()

	require.True(t, q.EnqueueIfAbsent(candidate("idp", "jane")))
	assert.False(t, q.EnqueueIfAbsent(candidate("idp", "jane")), "duplicate while waiting is dropped")
	assert.True(t, q.EnqueueIfAbsent(candidate("idp", "john")))
	assert.Equal(t, 2, q.WaitingJobs())
}

func TestDuplicateOfRunningCandidateIsDropped(t *testing.T) {
	q := New()
	require.True(t, q.EnqueueIfAbsent(candidate("idp", "jane")))

	taken, err := q.Take(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, q.WaitingJobs())
	assert.Equal(t, 1, q.RunningJobs())

	assert.False(t, q.EnqueueIfAbsent(candidate("idp", "jane")), "duplicate while running is dropped")

	require.NoError(t, q.Remove(taken))
	assert.True(t, q.EnqueueIfAbsent(candidate("idp", "jane")), "accepted again once the attempt finished")
}

func TestTakeBlocksUntilEnqueue(t *testing.T) {
	q := New()
	got := make(chan *identity.Candidate, 1)

	go func() {
		c, err := q.Take(context.Background())
		if err == nil {
			got <- c
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.True(t, q.EnqueueIfAbsent(candidate("idp", "jane")))

	select {
	case c := <-got:
		assert.Equal(t, "jane", c.PrimaryRef.Login)
	case <-time.After(2 * time.Second):
		t.Fatal("Take did not return after enqueue")
	}
}

func TestTakeHonorsContextCancellation(t *testing.T) {
	q := New()
	ctx, cancel := context.WithCancel(context.Background())

	errs := make(chan error, 1)
	go func() {
		_, err := q.Take(ctx)
		errs <- err
	}()

	cancel()
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Take did not return after cancellation")
	}
}

func TestRemoveMissingCandidateFails(t *testing.T) {
	q := New()
	err := q.Remove(candidate("idp", "ghost"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in the running set")
}

func TestTakePreservesFIFOOrder(t *testing.T) {
	q := New()
	require.True(t, q.EnqueueIfAbsent(candidate("idp", "first")))
	require.True(t, q.EnqueueIfAbsent(candidate("idp", "second")))

	c, err := q.Take(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", c.PrimaryRef.Login)

	c, err = q.Take(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "second", c.PrimaryRef.Login)
}
