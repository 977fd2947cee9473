package syncer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/identitylab/fedsync/pkg/identity"
)

func TestPriorityDefaultsToUnset(t *testing.T) {
	svc, mem := newTestService(t, nil)
	ctx := context.Background()

	user, err := mem.CreateUser(ctx, identity.User{LastName: "Doe"})
	require.NoError(t, err)
	ref := addRefWithSnapshot(t, mem, user.ID, "idp", PriorityUnset, nil)

	p, err := svc.Priority(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, PriorityUnset, p)
}

func TestPriorityRejectsMalformedValues(t *testing.T) {
	svc, mem := newTestService(t, nil)
	ctx := context.Background()

	user, err := mem.CreateUser(ctx, identity.User{})
	require.NoError(t, err)
	ref := addRefWithSnapshot(t, mem, user.ID, "idp", PriorityUnset, nil)
	require.NoError(t, mem.SetRefAttribute(ctx, ref.ID, attrPriority, "high"))

	_, err = svc.Priority(ctx, ref)
	require.Error(t, err)
}

func TestAssignLowestPriorityIfUnset(t *testing.T) {
	svc, mem := newTestService(t, nil)
	ctx := context.Background()

	user, err := mem.CreateUser(ctx, identity.User{})
	require.NoError(t, err)
	snap := identity.Snapshot{"mail": {"a@b"}}

	t.Run("ref without snapshot stays unranked", func(t *testing.T) {
		ref := addRefWithSnapshot(t, mem, user.ID, "empty", PriorityUnset, nil)
		p, err := svc.AssignLowestPriorityIfUnset(ctx, user, ref)
		require.NoError(t, err)
		assert.Equal(t, PriorityUnset, p)
	})

	t.Run("first ranked ref gets priority 1", func(t *testing.T) {
		ref := addRefWithSnapshot(t, mem, user.ID, "first", PriorityUnset, snap)
		p, err := svc.AssignLowestPriorityIfUnset(ctx, user, ref)
		require.NoError(t, err)
		assert.Equal(t, 1, p)
	})

	t.Run("next ref ranks below every existing one", func(t *testing.T) {
		ref := addRefWithSnapshot(t, mem, user.ID, "second", PriorityUnset, snap)
		p, err := svc.AssignLowestPriorityIfUnset(ctx, user, ref)
		require.NoError(t, err)
		assert.Equal(t, 2, p)
	})

	t.Run("an assigned priority is sticky", func(t *testing.T) {
		ref := addRefWithSnapshot(t, mem, user.ID, "third", 7, snap)
		p, err := svc.AssignLowestPriorityIfUnset(ctx, user, ref)
		require.NoError(t, err)
		assert.Equal(t, 7, p)
	})
}

func TestHighestPrioritySource(t *testing.T) {
	ctx := context.Background()
	snap := identity.Snapshot{"mail": {"a@b"}}

	t.Run("smallest positive priority with a snapshot wins", func(t *testing.T) {
		svc, mem := newTestService(t, nil)
		user, err := mem.CreateUser(ctx, identity.User{})
		require.NoError(t, err)

		addRefWithSnapshot(t, mem, user.ID, "low", 5, snap)
		winner := addRefWithSnapshot(t, mem, user.ID, "high", 2, snap)
		addRefWithSnapshot(t, mem, user.ID, "unranked", PriorityUnset, snap)

		ref, gotSnap, ok, err := svc.HighestPrioritySource(ctx, user.ID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, winner.ID, ref.ID)
		assert.Equal(t, snap, gotSnap)
	})

	t.Run("refs without a snapshot never win", func(t *testing.T) {
		svc, mem := newTestService(t, nil)
		user, err := mem.CreateUser(ctx, identity.User{})
		require.NoError(t, err)

		addRefWithSnapshot(t, mem, user.ID, "bare", 1, nil)
		winner := addRefWithSnapshot(t, mem, user.ID, "full", 3, snap)

		ref, _, ok, err := svc.HighestPrioritySource(ctx, user.ID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, winner.ID, ref.ID)
	})

	t.Run("equal priorities fall back to the oldest ref", func(t *testing.T) {
		svc, mem := newTestService(t, nil)
		user, err := mem.CreateUser(ctx, identity.User{})
		require.NoError(t, err)

		first := addRefWithSnapshot(t, mem, user.ID, "older", 3, snap)
		addRefWithSnapshot(t, mem, user.ID, "newer", 3, snap)

		ref, _, ok, err := svc.HighestPrioritySource(ctx, user.ID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, first.ID, ref.ID)
	})

	t.Run("no qualifying ref reports absence", func(t *testing.T) {
		svc, mem := newTestService(t, nil)
		user, err := mem.CreateUser(ctx, identity.User{})
		require.NoError(t, err)
		addRefWithSnapshot(t, mem, user.ID, "unranked", PriorityUnset, snap)

		_, _, ok, err := svc.HighestPrioritySource(ctx, user.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
