package syncer

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/identitylab/fedsync/pkg/identity"
)

func TestSynchronizeCreatesUserWithInternalRef(t *testing.T) {
	svc, mem := newTestService(t, nil)
	ctx := context.Background()
	mem.RegisterDefinition(identity.AttributeDefinition{Name: "mail", Kind: identity.KindScalar})

	cand := testCandidate("idp.example.org", "jane")
	cand.FirstName = "  Jane "
	require.NoError(t, svc.synchronize(ctx, cand))

	user, err := mem.UserByRef(ctx, "idp.example.org", "jane")
	require.NoError(t, err)
	assert.Equal(t, "Jane", user.FirstName, "name fields are trimmed at creation")
	assert.Equal(t, "Doe", user.LastName)

	refs, err := mem.RefsOfUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, refs, 2)

	internal := refs[0]
	assert.Equal(t, identity.InternalSourceName, internal.Source.Name)
	assert.Equal(t, strconv.FormatInt(user.ID, 10), internal.Login)
	p, err := svc.Priority(ctx, internal)
	require.NoError(t, err)
	assert.Equal(t, PriorityUnset, p, "the internal ref is never ranked")

	external := refs[1]
	assert.Equal(t, 2, external.LoA)
	snap, err := svc.refSnapshot(ctx, external.ID)
	require.NoError(t, err)
	assert.Contains(t, snap, "mail")
	p, err = svc.Priority(ctx, external)
	require.NoError(t, err)
	assert.Equal(t, 1, p)

	mail, ok, err := mem.UserAttribute(ctx, user.ID, "mail")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "jane@example.org", mail)
}

func TestSynchronizeEmptyCandidateLeavesRefUnranked(t *testing.T) {
	svc, mem := newTestService(t, nil)
	ctx := context.Background()

	ref := identity.SourceRef{
		Source: identity.Source{Name: "idp.example.org", Type: identity.SourceTypeIdP},
		Login:  "alice",
	}
	cand := &identity.Candidate{
		ID:         "idp.example.org/alice",
		PrimaryRef: &ref,
		Refs:       []identity.SourceRef{ref},
	}
	require.NoError(t, svc.synchronize(ctx, cand))

	user, err := mem.UserByRef(ctx, "idp.example.org", "alice")
	require.NoError(t, err)
	stored, err := mem.RefByLogin(ctx, "idp.example.org", "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, stored.UserID)

	p, err := svc.Priority(ctx, stored)
	require.NoError(t, err)
	assert.Equal(t, PriorityUnset, p, "an empty snapshot must not earn a priority")
}

func TestSynchronizeIsIdempotent(t *testing.T) {
	svc, mem := newTestService(t, nil)
	ctx := context.Background()

	cand := testCandidate("idp.example.org", "jane")
	require.NoError(t, svc.synchronize(ctx, cand))
	require.NoError(t, svc.synchronize(ctx, cand))

	user, err := mem.UserByRef(ctx, "idp.example.org", "jane")
	require.NoError(t, err)
	refs, err := mem.RefsOfUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, refs, 2, "re-running the same candidate creates nothing new")
}

func TestSynchronizeRefreshesLevelOfAssurance(t *testing.T) {
	svc, mem := newTestService(t, nil)
	ctx := context.Background()

	cand := testCandidate("idp.example.org", "jane")
	require.NoError(t, svc.synchronize(ctx, cand))

	bumped := testCandidate("idp.example.org", "jane")
	bumped.PrimaryRef.LoA = 4
	bumped.Refs[0].LoA = 4
	require.NoError(t, svc.synchronize(ctx, bumped))

	ref, err := mem.RefByLogin(ctx, "idp.example.org", "jane")
	require.NoError(t, err)
	assert.Equal(t, 4, ref.LoA)
}

func TestSynchronizeDetectsForeignRef(t *testing.T) {
	svc, mem := newTestService(t, nil)
	ctx := context.Background()

	// An unrelated user already owns the secondary ref.
	other, err := mem.CreateUser(ctx, identity.User{LastName: "Other"})
	require.NoError(t, err)
	_, err = mem.AddRef(ctx, other.ID, identity.SourceRef{
		Source: identity.Source{Name: "ldap.example.org", Type: identity.SourceTypeLDAP},
		Login:  "jane",
	})
	require.NoError(t, err)

	cand := testCandidate("idp.example.org", "jane")
	cand.Refs = append(cand.Refs, identity.SourceRef{
		Source: identity.Source{Name: "ldap.example.org", Type: identity.SourceTypeLDAP},
		Login:  "jane",
	})

	err = svc.synchronize(ctx, cand)
	require.Error(t, err)
	var consistency *ConsistencyError
	assert.True(t, errors.As(err, &consistency))
}

func TestSynchronizeWithoutPrimaryRefSkipsReconciliation(t *testing.T) {
	svc, mem := newTestService(t, nil)
	ctx := context.Background()
	mem.RegisterDefinition(identity.AttributeDefinition{Name: "mail", Kind: identity.KindScalar})

	ref := identity.SourceRef{
		Source: identity.Source{Name: "csv-import", Type: identity.SourceTypeIdP},
		Login:  "jane",
	}
	cand := &identity.Candidate{
		ID:         "import-1",
		LastName:   "Doe",
		Attributes: map[string]string{"mail": "jane@example.org"},
		Refs:       []identity.SourceRef{ref},
	}
	require.NoError(t, svc.synchronize(ctx, cand))

	user, err := mem.UserByRef(ctx, "csv-import", "jane")
	require.NoError(t, err)
	_, ok, err := mem.UserAttribute(ctx, user.ID, "mail")
	require.NoError(t, err)
	assert.False(t, ok, "attributes are not reconciled without a primary ref")
}

func TestWorkerPoolSynchronizesEnqueuedCandidates(t *testing.T) {
	svc, mem := newTestService(t, nil)
	mem.RegisterDefinition(identity.AttributeDefinition{Name: "mail", Kind: identity.KindScalar})

	svc.Reconcile()
	defer svc.Stop()

	require.True(t, svc.Enqueue(testCandidate("idp.example.org", "jane")))

	require.Eventually(t, func() bool {
		ref, err := mem.RefByLogin(context.Background(), "idp.example.org", "jane")
		if err != nil {
			return false
		}
		_, ok, err := mem.RefAttribute(context.Background(), ref.ID, attrLastSuccessTimestamp)
		return err == nil && ok
	}, 3*time.Second, 10*time.Millisecond, "the pool should synchronize the candidate and record success")

	assert.Equal(t, 0, svc.RunningJobs())
	assert.Equal(t, 0, svc.WaitingJobs())
}

func TestWorkerPoolRecordsFailureOutcome(t *testing.T) {
	svc, mem := newTestService(t, nil)

	// Pre-claim the candidate's ref for another user to force a
	// consistency failure inside the pool.
	ctx := context.Background()
	other, err := mem.CreateUser(ctx, identity.User{})
	require.NoError(t, err)
	_, err = mem.AddRef(ctx, other.ID, identity.SourceRef{
		Source: identity.Source{Name: "ldap.example.org", Type: identity.SourceTypeLDAP},
		Login:  "jane",
	})
	require.NoError(t, err)

	cand := testCandidate("idp.example.org", "jane")
	cand.Refs = append(cand.Refs, identity.SourceRef{
		Source: identity.Source{Name: "ldap.example.org", Type: identity.SourceTypeLDAP},
		Login:  "jane",
	})

	svc.Reconcile()
	defer svc.Stop()
	require.True(t, svc.Enqueue(cand))

	require.Eventually(t, func() bool {
		ref, err := mem.RefByLogin(ctx, "idp.example.org", "jane")
		if err != nil {
			return false
		}
		state, ok, err := mem.RefAttribute(ctx, ref.ID, attrLastSyncState)
		return err == nil && ok && state != ""
	}, 3*time.Second, 10*time.Millisecond)

	ref, err := mem.RefByLogin(ctx, "idp.example.org", "jane")
	require.NoError(t, err)
	state, _, err := mem.RefAttribute(ctx, ref.ID, attrLastSyncState)
	require.NoError(t, err)
	assert.Contains(t, state, "consistency violation")
	_, ok, err := mem.RefAttribute(ctx, ref.ID, attrLastSuccessTimestamp)
	require.NoError(t, err)
	assert.False(t, ok, "a failed attempt must not leave a success timestamp")
}

func TestResolveUserPrefersExisting(t *testing.T) {
	svc, mem := newTestService(t, nil)
	ctx := context.Background()

	cand := testCandidate("idp.example.org", "jane")
	require.NoError(t, svc.synchronize(ctx, cand))
	existing, err := mem.UserByRef(ctx, "idp.example.org", "jane")
	require.NoError(t, err)

	user, created, err := svc.resolveUser(ctx, cand)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, existing.ID, user.ID)
}
