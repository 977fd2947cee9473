package syncer

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/identitylab/fedsync/pkg/config"
	"github.com/identitylab/fedsync/pkg/identity"
	"github.com/identitylab/fedsync/pkg/queue"
	"github.com/identitylab/fedsync/pkg/store"
)

func newTestService(t *testing.T, sources *config.Sources) (*Service, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	if sources == nil {
		sources = &config.Sources{}
	}
	svc, err := New(Config{Concurrency: 2, JobTimeout: time.Minute}, Options{
		Queue:   queue.New(),
		Store:   mem,
		Sources: config.Static{Sources: sources},
		Logger:  log,
	})
	require.NoError(t, err)
	return svc, mem
}

func testCandidate(source, login string) *identity.Candidate {
	ref := identity.SourceRef{
		Source: identity.Source{Name: source, Type: identity.SourceTypeIdP},
		Login:  login,
		LoA:    2,
	}
	return &identity.Candidate{
		ID:         source + "/" + login,
		FirstName:  "Jane",
		LastName:   "Doe",
		Attributes: map[string]string{"mail": login + "@example.org"},
		PrimaryRef: &ref,
		Refs:       []identity.SourceRef{ref},
	}
}

// addRefWithSnapshot seeds a user ref with a captured snapshot and an
// explicit priority, as left behind by earlier synchronization runs.
func addRefWithSnapshot(t *testing.T, mem *store.Memory, userID int64, source string, priority int, snap identity.Snapshot) identity.SourceRef {
	t.Helper()
	ctx := context.Background()
	ref, err := mem.AddRef(ctx, userID, identity.SourceRef{
		Source: identity.Source{Name: source, Type: identity.SourceTypeIdP},
		Login:  "login-" + source,
	})
	require.NoError(t, err)
	if priority != PriorityUnset {
		require.NoError(t, mem.SetRefAttribute(ctx, ref.ID, attrPriority, strconv.Itoa(priority)))
	}
	if snap != nil {
		encoded, err := snap.Encode()
		require.NoError(t, err)
		require.NoError(t, mem.SetRefAttribute(ctx, ref.ID, attrSnapshot, encoded))
	}
	return ref
}
